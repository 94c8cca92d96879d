package rules

// Input is the prepared form of one analyzed subject.
// Text rules see Raw and Normalized; URL rules additionally see URL.
type Input struct {
	Raw        string    // Original text, used for evidence spans
	Normalized string    // NFKC, case-folded, whitespace collapsed
	URL        *URLParts // Set for URL analysis only
}

// URLParts is a decomposed URL
type URLParts struct {
	Raw         string   // As submitted, after scheme defaulting
	Scheme      string   // http or https
	Host        string   // ASCII (punycode) form, lowercased, no port
	UnicodeHost string   // Display form of Host
	Registrable string   // eTLD+1, empty for IP hosts
	Suffix      string   // Public suffix, e.g. "co.uk"
	Subdomains  []string // Labels left of Registrable
	Path        string
	Query       string
	IsIP        bool
}
