package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// confusables folds characters that render like Latin letters or digits into
// a single representative, so "pаypa1" and "paypal" share a skeleton
var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'к': 'k', 'м': 'm', 'н': 'h', 'о': 'o',
	'р': 'p', 'с': 'c', 'т': 't', 'у': 'y', 'х': 'x', 'і': 'l', 'ї': 'l', 'ј': 'j',
	'ѕ': 's', 'ԁ': 'd', 'һ': 'h', 'ԛ': 'q', 'ԝ': 'w', 'ɡ': 'g',
	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'l', 'κ': 'k', 'ν': 'v', 'ο': 'o',
	'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x', 'ω': 'w',
	// Latin look-alikes and digits
	'ı': 'l', 'i': 'l', '1': 'l', '|': 'l', '!': 'l',
	'0': 'o', '3': 'e', '4': 'a', '5': 's', '$': 's', '7': 't', '8': 'b', '@': 'a',
}

var multiCharConfusables = strings.NewReplacer("rn", "m", "vv", "w", "cl", "d")

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// skeleton maps s to its confusable skeleton: decomposed, marks stripped,
// lowercased, look-alikes folded and hyphens dropped
func skeleton(s string) string {
	t := transform.Chain(norm.NFKD, stripMarks, norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r == '-' || r == '_' {
			continue
		}
		if c, ok := confusables[r]; ok {
			r = c
		}
		b.WriteRune(r)
	}
	return multiCharConfusables.Replace(b.String())
}

// brand is a protected name prepared for comparison
type brand struct {
	name     string
	skeleton string
}

func buildLookalikeBrand(p params) (checkFunc, error) {
	names, err := p.stringList("brands", true)
	if err != nil {
		return nil, err
	}
	official, err := p.stringList("official_domains", false)
	if err != nil {
		return nil, err
	}

	brands := make([]brand, 0, len(names))
	for _, n := range names {
		brands = append(brands, brand{name: n, skeleton: skeleton(n)})
	}

	return func(in *Input) (string, bool) {
		u := in.URL
		if u == nil || u.IsIP || isOfficialHost(u.Host, official) {
			return "", false
		}

		host := u.UnicodeHost
		if host == "" {
			host = u.Host
		}
		labels := strings.Split(host, ".")
		// The public suffix never carries the brand
		if n := strings.Count(u.Suffix, ".") + 1; u.Suffix != "" && n < len(labels) {
			labels = labels[:len(labels)-n]
		}

		for _, label := range labels {
			sk := skeleton(label)
			for _, b := range brands {
				if strings.Contains(sk, b.skeleton) {
					return host + " ~ " + b.name, true
				}
			}
		}
		return "", false
	}, nil
}

func isOfficialHost(host string, official []string) bool {
	for _, d := range official {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
