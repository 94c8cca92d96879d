package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/riskwatch/internal/model"
)

// checkFunc is a compiled structural check
type checkFunc func(in *Input) (evidence string, ok bool)

// checkSpec registers a structural check: the target it inspects and a
// builder that validates params at load time
type checkSpec struct {
	target model.Target
	build  func(p params) (checkFunc, error)
}

var checks = map[string]checkSpec{
	"shouting":           {model.TargetText, buildShouting},
	"exclamation_run":    {model.TargetText, buildExclamationRun},
	"spelling_anomalies": {model.TargetText, buildSpellingAnomalies},
	"suspicious_tld":     {model.TargetURL, buildSuspiciousTLD},
	"subdomain_depth":    {model.TargetURL, buildSubdomainDepth},
	"lookalike_brand":    {model.TargetURL, buildLookalikeBrand},
	"shortener":          {model.TargetURL, buildShortener},
	"ip_host":            {model.TargetURL, buildIPHost},
	"mixed_script":       {model.TargetURL, buildMixedScript},
}

// CheckNames returns the registered structural checks, sorted
func CheckNames() []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- text checks ---

func buildShouting(p params) (checkFunc, error) {
	minRatio, err := p.float("min_ratio", 0.3)
	if err != nil {
		return nil, err
	}
	if minRatio <= 0 || minRatio > 1 {
		return nil, fmt.Errorf("min_ratio must be in (0,1], got %v", minRatio)
	}
	minWords, err := p.int("min_words", 3)
	if err != nil {
		return nil, err
	}
	minLen, err := p.int("min_len", 4)
	if err != nil {
		return nil, err
	}

	return func(in *Input) (string, bool) {
		var words, shouted int
		var sample []string
		for _, field := range strings.Fields(in.Raw) {
			word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) })
			if len([]rune(word)) < minLen || !allLetters(word) {
				continue
			}
			words++
			if strings.ToUpper(word) == word {
				shouted++
				if len(sample) < 3 {
					sample = append(sample, word)
				}
			}
		}
		if shouted < 2 || words < minWords {
			return "", false
		}
		if float64(shouted)/float64(words) < minRatio {
			return "", false
		}
		return strings.Join(sample, " "), true
	}, nil
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func buildExclamationRun(p params) (checkFunc, error) {
	minRun, err := p.int("min_run", 2)
	if err != nil {
		return nil, err
	}
	if minRun < 2 {
		return nil, fmt.Errorf("min_run must be at least 2, got %d", minRun)
	}
	re := regexp.MustCompile(fmt.Sprintf(`[!！]{%d,}`, minRun))

	return func(in *Input) (string, bool) {
		loc := re.FindStringIndex(in.Raw)
		if loc == nil {
			return "", false
		}
		return in.Raw[wordStart(in.Raw, loc[0]):loc[1]], true
	}, nil
}

// wordStart walks back from i to the start of the preceding word so the
// evidence has some context
func wordStart(s string, i int) int {
	j := i
	for j > 0 && s[j-1] != ' ' && s[j-1] != '\n' && i-j < 30 {
		j--
	}
	return j
}

func buildSpellingAnomalies(p params) (checkFunc, error) {
	terms, err := p.stringList("terms", true)
	if err != nil {
		return nil, err
	}
	minHits, err := p.int("min_hits", 2)
	if err != nil {
		return nil, err
	}
	if minHits < 1 {
		return nil, fmt.Errorf("min_hits must be positive, got %d", minHits)
	}

	kw, err := newKeywordEvaluator(terms)
	if err != nil {
		return nil, err
	}

	return func(in *Input) (string, bool) {
		text := in.Normalized
		if text == "" {
			text = in.Raw
		}
		hits := kw.re.FindAllString(text, -1)
		if len(hits) < minHits {
			return "", false
		}
		return strings.Join(uniqueStrings(hits), ", "), true
	}, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// --- url checks ---

func buildSuspiciousTLD(p params) (checkFunc, error) {
	tlds, err := p.stringList("tlds", true)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(tlds))
	for _, t := range tlds {
		set[strings.TrimPrefix(t, ".")] = true
	}

	return func(in *Input) (string, bool) {
		u := in.URL
		if u == nil || u.IsIP || u.Host == "" {
			return "", false
		}
		tld := u.Host[strings.LastIndexByte(u.Host, '.')+1:]
		if !set[tld] {
			return "", false
		}
		return "." + tld, true
	}, nil
}

func buildSubdomainDepth(p params) (checkFunc, error) {
	limit, err := p.int("max_subdomains", 3)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("max_subdomains must not be negative, got %d", limit)
	}

	return func(in *Input) (string, bool) {
		u := in.URL
		if u == nil || len(u.Subdomains) <= limit {
			return "", false
		}
		return u.Host, true
	}, nil
}

func buildShortener(p params) (checkFunc, error) {
	hosts, err := p.stringList("hosts", true)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h] = true
	}

	return func(in *Input) (string, bool) {
		u := in.URL
		if u == nil {
			return "", false
		}
		host := strings.TrimPrefix(u.Host, "www.")
		if set[host] || set[u.Registrable] {
			return u.Host, true
		}
		return "", false
	}, nil
}

func buildIPHost(params) (checkFunc, error) {
	return func(in *Input) (string, bool) {
		if in.URL == nil || !in.URL.IsIP {
			return "", false
		}
		return in.URL.Host, true
	}, nil
}

func buildMixedScript(params) (checkFunc, error) {
	return func(in *Input) (string, bool) {
		u := in.URL
		if u == nil || u.IsIP {
			return "", false
		}
		punycode := strings.HasPrefix(u.Host, "xn--") || strings.Contains(u.Host, ".xn--")
		if !punycode && isASCII(u.UnicodeHost) {
			return "", false
		}
		if u.UnicodeHost != "" {
			return u.UnicodeHost, true
		}
		return u.Host, true
	}, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
