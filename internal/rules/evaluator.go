package rules

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/riskwatch/internal/model"
)

// evaluator is the behavior behind one rule kind.
// evidence is the leftmost matched span when ok is true.
type evaluator interface {
	evaluate(in *Input) (evidence string, ok bool, err error)
}

// candidates returns the texts a lexical rule is tried against, in order.
// The raw form comes first so evidence quotes the submission verbatim.
func (in *Input) candidates() []string {
	raw := in.Raw
	if raw == "" && in.URL != nil {
		raw = in.URL.Raw
	}
	out := make([]string, 0, 2)
	if raw != "" {
		out = append(out, raw)
	}
	if in.Normalized != "" && in.Normalized != raw {
		out = append(out, in.Normalized)
	}
	return out
}

// keywordEvaluator matches any phrase of a keyword list.
// All phrases are compiled into a single case-insensitive alternation.
type keywordEvaluator struct {
	re *regexp.Regexp
}

func newKeywordEvaluator(keywords []string) (*keywordEvaluator, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keyword list is empty")
	}

	alts := make([]string, 0, len(keywords))
	for i, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return nil, fmt.Errorf("keyword %d is empty", i)
		}
		alts = append(alts, keywordPattern(kw))
	}

	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile keywords: %w", err)
	}
	return &keywordEvaluator{re: re}, nil
}

// keywordPattern turns a phrase into a regexp fragment that tolerates
// runs of whitespace and typographic apostrophes, anchored on word edges
func keywordPattern(kw string) string {
	var b strings.Builder

	first, _ := utf8.DecodeRuneInString(kw)
	if isWordRune(first) {
		b.WriteString(`\b`)
	}

	words := strings.Fields(kw)
	for i, w := range words {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		quoted := regexp.QuoteMeta(w)
		quoted = strings.ReplaceAll(quoted, "'", `['’]`)
		b.WriteString(quoted)
	}

	last, _ := utf8.DecodeLastRuneInString(kw)
	if isWordRune(last) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func (e *keywordEvaluator) evaluate(in *Input) (string, bool, error) {
	for _, text := range in.candidates() {
		if m := e.re.FindString(text); m != "" {
			return m, true, nil
		}
	}
	return "", false, nil
}

// regexEvaluator fires on the leftmost match across its patterns
type regexEvaluator struct {
	patterns []*regexp.Regexp
}

func newRegexEvaluator(patterns []string, caseSensitive bool) (*regexEvaluator, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern list is empty")
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("pattern %d is empty", i)
		}
		if !caseSensitive {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		compiled = append(compiled, re)
	}
	return &regexEvaluator{patterns: compiled}, nil
}

func (e *regexEvaluator) evaluate(in *Input) (string, bool, error) {
	for _, text := range in.candidates() {
		best := -1
		var evidence string
		for _, re := range e.patterns {
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			if best < 0 || loc[0] < best {
				best = loc[0]
				evidence = text[loc[0]:loc[1]]
			}
		}
		if best >= 0 {
			return evidence, true, nil
		}
	}
	return "", false, nil
}

// structuralEvaluator runs a named check from the registry
type structuralEvaluator struct {
	name  string
	check checkFunc
}

func (e *structuralEvaluator) evaluate(in *Input) (string, bool, error) {
	evidence, ok := e.check(in)
	return evidence, ok, nil
}

// newEvaluator builds the evaluator for a rule definition
func newEvaluator(def model.RuleDefinition) (evaluator, error) {
	switch def.Kind {
	case model.KindKeywords:
		return newKeywordEvaluator(def.Keywords)
	case model.KindRegex:
		return newRegexEvaluator(def.Patterns, def.CaseSensitive)
	case model.KindNumeric:
		return newNumericEvaluator(def.Numeric)
	case model.KindStructural:
		spec, ok := checks[def.Check]
		if !ok {
			return nil, fmt.Errorf("unknown structural check %q", def.Check)
		}
		if spec.target != def.AppliesTo {
			return nil, fmt.Errorf("check %q applies to %s, not %s", def.Check, spec.target, def.AppliesTo)
		}
		fn, err := spec.build(params(def.Params))
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", def.Check, err)
		}
		return &structuralEvaluator{name: def.Check, check: fn}, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", def.Kind)
	}
}
