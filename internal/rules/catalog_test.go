package rules

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/riskwatch/internal/model"
)

const testScoring = `scoring:
  scale: 35
  thresholds: {medium: 25, high: 50, critical: 80}
`

const testRuleSetTemplate = `version: "test"
rules:
%s
domain_checks:
  unknown_weight: 5
  new_weight: 20
  new_window_days: 90
  established_weight: -10
  established_days: 365
advisor_checks:
  similarity_floor: 0.85
  active_weight: -30
  suspended_weight: 40
  revoked_weight: 50
  unknown_status_weight: 10
  not_found_weight: 25
  approximate_name_weight: 5
%s
%s
`

const urgencyRule = `  - id: urgency
    category: fraud
    applies_to: text
    kind: keywords
    weight: 10
    keywords: [act now]`

func testRuleSet(rules, scoring, extra string) []byte {
	if scoring == "" {
		scoring = testScoring
	}
	return []byte(fmt.Sprintf(testRuleSetTemplate, rules, scoring, extra))
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if c.Version() == "" {
		t.Error("expected a version")
	}
	if len(c.Rules(model.TargetText)) == 0 || len(c.Rules(model.TargetURL)) == 0 {
		t.Error("expected text and url rules")
	}
	if len(c.Digest()) != 64 {
		t.Errorf("expected hex sha256 digest, got %q", c.Digest())
	}
	if c.RuleSet().InsufficientSignalNote == "" {
		t.Error("expected an insufficient-signal note")
	}
}

func TestParse_Valid(t *testing.T) {
	c, err := Parse(testRuleSet(urgencyRule, "", ""), "test")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	rules := c.Rules("")
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	// Group and label default to the id
	if rules[0].Group != "urgency" || rules[0].Label != "urgency" {
		t.Errorf("expected defaulted group and label, got %q / %q", rules[0].Group, rules[0].Label)
	}
	if c.RuleSet().InsufficientSignalNote != DefaultInsufficientSignalNote {
		t.Errorf("expected default note, got %q", c.RuleSet().InsufficientSignalNote)
	}
}

func TestParse_Problems(t *testing.T) {
	tests := []struct {
		desc    string
		rules   string
		scoring string
		extra   string
		want    string
	}{
		{
			desc:  "duplicate id",
			rules: urgencyRule + "\n" + urgencyRule,
			want:  "duplicate id",
		},
		{
			desc: "invalid regex",
			rules: `  - id: broken
    category: fraud
    applies_to: text
    kind: regex
    weight: 10
    patterns: ['(unclosed']`,
			want: "pattern 0",
		},
		{
			desc: "empty keyword list",
			rules: `  - id: empty
    category: fraud
    applies_to: text
    kind: keywords
    weight: 10
    keywords: []`,
			want: "keyword list is empty",
		},
		{
			desc: "unknown kind",
			rules: `  - id: odd
    category: fraud
    applies_to: text
    kind: sentiment
    weight: 10`,
			want: "unknown rule kind",
		},
		{
			desc: "unknown structural check",
			rules: `  - id: odd
    category: fraud
    applies_to: text
    kind: structural
    check: vibes
    weight: 10`,
			want: "unknown structural check",
		},
		{
			desc: "check on wrong target",
			rules: `  - id: loud_url
    category: fraud
    applies_to: url
    kind: structural
    check: shouting
    weight: 10`,
			want: "applies to text",
		},
		{
			desc: "fraud weight with negative sign",
			rules: `  - id: backwards
    category: fraud
    applies_to: text
    kind: keywords
    weight: -5
    keywords: [act now]`,
			want: "fraud weight must be positive",
		},
		{
			desc: "legitimacy weight with positive sign",
			rules: `  - id: backwards
    category: legitimacy
    applies_to: text
    kind: keywords
    weight: 5
    keywords: [past performance]`,
			want: "legitimacy weight must be negative",
		},
		{
			desc: "weight out of bounds",
			rules: `  - id: heavy
    category: fraud
    applies_to: text
    kind: keywords
    weight: 500
    keywords: [act now]`,
			want: "outside bounds",
		},
		{
			desc: "unknown numeric metric",
			rules: `  - id: num
    category: fraud
    applies_to: text
    kind: numeric
    weight: 10
    numeric: {metric: pe_ratio, above: 5}`,
			want: "unknown numeric metric",
		},
		{
			desc:    "thresholds not increasing",
			rules:   urgencyRule,
			scoring: "scoring:\n  scale: 35\n  thresholds: {medium: 50, high: 40, critical: 80}\n",
			want:    "scoring.thresholds",
		},
		{
			desc:    "non-positive scale",
			rules:   urgencyRule,
			scoring: "scoring:\n  scale: 0\n  thresholds: {medium: 25, high: 50, critical: 80}\n",
			want:    "scoring.scale must be a positive finite number",
		},
		{
			desc:  "multiplier and delta together",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: sms, multiplier: 1.2, delta: 3}\n",
			want:  "mutually exclusive",
		},
		{
			desc:  "non-positive multiplier",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: sms, multiplier: 0}\n",
			want:  "multiplier must be positive",
		},
		{
			desc:  "negative delta",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: exchange, delta: -5}\n",
			want:  "delta must be positive",
		},
		{
			desc: "NaN weight",
			rules: `  - id: nan
    category: fraud
    applies_to: text
    kind: keywords
    weight: .nan
    keywords: [act now]`,
			want: "weight must be a finite number",
		},
		{
			desc: "infinite legitimacy weight",
			rules: `  - id: inf
    category: legitimacy
    applies_to: text
    kind: keywords
    weight: -.inf
    keywords: [past performance]`,
			want: "weight must be a finite number",
		},
		{
			desc: "NaN numeric threshold",
			rules: `  - id: num
    category: fraud
    applies_to: text
    kind: numeric
    weight: 10
    numeric: {metric: percent_return, above: .nan}`,
			want: "numeric threshold must be a finite number",
		},
		{
			desc:    "NaN scale",
			rules:   urgencyRule,
			scoring: "scoring:\n  scale: .nan\n  thresholds: {medium: 25, high: 50, critical: 80}\n",
			want:    "scoring.scale must be a positive finite number",
		},
		{
			desc:    "infinite scale",
			rules:   urgencyRule,
			scoring: "scoring:\n  scale: .inf\n  thresholds: {medium: 25, high: 50, critical: 80}\n",
			want:    "scoring.scale must be a positive finite number",
		},
		{
			desc:    "NaN threshold",
			rules:   urgencyRule,
			scoring: "scoring:\n  scale: 35\n  thresholds: {medium: .nan, high: 50, critical: 80}\n",
			want:    "scoring.thresholds",
		},
		{
			desc:  "NaN multiplier",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: whatsapp, multiplier: .nan}\n",
			want:  "multiplier must be a finite number",
		},
		{
			desc:  "infinite multiplier",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: whatsapp, multiplier: .inf}\n",
			want:  "multiplier must be a finite number",
		},
		{
			desc:  "NaN delta",
			rules: urgencyRule,
			extra: "modifiers:\n  - {dimension: platform, value: exchange, delta: .nan}\n",
			want:  "delta must be a finite number",
		},
		{
			desc:  "NaN weight bounds",
			rules: urgencyRule,
			extra: "weight_bounds: {min: .nan, max: 100}\n",
			want:  "weight_bounds must be finite",
		},
		{
			desc:  "unknown recommendation level",
			rules: urgencyRule,
			extra: "recommendations:\n  - {id: r1, min_level: severe, text: careful}\n",
			want:  "unknown min_level",
		},
		{
			desc:  "recommendation for unknown group",
			rules: urgencyRule,
			extra: "recommendations:\n  - {id: r1, min_level: low, groups: [astrology], text: careful}\n",
			want:  `unknown group "astrology"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := Parse(testRuleSet(tt.rules, tt.scoring, tt.extra), "test")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, model.ErrCatalog) {
				t.Errorf("expected a catalog error, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_FlagWeightKeysAreFolded(t *testing.T) {
	data := []byte(strings.Replace(string(testRuleSet(urgencyRule, "", "")),
		"  established_days: 365\n",
		"  established_days: 365\n  flag_weights:\n    Known_Fraud: 60\n    ' Regulator ': -20\n", 1))

	c, err := Parse(data, "test")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	got := c.DomainChecks().FlagWeights
	if got["known_fraud"] != 60 || got["regulator"] != -20 || len(got) != 2 {
		t.Errorf("FlagWeights = %v, want lower-cased keys", got)
	}
}

func TestParse_FlagWeightKeysCollide(t *testing.T) {
	data := []byte(strings.Replace(string(testRuleSet(urgencyRule, "", "")),
		"  established_days: 365\n",
		"  established_days: 365\n  flag_weights:\n    Reported: 10\n    reported: 20\n", 1))

	_, err := Parse(data, "test")
	if err == nil || !strings.Contains(err.Error(), "duplicate flag") {
		t.Errorf("expected duplicate flag error, got %v", err)
	}
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	rules := `  - id: a
    category: fraud
    applies_to: text
    kind: keywords
    weight: -1
    keywords: [x]
  - id: b
    category: fraud
    applies_to: text
    kind: regex
    weight: 10
    patterns: ['[']`

	_, err := Parse(testRuleSet(rules, "", ""), "test")

	var catErr *model.CatalogError
	if !errors.As(err, &catErr) {
		t.Fatalf("expected *model.CatalogError, got %v", err)
	}
	if len(catErr.Problems) < 2 {
		t.Errorf("expected at least 2 problems, got %v", catErr.Problems)
	}
}

func TestParse_UnknownField(t *testing.T) {
	data := append(testRuleSet(urgencyRule, "", ""), []byte("surprise: true\n")...)
	_, err := Parse(data, "test")
	if err == nil {
		t.Fatal("expected decode error for unknown field")
	}
	if !errors.Is(err, model.ErrCatalog) {
		t.Errorf("expected catalog error, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse([]byte("  \n"), "empty"); !errors.Is(err, model.ErrCatalog) {
		t.Errorf("expected catalog error for empty document, got %v", err)
	}
}

func firedIDs(indicators []model.Indicator) map[string]string {
	out := make(map[string]string, len(indicators))
	for _, ind := range indicators {
		out[ind.ID] = ind.Evidence
	}
	return out
}

func TestMatch_TextRules(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}

	tests := []struct {
		desc     string
		text     string
		fired    map[string]string // id -> evidence ("" skips the evidence check)
		notFired []string
	}{
		{
			desc: "classic scam pitch",
			text: "Act now! Guaranteed 300% returns in 30 days. Limited slots available.",
			fired: map[string]string{
				"urgency_language":   "Act now",
				"guaranteed_returns": "Guaranteed 300% returns",
				"unrealistic_return": "300% returns in 30 days",
			},
			notFired: []string{"risk_disclosure", "registration_number", "exclamation_run"},
		},
		{
			desc: "disclosure with registration",
			text: "Past performance is not indicative of future results. Investments are subject to market risks. Registered advisor INA000012345.",
			fired: map[string]string{
				"risk_disclosure":     "Past performance",
				"registration_number": "INA000012345",
			},
			notFired: []string{"guaranteed_returns", "unrealistic_return", "urgency_language"},
		},
		{
			desc: "shouting and exclamations",
			text: "THIS IS THE BEST DEAL EVER, BUY NOW!!!",
			fired: map[string]string{
				"shouting":        "THIS BEST DEAL",
				"exclamation_run": "NOW!!!",
			},
		},
		{
			desc: "misspellings",
			text: "You will recieve a guarrantee on this investmant",
			fired: map[string]string{
				"spelling_anomalies": "recieve, guarrantee, investmant",
			},
		},
		{
			desc:     "flexible whitespace in keywords",
			text:     "Please   act\n now before the window closes",
			fired:    map[string]string{"urgency_language": ""},
			notFired: []string{"shouting"},
		},
		{
			desc:     "modest return is not unrealistic",
			text:     "Our fund targets returns of 8% per year.",
			notFired: []string{"unrealistic_return"},
		},
		{
			desc:     "discount is not a return claim",
			text:     "Save 60% on brokerage fees this season.",
			notFired: []string{"unrealistic_return"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			indicators, failures := c.Match(&Input{Raw: tt.text}, model.TargetText)
			if len(failures) != 0 {
				t.Fatalf("unexpected match errors: %v", failures)
			}
			got := firedIDs(indicators)
			for id, evidence := range tt.fired {
				ev, ok := got[id]
				if !ok {
					t.Errorf("expected %s to fire, fired: %v", id, got)
					continue
				}
				if evidence != "" && ev != evidence {
					t.Errorf("%s evidence = %q, want %q", id, ev, evidence)
				}
			}
			for _, id := range tt.notFired {
				if _, ok := got[id]; ok {
					t.Errorf("expected %s not to fire (evidence %q)", id, got[id])
				}
			}
		})
	}
}

func TestMatch_URLRules(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}

	tests := []struct {
		desc     string
		raw      string
		parts    URLParts
		fired    []string
		notFired []string
	}{
		{
			desc:     "digit look-alike brand",
			raw:      "https://paypa1-secure.com/",
			parts:    URLParts{Host: "paypa1-secure.com", UnicodeHost: "paypa1-secure.com", Registrable: "paypa1-secure.com", Suffix: "com"},
			fired:    []string{"lookalike_brand"},
			notFired: []string{"mixed_script", "ip_host"},
		},
		{
			desc:     "official domain is exempt",
			raw:      "https://www.paypal.com/",
			parts:    URLParts{Host: "www.paypal.com", UnicodeHost: "www.paypal.com", Registrable: "paypal.com", Suffix: "com", Subdomains: []string{"www"}},
			notFired: []string{"lookalike_brand", "suspicious_tld", "subdomain_depth"},
		},
		{
			desc:  "cyrillic homoglyph",
			raw:   "https://zеrodha.com/",
			parts: URLParts{Host: "xn--zrodha-2of.com", UnicodeHost: "zеrodha.com", Registrable: "xn--zrodha-2of.com", Suffix: "com"},
			fired: []string{"lookalike_brand", "mixed_script"},
		},
		{
			desc:  "suspicious tld and lure",
			raw:   "http://free-money-now.xyz/",
			parts: URLParts{Host: "free-money-now.xyz", UnicodeHost: "free-money-now.xyz", Registrable: "free-money-now.xyz", Suffix: "xyz"},
			fired: []string{"suspicious_tld", "lure_terms"},
		},
		{
			desc:     "ip host",
			raw:      "http://192.168.1.10/login",
			parts:    URLParts{Host: "192.168.1.10", IsIP: true, Path: "/login"},
			fired:    []string{"ip_host", "credential_lure"},
			notFired: []string{"suspicious_tld", "lookalike_brand"},
		},
		{
			desc:  "shortener",
			raw:   "https://bit.ly/3xYz",
			parts: URLParts{Host: "bit.ly", UnicodeHost: "bit.ly", Registrable: "bit.ly", Suffix: "ly"},
			fired: []string{"url_shortener"},
		},
		{
			desc:  "deep subdomains",
			raw:   "https://a.b.c.d.example.com/",
			parts: URLParts{Host: "a.b.c.d.example.com", UnicodeHost: "a.b.c.d.example.com", Registrable: "example.com", Suffix: "com", Subdomains: []string{"a", "b", "c", "d"}},
			fired: []string{"subdomain_depth"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			parts := tt.parts
			parts.Raw = tt.raw
			indicators, failures := c.Match(&Input{Raw: tt.raw, URL: &parts}, model.TargetURL)
			if len(failures) != 0 {
				t.Fatalf("unexpected match errors: %v", failures)
			}
			got := firedIDs(indicators)
			for _, id := range tt.fired {
				if _, ok := got[id]; !ok {
					t.Errorf("expected %s to fire, fired: %v", id, got)
				}
			}
			for _, id := range tt.notFired {
				if _, ok := got[id]; ok {
					t.Errorf("expected %s not to fire", id)
				}
			}
		})
	}
}

func TestMatch_OnlyTargetRules(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	// URL rules never run against text, even when the text looks like a lure
	indicators, _ := c.Match(&Input{Raw: "free money at bit.ly"}, model.TargetText)
	for _, ind := range indicators {
		if ind.ID == "url_shortener" || ind.ID == "lure_terms" {
			t.Errorf("url rule %s fired on text", ind.ID)
		}
	}
}

type panicEvaluator struct{}

func (panicEvaluator) evaluate(*Input) (string, bool, error) {
	panic("boom")
}

type errEvaluator struct{}

func (errEvaluator) evaluate(*Input) (string, bool, error) {
	return "", false, errors.New("bad input")
}

func TestMatch_FailingRulesAreSkipped(t *testing.T) {
	c, err := Parse(testRuleSet(urgencyRule, "", ""), "test")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	c.rules = append([]*rule{
		{def: model.RuleDefinition{ID: "panics", AppliesTo: model.TargetText}, eval: panicEvaluator{}},
		{def: model.RuleDefinition{ID: "errors", AppliesTo: model.TargetText}, eval: errEvaluator{}},
	}, c.rules...)

	indicators, failures := c.Match(&Input{Raw: "act now"}, model.TargetText)

	if len(failures) != 2 {
		t.Fatalf("expected 2 match errors, got %v", failures)
	}
	if failures[0].RuleID != "panics" || failures[1].RuleID != "errors" {
		t.Errorf("unexpected failure order: %v", failures)
	}
	if len(indicators) != 1 || indicators[0].ID != "urgency" {
		t.Errorf("expected the healthy rule to still fire, got %v", indicators)
	}
}

func TestParseReturnClaims(t *testing.T) {
	tests := []struct {
		desc string
		text string
		want []float64
	}{
		{"daily adverb", "earn 2% daily profit", []float64{730}},
		{"per annum", "returns of 12% per annum", []float64{12}},
		{"per month", "monthly returns of 10% per month", []float64{120}},
		{"in N days", "300% returns in 30 days", []float64{3650}},
		{"percent word", "5 percent weekly returns", []float64{260}},
		{"thousands separator", "1,200% returns", []float64{1200}},
		{"no return context", "Save 60% on brokerage fees", nil},
		{"two claims", "profit 1% a day or 20% a year", []float64{365, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			claims := parseReturnClaims(tt.text)
			if len(claims) != len(tt.want) {
				t.Fatalf("expected %d claims, got %d (%v)", len(tt.want), len(claims), claims)
			}
			for i, c := range claims {
				got := c.annualized.InexactFloat64()
				if diff := got - tt.want[i]; diff > 0.01 || diff < -0.01 {
					t.Errorf("claim %d = %v, want %v", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestSkeleton(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"paypal", "paypa1", true},
		{"zerodha", "zеrodha", true}, // Cyrillic е
		{"groww", "grovvw", true},
		{"coinbase", "c0inbase", true},
		{"modern", "modem", true},
		{"schwab", "schvvab", true},
		{"binance", "finance", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := skeleton(tt.a) == skeleton(tt.b); got != tt.same {
				t.Errorf("skeleton(%q)=%q skeleton(%q)=%q, same=%v want %v",
					tt.a, skeleton(tt.a), tt.b, skeleton(tt.b), got, tt.same)
			}
		})
	}
}

func TestKeywordPattern(t *testing.T) {
	e, err := newKeywordEvaluator([]string{"don't miss out", "risk-free"})
	if err != nil {
		t.Fatalf("newKeywordEvaluator() error: %v", err)
	}

	tests := []struct {
		text string
		want bool
	}{
		{"Don’t  miss out on this", true},
		{"totally RISK-FREE plan", true},
		{"riskfree", false},
		{"dontmissout", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, ok, _ := e.evaluate(&Input{Raw: tt.text})
			if ok != tt.want {
				t.Errorf("evaluate(%q) = %v, want %v", tt.text, ok, tt.want)
			}
		})
	}
}
