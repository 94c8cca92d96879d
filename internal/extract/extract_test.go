package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
)

var testAsOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func defaultCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	c, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default() error: %v", err)
	}
	return c
}

func defaultTables(t *testing.T) *reftable.Tables {
	t.Helper()
	tables, err := reftable.DefaultSource{AsOf: testAsOf}.Load(context.Background())
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	return tables
}

func ids(indicators []model.Indicator) []string {
	out := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		out = append(out, ind.ID)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestTextExtractor_InvalidInput(t *testing.T) {
	e := NewTextExtractor(defaultCatalog(t), 64)

	tests := []struct {
		desc string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "  \n\t "},
		{"over the byte cap", strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := e.Extract(tt.text, "", "")
			if !errors.Is(err, model.ErrInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
}

func TestTextExtractor_Adapters(t *testing.T) {
	e := NewTextExtractor(defaultCatalog(t), 0)

	tests := []struct {
		desc     string
		text     string
		platform string
		adapter  string
		fired    []string
		notFired []string
	}{
		{
			desc:    "plain text",
			text:    "Act now, limited slots for our premium tips",
			adapter: "generic",
			fired:   []string{"urgency_language"},
		},
		{
			desc: "html skips scripts",
			text: `<html><head><title>x</title></head><body>
				<p>Guaranteed returns every month!</p>
				<script>var s = "act now";</script>
				<a href="http://free-money-now.net/join">Join</a>
			</body></html>`,
			adapter:  "html",
			fired:    []string{"guaranteed_returns"},
			notFired: []string{"urgency_language"},
		},
		{
			desc: "email keeps quoted reply",
			text: "From: desk@alpha-signals.example\r\n" +
				"To: you@example.com\r\n" +
				"Subject: Wire transfer needed today\r\n" +
				"\r\n" +
				"Please complete the registration fee.\r\n" +
				"> Earlier you said: act now\r\n",
			adapter: "email",
			fired:   []string{"payment_pressure", "urgency_language"},
		},
		{
			desc:     "email platform keeps signature text",
			text:     "Thanks for the call.\n-- \nRegards, act now desk",
			platform: "email",
			adapter:  "email",
			fired:    []string{"urgency_language"},
		},
		{
			desc:     "forwarded pitch made only of quoted lines",
			text:     "> GUARANTEED 500% returns in 30 days! Act now, limited slots!",
			platform: "email",
			adapter:  "email",
			fired:    []string{"urgency_language", "unrealistic_return"},
		},
		{
			desc:     "pitch after a leading separator",
			text:     "--\nGUARANTEED 500% returns in 30 days! Act now, limited slots!",
			platform: "email",
			adapter:  "email",
			fired:    []string{"urgency_language", "unrealistic_return"},
		},
		{
			desc:     "nested quote markers",
			text:     "Hi,\n>> > Act now before the window closes",
			platform: "email",
			adapter:  "email",
			fired:    []string{"urgency_language"},
		},
		{
			desc:    "markup without visible text falls back to the raw body",
			text:    "<html><body><script>alert('act now')</script></body></html>",
			adapter: "generic",
			fired:   []string{"urgency_language"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			res, err := e.Extract(tt.text, tt.platform, "")
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if res.Adapter != tt.adapter {
				t.Errorf("adapter = %s, want %s", res.Adapter, tt.adapter)
			}
			got := ids(res.Indicators)
			for _, id := range tt.fired {
				if !contains(got, id) {
					t.Errorf("expected %s to fire, got %v", id, got)
				}
			}
			for _, id := range tt.notFired {
				if contains(got, id) {
					t.Errorf("expected %s not to fire", id)
				}
			}
		})
	}
}

func TestTextExtractor_NormalizedFallback(t *testing.T) {
	e := NewTextExtractor(defaultCatalog(t), 0)

	// Fullwidth letters only match after NFKC
	res, err := e.Extract("ＡＣＴ ＮＯＷ before it closes", "", "")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !contains(ids(res.Indicators), "urgency_language") {
		t.Errorf("expected urgency_language via normalized text, got %v", ids(res.Indicators))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Don’t  Miss\tOUT", "don't miss out"},
		{"ＧＵＡＲＡＮＴＥＥＤ", "guaranteed"},
		{"risk—free “profits”", `risk-free "profits"`},
		{"STRASSE Straße", "strasse strasse"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		desc string
		raw  string
		want rules.URLParts
	}{
		{
			desc: "scheme defaults to http",
			raw:  "example.com/path?q=1",
			want: rules.URLParts{Raw: "http://example.com/path?q=1", Scheme: "http", Host: "example.com", UnicodeHost: "example.com",
				Registrable: "example.com", Suffix: "com", Path: "/path", Query: "q=1"},
		},
		{
			desc: "multi-label suffix",
			raw:  "https://a.b.Example.co.uk",
			want: rules.URLParts{Raw: "https://a.b.Example.co.uk", Scheme: "https", Host: "a.b.example.co.uk", UnicodeHost: "a.b.example.co.uk",
				Registrable: "example.co.uk", Suffix: "co.uk", Subdomains: []string{"a", "b"}},
		},
		{
			desc: "ip host with port",
			raw:  "http://192.168.0.1:8080/x",
			want: rules.URLParts{Raw: "http://192.168.0.1:8080/x", Scheme: "http", Host: "192.168.0.1", UnicodeHost: "192.168.0.1",
				Path: "/x", IsIP: true},
		},
		{
			desc: "internationalized host",
			raw:  "https://münchen.de/",
			want: rules.URLParts{Raw: "https://münchen.de/", Scheme: "https", Host: "xn--mnchen-3ya.de", UnicodeHost: "münchen.de",
				Registrable: "xn--mnchen-3ya.de", Suffix: "de", Path: "/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if err != nil {
				t.Fatalf("ParseURL() error: %v", err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParseURL(%q) =\n%+v\nwant\n%+v", tt.raw, *got, tt.want)
			}
		})
	}
}

func TestParseURL_Invalid(t *testing.T) {
	tests := []struct {
		desc string
		raw  string
	}{
		{"empty", "   "},
		{"unsupported scheme", "ftp://files.example.com"},
		{"javascript scheme", "javascript://alert(1)"},
		{"no host", "http://"},
		{"space in host", "http://exa mple.com"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := ParseURL(tt.raw); !errors.Is(err, model.ErrInvalidInput) {
				t.Errorf("expected invalid input error, got %v", err)
			}
		})
	}
}

func TestURLExtractor_DomainChecks(t *testing.T) {
	e := NewURLExtractor(defaultCatalog(t), defaultTables(t))

	tests := []struct {
		desc     string
		raw      string
		fired    []string
		notFired []string
	}{
		{
			desc:     "known fraud domain",
			raw:      "http://bitcoin-doubler.com/",
			fired:    []string{"new_domain", "domain_flag:known_fraud"},
			notFired: []string{"unknown_domain", "established_domain"},
		},
		{
			desc:     "regulator subdomain",
			raw:      "https://www.sebi.gov.in/",
			fired:    []string{"established_domain", "domain_flag:regulator"},
			notFired: []string{"lookalike_brand", "unknown_domain"},
		},
		{
			desc:     "unknown domain",
			raw:      "https://unknown-broker.example.org/",
			fired:    []string{"unknown_domain"},
			notFired: []string{"new_domain"},
		},
		{
			desc:     "ip hosts skip the lookup",
			raw:      "http://10.0.0.7/",
			fired:    []string{"ip_host"},
			notFired: []string{"unknown_domain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			res, _, err := e.Extract(tt.raw)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			got := ids(res.Indicators)
			for _, id := range tt.fired {
				if !contains(got, id) {
					t.Errorf("expected %s, got %v", id, got)
				}
			}
			for _, id := range tt.notFired {
				if contains(got, id) {
					t.Errorf("expected no %s, got %v", id, got)
				}
			}
		})
	}
}

func TestURLExtractor_CreationDates(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	tables, err := reftable.New("test", nil, []model.DomainRecord{
		{Domain: "future-gains.com", CreationDate: day(2024, 7, 15)},
		{Domain: "fresh-gains.com", CreationDate: day(2024, 5, 20)},
		{Domain: "old-broker.com", CreationDate: day(2010, 1, 1)},
		{Domain: "nodate-gains.com"},
	}, testAsOf)
	if err != nil {
		t.Fatalf("reftable.New() error: %v", err)
	}
	e := NewURLExtractor(defaultCatalog(t), tables)

	tests := []struct {
		desc     string
		raw      string
		fired    []string
		notFired []string
	}{
		{"created after the reference date", "https://future-gains.com/", []string{"new_domain"}, []string{"established_domain"}},
		{"created inside the window", "https://fresh-gains.com/", []string{"new_domain"}, []string{"established_domain"}},
		{"long established", "https://old-broker.com/", []string{"established_domain"}, []string{"new_domain"}},
		{"unknown creation date", "https://nodate-gains.com/", nil, []string{"new_domain", "established_domain", "unknown_domain"}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			res, _, err := e.Extract(tt.raw)
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			got := ids(res.Indicators)
			for _, id := range tt.fired {
				if !contains(got, id) {
					t.Errorf("expected %s, got %v", id, got)
				}
			}
			for _, id := range tt.notFired {
				if contains(got, id) {
					t.Errorf("expected no %s, got %v", id, got)
				}
			}
		})
	}
}

func TestURLExtractor_MixedCaseFlagWeights(t *testing.T) {
	data := strings.Replace(string(rules.DefaultYAML()), "    known_fraud: 60\n", "    Known_Fraud: 60\n", 1)
	catalog, err := rules.Parse([]byte(data), "mixed-case")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	e := NewURLExtractor(catalog, defaultTables(t))

	res, _, err := e.Extract("http://bitcoin-doubler.com/")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !contains(ids(res.Indicators), "domain_flag:known_fraud") {
		t.Errorf("expected domain_flag:known_fraud, got %v", ids(res.Indicators))
	}
}
