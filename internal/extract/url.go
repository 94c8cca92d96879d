package extract

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// URLExtractor runs the catalog's URL rules and the domain reference checks
type URLExtractor struct {
	catalog *rules.Catalog
	tables  *reftable.Tables
}

// NewURLExtractor creates a URL extractor
func NewURLExtractor(catalog *rules.Catalog, tables *reftable.Tables) *URLExtractor {
	return &URLExtractor{catalog: catalog, tables: tables}
}

// ParseURL validates and decomposes a submitted URL. A missing scheme
// defaults to http; only http and https are accepted.
func ParseURL(raw string) (*rules.URLParts, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, model.NewInvalidInput("url", "must not be empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, model.NewInvalidInput("url", "malformed: "+err.Error())
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, model.NewInvalidInput("url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nil, model.NewInvalidInput("url", "host is required")
	}

	parts := &rules.URLParts{
		Raw:    raw,
		Scheme: scheme,
		Path:   u.Path,
		Query:  u.RawQuery,
	}

	if ip := net.ParseIP(host); ip != nil {
		parts.Host = host
		parts.UnicodeHost = host
		parts.IsIP = true
		return parts, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, model.NewInvalidInput("url", "invalid host: "+err.Error())
	}
	parts.Host = ascii
	parts.UnicodeHost = ascii
	if display, err := idna.Display.ToUnicode(ascii); err == nil {
		parts.UnicodeHost = display
	}

	parts.Suffix, _ = publicsuffix.PublicSuffix(ascii)
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii); err == nil {
		parts.Registrable = registrable
	} else {
		parts.Registrable = ascii
	}
	if sub := strings.TrimSuffix(strings.TrimSuffix(ascii, parts.Registrable), "."); sub != "" {
		parts.Subdomains = strings.Split(sub, ".")
	}

	return parts, nil
}

// Extract parses raw, matches the URL rules and checks the domain against
// the reference table. It does not score.
func (e *URLExtractor) Extract(raw string) (Result, *rules.URLParts, error) {
	parts, err := ParseURL(raw)
	if err != nil {
		return Result{}, nil, err
	}

	in := &rules.Input{Raw: parts.Raw, Normalized: normalizedURL(parts), URL: parts}
	indicators, failures := e.catalog.Match(in, model.TargetURL)
	indicators = append(indicators, e.domainIndicators(parts)...)

	return Result{Indicators: indicators, Failures: failures}, parts, nil
}

// normalizedURL is the lowercased URL with a display host and unescaped path
func normalizedURL(p *rules.URLParts) string {
	path := p.Path
	query := p.Query
	if q, err := url.QueryUnescape(query); err == nil {
		query = q
	}
	s := p.Scheme + "://" + p.UnicodeHost + path
	if query != "" {
		s += "?" + query
	}
	return strings.ToLower(s)
}

// domainIndicators applies the catalog's domain checks. IP hosts are not
// looked up.
func (e *URLExtractor) domainIndicators(p *rules.URLParts) []model.Indicator {
	if p.IsIP || e.tables == nil {
		return nil
	}
	checks := e.catalog.DomainChecks()

	rec, ok := e.tables.Domain(p.Host)
	if !ok {
		return []model.Indicator{{
			ID:       model.GroupUnknownDomain,
			Category: model.CategoryFraud,
			Group:    model.GroupUnknownDomain,
			Label:    "Domain is not in the reference table",
			Weight:   checks.UnknownWeight,
			Evidence: p.Registrable,
		}}
	}

	var out []model.Indicator
	asOf := e.tables.AsOf()
	age, known := rec.AgeDays(asOf)
	switch {
	case !known:
	case age < checks.NewWindowDays:
		out = append(out, model.Indicator{
			ID:       model.GroupNewDomain,
			Category: model.CategoryFraud,
			Group:    model.GroupNewDomain,
			Label:    fmt.Sprintf("Domain registered less than %d days ago", checks.NewWindowDays),
			Weight:   checks.NewWeight,
			Evidence: newDomainEvidence(rec, asOf, age),
		})
	case age >= checks.EstablishedDays:
		out = append(out, model.Indicator{
			ID:       model.GroupEstablishedDomain,
			Category: model.CategoryLegitimacy,
			Group:    model.GroupEstablishedDomain,
			Label:    "Long-established domain",
			Weight:   checks.EstablishedWeight,
			Evidence: fmt.Sprintf("%s created %s", rec.Domain, rec.CreationDate.Format(reftable.DateLayout)),
		})
	}

	for _, flag := range rec.Flags {
		w, ok := checks.FlagWeights[flag]
		if !ok || w == 0 {
			continue
		}
		category := model.CategoryFraud
		if w < 0 {
			category = model.CategoryLegitimacy
		}
		out = append(out, model.Indicator{
			ID:       model.GroupDomainFlag + ":" + flag,
			Category: category,
			Group:    model.GroupDomainFlag,
			Label:    fmt.Sprintf("Domain is flagged %q in the reference table", flag),
			Weight:   w,
			Evidence: rec.Domain,
		})
	}
	return out
}

func newDomainEvidence(rec model.DomainRecord, asOf time.Time, age int) string {
	created := rec.CreationDate.Format(reftable.DateLayout)
	if age < 0 {
		return fmt.Sprintf("%s created %s, after the reference date %s", rec.Domain, created, asOf.Format(reftable.DateLayout))
	}
	return fmt.Sprintf("%s created %s (%d days before %s)", rec.Domain, created, age, asOf.Format(reftable.DateLayout))
}
