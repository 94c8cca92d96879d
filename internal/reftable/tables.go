package reftable

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/riskwatch/internal/model"
)

// DateLayout is the date format used by every reference source
const DateLayout = "2006-01-02"

// Tables is an immutable snapshot of the advisor registry and the domain
// table. It exposes lookups only and is safe for concurrent use.
type Tables struct {
	advisors    map[string]model.AdvisorRecord
	byName      map[string][]string // folded name -> registration numbers, sorted
	sorted      []model.AdvisorRecord
	domains     map[string]model.DomainRecord
	asOf        time.Time
	fingerprint string
}

// New validates and indexes the given records. Duplicate registration
// numbers or domains are reported together in a *model.CatalogError.
func New(source string, advisors []model.AdvisorRecord, domains []model.DomainRecord, asOf time.Time) (*Tables, error) {
	var problems []string

	t := &Tables{
		advisors: make(map[string]model.AdvisorRecord, len(advisors)),
		byName:   make(map[string][]string),
		domains:  make(map[string]model.DomainRecord, len(domains)),
		asOf:     asOf.UTC().Truncate(24 * time.Hour),
	}

	for i, a := range advisors {
		a.RegistrationNumber = NormalizeRegistration(a.RegistrationNumber)
		a.Name = strings.TrimSpace(a.Name)
		switch {
		case a.RegistrationNumber == "":
			problems = append(problems, fmt.Sprintf("advisors[%d]: registration number is required", i))
			continue
		case a.Name == "":
			problems = append(problems, fmt.Sprintf("advisor %s: name is required", a.RegistrationNumber))
			continue
		}
		if _, dup := t.advisors[a.RegistrationNumber]; dup {
			problems = append(problems, fmt.Sprintf("advisor %s: duplicate registration number", a.RegistrationNumber))
			continue
		}
		if a.Status == "" {
			a.Status = model.StatusUnknown
		}
		t.advisors[a.RegistrationNumber] = a
		key := FoldName(a.Name)
		t.byName[key] = append(t.byName[key], a.RegistrationNumber)
	}

	for i, d := range domains {
		d.Domain = NormalizeHost(d.Domain)
		if d.Domain == "" {
			problems = append(problems, fmt.Sprintf("domains[%d]: domain is required", i))
			continue
		}
		if _, dup := t.domains[d.Domain]; dup {
			problems = append(problems, fmt.Sprintf("domain %s: duplicate entry", d.Domain))
			continue
		}
		t.domains[d.Domain] = d
	}

	if len(problems) > 0 {
		return nil, &model.CatalogError{Source: source, Problems: problems}
	}

	for _, regs := range t.byName {
		sort.Strings(regs)
	}
	t.sorted = make([]model.AdvisorRecord, 0, len(t.advisors))
	for _, a := range t.advisors {
		t.sorted = append(t.sorted, a)
	}
	sort.Slice(t.sorted, func(i, j int) bool {
		return t.sorted[i].RegistrationNumber < t.sorted[j].RegistrationNumber
	})
	t.fingerprint = t.computeFingerprint()

	return t, nil
}

// AdvisorByRegistration looks up an advisor by registration number
func (t *Tables) AdvisorByRegistration(reg string) (model.AdvisorRecord, bool) {
	a, ok := t.advisors[NormalizeRegistration(reg)]
	return a, ok
}

// AdvisorsByName returns advisors whose name matches case-insensitively,
// ordered by registration number
func (t *Tables) AdvisorsByName(name string) []model.AdvisorRecord {
	regs := t.byName[FoldName(name)]
	out := make([]model.AdvisorRecord, 0, len(regs))
	for _, r := range regs {
		out = append(out, t.advisors[r])
	}
	return out
}

// Advisors returns every advisor ordered by registration number
func (t *Tables) Advisors() []model.AdvisorRecord {
	return t.sorted
}

// Domain looks up host exactly, then by its registrable domain (eTLD+1)
func (t *Tables) Domain(host string) (model.DomainRecord, bool) {
	host = NormalizeHost(host)
	if host == "" {
		return model.DomainRecord{}, false
	}
	if d, ok := t.domains[host]; ok {
		return d, true
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || registrable == host {
		return model.DomainRecord{}, false
	}
	d, ok := t.domains[registrable]
	return d, ok
}

// AsOf is the reference date domain ages are computed against
func (t *Tables) AsOf() time.Time { return t.asOf }

// Fingerprint is a digest of every record and the as-of date.
// Equal fingerprints mean lookups return equal results.
func (t *Tables) Fingerprint() string { return t.fingerprint }

// Counts returns the number of advisors and domains
func (t *Tables) Counts() (advisors, domains int) {
	return len(t.advisors), len(t.domains)
}

func (t *Tables) computeFingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "asof=%s\n", t.asOf.Format(DateLayout))
	for _, a := range t.sorted {
		fmt.Fprintf(h, "a|%s|%s|%s|%s|%s\n", a.RegistrationNumber, a.Name, a.Status, a.RegisteredEntity, a.Jurisdiction)
	}

	names := make([]string, 0, len(t.domains))
	for name := range t.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := t.domains[name]
		created := ""
		if !d.CreationDate.IsZero() {
			created = d.CreationDate.Format(DateLayout)
		}
		fmt.Fprintf(h, "d|%s|%s|%s|%s|%s\n", d.Domain, d.Registrar, created, d.Country, strings.Join(d.Flags, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeRegistration upper-cases and trims a registration number
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}

// NormalizeHost lowercases a host and strips a trailing dot and port
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

// FoldName is the case-insensitive key used for exact name lookups
func FoldName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
