package advisor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/reftable"
)

// Match methods
const (
	MethodRegistration = "registration"
	MethodExactName    = "exact_name"
	MethodFuzzyName    = "fuzzy_name"
	MethodNone         = "none"
)

// Indicator ids emitted by the matcher
const (
	IndicatorActive        = "advisor_active"
	IndicatorSuspended     = "advisor_suspended"
	IndicatorRevoked       = "advisor_revoked"
	IndicatorStatusUnknown = "advisor_status_unknown"
	IndicatorApproximate   = "advisor_approximate_name"
	IndicatorUnverifiable  = "advisor_unverifiable"
)

// Result is the matcher's verdict for one query
type Result struct {
	Match      *model.AdvisorRecord
	Confidence float64
	Method     string
	Indicators []model.Indicator
}

// Matcher resolves a claimed advisor identity against the registry
type Matcher struct {
	tables *reftable.Tables
	checks model.AdvisorChecks
}

// NewMatcher creates a matcher over tables using the catalog's advisor checks
func NewMatcher(tables *reftable.Tables, checks model.AdvisorChecks) *Matcher {
	return &Matcher{tables: tables, checks: checks}
}

// Match resolves name and/or registration number. A registration number,
// when given, is authoritative: only an exact lookup is tried. Otherwise the
// name is matched exactly (case-insensitive), then fuzzily. Not finding a
// record is a result, not an error.
func (m *Matcher) Match(name, reg string) (Result, error) {
	name = strings.TrimSpace(name)
	reg = strings.TrimSpace(reg)
	if name == "" && reg == "" {
		return Result{}, model.NewInvalidInput("advisor", "name or registration number is required")
	}

	if reg != "" {
		if rec, ok := m.tables.AdvisorByRegistration(reg); ok {
			return m.found(rec, 1.0, MethodRegistration), nil
		}
		return m.notFound(reftable.NormalizeRegistration(reg)), nil
	}

	if exact := m.tables.AdvisorsByName(name); len(exact) > 0 {
		// AdvisorsByName is ordered by registration number
		return m.found(exact[0], 1.0, MethodExactName), nil
	}

	if rec, score, ok := m.fuzzy(name); ok {
		// Same tokens in another order or with punctuation
		if score == 1 {
			return m.found(rec, 1.0, MethodExactName), nil
		}
		res := m.found(rec, score, MethodFuzzyName)
		res.Indicators = append(res.Indicators, model.Indicator{
			ID:       IndicatorApproximate,
			Category: model.CategoryFraud,
			Group:    model.GroupAdvisorApproximate,
			Label:    "Claimed name only approximately matches the registered name",
			Weight:   m.checks.ApproximateNameWeight,
			Evidence: fmt.Sprintf("%q ~ %q (similarity %.2f)", name, rec.Name, score),
		})
		return res, nil
	}

	return m.notFound(name), nil
}

// fuzzy returns the most similar registered name at or above the floor.
// Ties go to the smallest registration number.
func (m *Matcher) fuzzy(name string) (model.AdvisorRecord, float64, bool) {
	query := NormalizeName(name)
	if query == "" {
		return model.AdvisorRecord{}, 0, false
	}

	var best model.AdvisorRecord
	bestScore := -1.0
	// Advisors() is sorted by registration number, so strict > keeps the smallest on ties
	for _, rec := range m.tables.Advisors() {
		score := Similarity(query, NormalizeName(rec.Name))
		if score > bestScore {
			best, bestScore = rec, score
		}
	}
	if bestScore < m.checks.SimilarityFloor {
		return model.AdvisorRecord{}, 0, false
	}
	return best, bestScore, true
}

func (m *Matcher) found(rec model.AdvisorRecord, confidence float64, method string) Result {
	res := Result{
		Match:      &rec,
		Confidence: confidence,
		Method:     method,
	}
	evidence := fmt.Sprintf("%s %s (%s)", rec.RegistrationNumber, rec.Name, rec.Status)

	switch rec.Status {
	case model.StatusActive:
		res.Indicators = append(res.Indicators, model.Indicator{
			ID:       IndicatorActive,
			Category: model.CategoryLegitimacy,
			Group:    model.GroupAdvisorRegistered,
			Label:    "Advisor is registered and active",
			Weight:   m.checks.ActiveWeight,
			Evidence: evidence,
		})
	case model.StatusSuspended:
		res.Indicators = append(res.Indicators, model.Indicator{
			ID:       IndicatorSuspended,
			Category: model.CategoryFraud,
			Group:    model.GroupAdvisorStatus,
			Label:    "Advisor registration is suspended",
			Weight:   m.checks.SuspendedWeight,
			Evidence: evidence,
		})
	case model.StatusRevoked:
		res.Indicators = append(res.Indicators, model.Indicator{
			ID:       IndicatorRevoked,
			Category: model.CategoryFraud,
			Group:    model.GroupAdvisorStatus,
			Label:    "Advisor registration has been revoked",
			Weight:   m.checks.RevokedWeight,
			Evidence: evidence,
		})
	default:
		res.Indicators = append(res.Indicators, model.Indicator{
			ID:       IndicatorStatusUnknown,
			Category: model.CategoryFraud,
			Group:    model.GroupAdvisorStatus,
			Label:    "Advisor registration status is unknown",
			Weight:   m.checks.UnknownStatusWeight,
			Evidence: evidence,
		})
	}
	return res
}

func (m *Matcher) notFound(query string) Result {
	return Result{
		Confidence: 0,
		Method:     MethodNone,
		Indicators: []model.Indicator{{
			ID:       IndicatorUnverifiable,
			Category: model.CategoryFraud,
			Group:    model.GroupAdvisorUnverifiable,
			Label:    "No matching advisor in the regulatory registry",
			Weight:   m.checks.NotFoundWeight,
			Evidence: query,
		}},
	}
}

// NormalizeName lowercases, drops punctuation and sorts the name's tokens,
// so "Smith, John" and "john smith" compare equal
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == ',' || r == '.':
			b.WriteRune(' ')
		}
	}
	tokens := strings.Fields(b.String())
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in
// runes and rounded to 4 decimals. Two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if n := len([]rune(b)); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return math.Round((1-float64(d)/float64(maxLen))*1e4) / 1e4
}
