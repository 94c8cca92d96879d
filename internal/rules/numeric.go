package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskwatch/internal/model"
)

// MetricPercentReturn is the annualized percentage return promised in text
const MetricPercentReturn = "percent_return"

// contextWindow is how far around a percentage the return vocabulary may appear
const contextWindow = 40

var (
	// 12%, 1,200 %, 4.5 percent, 30 per cent, then an optional period
	percentClaimPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(?:%|percent\b|per\s+cent\b)` +
		`(?:[^\n.!?]{0,20}?\b(?:` +
		`(?:a|per|each|every)\s+(day|week|month|year|annum)` +
		`|(daily|weekly|monthly|yearly|annually|annual|p\.a\.?)` +
		`|(?:in|within)\s+(\d{1,4})\s+(hours?|days?|weeks?|months?|years?)` +
		`)\b)?`)

	returnContextPattern = regexp.MustCompile(`(?i)\b(?:returns?|profits?|gains?|income|yields?|interest|roi|payouts?|growth|earn(?:ings)?|make|double)\b`)

	periodsPerYear = map[string]decimal.Decimal{
		"hour":  decimal.NewFromInt(365 * 24),
		"day":   decimal.NewFromInt(365),
		"week":  decimal.NewFromInt(52),
		"month": decimal.NewFromInt(12),
		"year":  decimal.NewFromInt(1),
	}

	adverbPeriods = map[string]string{
		"daily":    "day",
		"weekly":   "week",
		"monthly":  "month",
		"yearly":   "year",
		"annually": "year",
		"annual":   "year",
		"p.a.":     "year",
		"p.a":      "year",
		"annum":    "year",
	}
)

// returnClaim is one parsed percentage promise
type returnClaim struct {
	span       string
	annualized decimal.Decimal
}

// numericEvaluator fires when a parsed metric exceeds a threshold
type numericEvaluator struct {
	metric string
	above  decimal.Decimal
}

func newNumericEvaluator(spec *model.NumericSpec) (*numericEvaluator, error) {
	if spec == nil {
		return nil, fmt.Errorf("numeric rule needs a numeric block")
	}
	if spec.Metric != MetricPercentReturn {
		return nil, fmt.Errorf("unknown numeric metric %q", spec.Metric)
	}
	if spec.Above < 0 {
		return nil, fmt.Errorf("numeric threshold must not be negative, got %v", spec.Above)
	}
	return &numericEvaluator{
		metric: spec.Metric,
		above:  decimal.NewFromFloat(spec.Above),
	}, nil
}

func (e *numericEvaluator) evaluate(in *Input) (string, bool, error) {
	text := in.Raw
	if text == "" {
		text = in.Normalized
	}

	best := -1
	claims := parseReturnClaims(text)
	for i, c := range claims {
		if !c.annualized.GreaterThan(e.above) {
			continue
		}
		if best < 0 || c.annualized.GreaterThan(claims[best].annualized) {
			best = i
		}
	}
	if best < 0 {
		return "", false, nil
	}
	return claims[best].span, true, nil
}

// parseReturnClaims finds every percentage in text that is framed as a return
// and annualizes it with simple (non-compounding) scaling. A percentage with
// no period is taken at face value. Claims that cannot be parsed are skipped.
func parseReturnClaims(text string) []returnClaim {
	var claims []returnClaim

	for _, m := range percentClaimPattern.FindAllStringSubmatchIndex(text, -1) {
		span := text[m[0]:m[1]]
		if !hasReturnContext(text, m[0], m[1]) {
			continue
		}

		value, err := decimal.NewFromString(strings.ReplaceAll(text[m[2]:m[3]], ",", ""))
		if err != nil {
			continue
		}

		factor, ok := annualizationFactor(text, m)
		if !ok {
			continue
		}

		claims = append(claims, returnClaim{
			span:       strings.TrimSpace(span),
			annualized: value.Mul(factor),
		})
	}
	return claims
}

// annualizationFactor reads the optional period groups of a percentClaimPattern match
func annualizationFactor(text string, m []int) (decimal.Decimal, bool) {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return strings.ToLower(text[m[2*i]:m[2*i+1]])
	}

	if unit := group(2); unit != "" {
		if p, ok := adverbPeriods[unit]; ok {
			unit = p
		}
		return periodsPerYear[unit], true
	}

	if adverb := group(3); adverb != "" {
		return periodsPerYear[adverbPeriods[adverb]], true
	}

	if count := group(4); count != "" {
		n, err := decimal.NewFromString(count)
		if err != nil || n.IsZero() {
			return decimal.Decimal{}, false
		}
		unit := strings.TrimSuffix(group(5), "s")
		perYear, ok := periodsPerYear[unit]
		if !ok {
			return decimal.Decimal{}, false
		}
		return perYear.Div(n), true
	}

	return decimal.NewFromInt(1), true
}

func hasReturnContext(text string, start, end int) bool {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return returnContextPattern.MatchString(text[lo:hi])
}
