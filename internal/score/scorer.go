package score

import (
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/riskwatch/internal/model"
)

// Context is the request context modifiers key on
type Context struct {
	Platform    string
	ContentType string
}

// Result is the arithmetic outcome of scoring one indicator set
type Result struct {
	Raw             float64
	Adjusted        float64
	Normalized      float64
	Level           model.RiskLevel
	Indicators      []model.Indicator // deduplicated, ranked by |weight|
	Recommendations []string
	Modifiers       []model.AppliedModifier
}

// Scorer turns indicators into a bounded score, a risk level and
// recommendations. It holds no mutable state.
type Scorer struct {
	scoring   model.ScoringConfig
	modifiers []model.ModifierRule
	recs      []model.RecommendationRule
	note      string
}

// NewScorer creates a scorer for a validated rule set
func NewScorer(set model.RuleSet) *Scorer {
	return &Scorer{
		scoring:   set.Scoring,
		modifiers: set.Modifiers,
		recs:      set.Recommendations,
		note:      set.InsufficientSignalNote,
	}
}

// Score aggregates indicators under ctx
func (s *Scorer) Score(indicators []model.Indicator, ctx Context) Result {
	unique := dedupe(indicators)

	// 1. Raw score
	var fraud, legit float64
	hasFraud := false
	for _, ind := range unique {
		if ind.Category == model.CategoryFraud {
			fraud += math.Abs(ind.Weight)
			hasFraud = true
		} else {
			legit += math.Abs(ind.Weight)
		}
	}
	raw := fraud - legit

	// 2. Context modifiers
	adjusted, applied := s.applyModifiers(raw, hasFraud, ctx)

	// 3. Saturating normalization
	normalized := s.Normalize(adjusted)

	// 4. Level and recommendations
	level := s.Level(normalized)

	return Result{
		Raw:             raw,
		Adjusted:        adjusted,
		Normalized:      normalized,
		Level:           level,
		Indicators:      rank(unique),
		Recommendations: s.Recommend(level, unique),
		Modifiers:       applied,
	}
}

// applyModifiers multiplies raw by every matching multiplier, then adds at
// most one delta per dimension (largest magnitude, first on ties). Deltas
// only apply when a fraud indicator is present.
func (s *Scorer) applyModifiers(raw float64, hasFraud bool, ctx Context) (float64, []model.AppliedModifier) {
	values := map[model.Dimension]string{
		model.DimensionPlatform:    normalizeContext(ctx.Platform),
		model.DimensionContentType: normalizeContext(ctx.ContentType),
	}

	multiplier := 1.0
	var applied []model.AppliedModifier
	deltas := make(map[model.Dimension]model.ModifierRule)
	var deltaOrder []model.Dimension

	for _, m := range s.modifiers {
		v := values[m.Dimension]
		if v == "" || !strings.EqualFold(m.Value, v) {
			continue
		}
		if m.Multiplier != nil {
			multiplier *= *m.Multiplier
			applied = append(applied, model.AppliedModifier{Dimension: m.Dimension, Value: m.Value, Multiplier: *m.Multiplier})
			continue
		}
		if m.Delta == nil {
			continue
		}
		prev, seen := deltas[m.Dimension]
		if !seen {
			deltaOrder = append(deltaOrder, m.Dimension)
		}
		if !seen || math.Abs(*m.Delta) > math.Abs(*prev.Delta) {
			deltas[m.Dimension] = m
		}
	}

	adjusted := raw * multiplier
	if hasFraud {
		for _, dim := range deltaOrder {
			m := deltas[dim]
			adjusted += *m.Delta
			applied = append(applied, model.AppliedModifier{Dimension: m.Dimension, Value: m.Value, Delta: *m.Delta})
		}
	}
	return adjusted, applied
}

// Normalize maps an adjusted score onto [0, 100] with
// 100 * (1 - e^(-adjusted/scale)), rounded to two decimals
func (s *Scorer) Normalize(adjusted float64) float64 {
	if adjusted <= 0 || s.scoring.Scale <= 0 {
		return 0
	}
	n := 100 * (1 - math.Exp(-adjusted/s.scoring.Scale))
	return math.Min(100, math.Round(n*100)/100)
}

// Level classifies a normalized score using the configured thresholds
func (s *Scorer) Level(normalized float64) model.RiskLevel {
	t := s.scoring.Thresholds
	switch {
	case normalized >= t.Critical:
		return model.RiskCritical
	case normalized >= t.High:
		return model.RiskHigh
	case normalized >= t.Medium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func normalizeContext(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// dedupe keeps the first indicator for each id
func dedupe(indicators []model.Indicator) []model.Indicator {
	seen := make(map[string]bool, len(indicators))
	out := make([]model.Indicator, 0, len(indicators))
	for _, ind := range indicators {
		if seen[ind.ID] {
			continue
		}
		seen[ind.ID] = true
		out = append(out, ind)
	}
	return out
}

// rank orders indicators by |weight| descending, keeping input order on ties
func rank(indicators []model.Indicator) []model.Indicator {
	out := make([]model.Indicator, len(indicators))
	copy(out, indicators)
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	return out
}
