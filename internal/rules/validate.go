package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/riskwatch/internal/model"
)

var defaultWeightBounds = model.WeightBounds{Min: -100, Max: 100}

// compile validates set and builds its evaluators. It fills in defaults
// (weight bounds, empty labels and groups) and returns every problem found.
func compile(set *model.RuleSet) ([]*rule, []string) {
	v := &validator{}

	if set.Version == "" {
		v.add("version is required")
	}

	if set.WeightBounds == (model.WeightBounds{}) {
		set.WeightBounds = defaultWeightBounds
	}
	if !finite(set.WeightBounds.Min) || !finite(set.WeightBounds.Max) {
		v.add("weight_bounds must be finite, got [%v, %v]", set.WeightBounds.Min, set.WeightBounds.Max)
		set.WeightBounds = defaultWeightBounds
	} else if set.WeightBounds.Min > 0 || set.WeightBounds.Max < 0 || set.WeightBounds.Min >= set.WeightBounds.Max {
		v.add("weight_bounds must satisfy min <= 0 <= max and min < max, got [%v, %v]",
			set.WeightBounds.Min, set.WeightBounds.Max)
	}
	v.bounds = set.WeightBounds

	compiled := v.rules(set.Rules)
	v.domainChecks(&set.DomainChecks)
	v.advisorChecks(set.AdvisorChecks)
	v.modifiers(set.Modifiers)
	v.scoring(set.Scoring)
	v.recommendations(set.Recommendations, set.Rules)

	return compiled, v.problems
}

type validator struct {
	bounds   model.WeightBounds
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// weight checks bounds and the sign implied by category
func (v *validator) weight(where string, w float64, category model.Category) {
	if !finite(w) {
		v.add("%s: weight must be a finite number, got %v", where, w)
		return
	}
	if w < v.bounds.Min || w > v.bounds.Max {
		v.add("%s: weight %v outside bounds [%v, %v]", where, w, v.bounds.Min, v.bounds.Max)
	}
	switch category {
	case model.CategoryFraud:
		if w <= 0 {
			v.add("%s: fraud weight must be positive, got %v", where, w)
		}
	case model.CategoryLegitimacy:
		if w >= 0 {
			v.add("%s: legitimacy weight must be negative, got %v", where, w)
		}
	}
}

func (v *validator) rules(defs []model.RuleDefinition) []*rule {
	seen := make(map[string]int, len(defs))
	compiled := make([]*rule, 0, len(defs))

	for i := range defs {
		def := &defs[i]
		where := fmt.Sprintf("rules[%d]", i)
		if def.ID == "" {
			v.add("%s: id is required", where)
		} else {
			where = fmt.Sprintf("rule %q", def.ID)
			if prev, dup := seen[def.ID]; dup {
				v.add("%s: duplicate id (first defined at rules[%d])", where, prev)
			}
			seen[def.ID] = i
		}

		if def.Group == "" {
			def.Group = def.ID
		}
		if def.Label == "" {
			def.Label = def.ID
		}

		if !def.Category.Valid() {
			v.add("%s: unknown category %q", where, def.Category)
		}
		if def.AppliesTo != model.TargetText && def.AppliesTo != model.TargetURL {
			v.add("%s: applies_to must be text or url, got %q", where, def.AppliesTo)
		}
		v.weight(where, def.Weight, def.Category)
		if def.Numeric != nil && !finite(def.Numeric.Above) {
			v.add("%s: numeric threshold must be a finite number, got %v", where, def.Numeric.Above)
			continue
		}

		eval, err := newEvaluator(*def)
		if err != nil {
			v.add("%s: %v", where, err)
			continue
		}
		compiled = append(compiled, &rule{def: *def, eval: eval})
	}
	return compiled
}

// domainChecks also lower-cases flag_weights keys, since record flags are
// lower-cased at load
func (v *validator) domainChecks(d *model.DomainChecks) {
	v.weight("domain_checks.unknown_weight", d.UnknownWeight, model.CategoryFraud)
	v.weight("domain_checks.new_weight", d.NewWeight, model.CategoryFraud)
	v.weight("domain_checks.established_weight", d.EstablishedWeight, model.CategoryLegitimacy)

	if d.NewWindowDays <= 0 {
		v.add("domain_checks.new_window_days must be positive, got %d", d.NewWindowDays)
	}
	if d.EstablishedDays <= d.NewWindowDays {
		v.add("domain_checks.established_days (%d) must exceed new_window_days (%d)", d.EstablishedDays, d.NewWindowDays)
	}
	if len(d.FlagWeights) == 0 {
		return
	}
	folded := make(map[string]float64, len(d.FlagWeights))
	for flag, w := range d.FlagWeights {
		where := fmt.Sprintf("domain_checks.flag_weights.%s", flag)
		key := strings.ToLower(strings.TrimSpace(flag))
		if key == "" {
			v.add("%s: flag name is required", where)
			continue
		}
		if _, dup := folded[key]; dup {
			v.add("%s: duplicate flag %q after lower-casing", where, key)
			continue
		}
		if w == 0 {
			v.add("%s: weight must be non-zero", where)
			continue
		}
		v.weight(where, w, categoryOf(w))
		folded[key] = w
	}
	d.FlagWeights = folded
}

func (v *validator) advisorChecks(a model.AdvisorChecks) {
	if !(a.SimilarityFloor > 0 && a.SimilarityFloor <= 1) {
		v.add("advisor_checks.similarity_floor must be in (0,1], got %v", a.SimilarityFloor)
	}
	v.weight("advisor_checks.active_weight", a.ActiveWeight, model.CategoryLegitimacy)
	v.weight("advisor_checks.suspended_weight", a.SuspendedWeight, model.CategoryFraud)
	v.weight("advisor_checks.revoked_weight", a.RevokedWeight, model.CategoryFraud)
	v.weight("advisor_checks.unknown_status_weight", a.UnknownStatusWeight, model.CategoryFraud)
	v.weight("advisor_checks.not_found_weight", a.NotFoundWeight, model.CategoryFraud)
	v.weight("advisor_checks.approximate_name_weight", a.ApproximateNameWeight, model.CategoryFraud)
}

func (v *validator) modifiers(mods []model.ModifierRule) {
	seen := make(map[string]bool, len(mods))
	for i, m := range mods {
		where := fmt.Sprintf("modifiers[%d]", i)
		if m.Dimension != model.DimensionPlatform && m.Dimension != model.DimensionContentType {
			v.add("%s: dimension must be platform or content_type, got %q", where, m.Dimension)
		}
		if m.Value == "" {
			v.add("%s: value is required", where)
		}
		key := string(m.Dimension) + "=" + m.Value
		if seen[key] {
			v.add("%s: duplicate modifier for %s", where, key)
		}
		seen[key] = true

		switch {
		case m.Multiplier == nil && m.Delta == nil:
			v.add("%s: one of multiplier or delta is required", where)
		case m.Multiplier != nil && m.Delta != nil:
			v.add("%s: multiplier and delta are mutually exclusive", where)
		case m.Multiplier != nil && !finite(*m.Multiplier):
			v.add("%s: multiplier must be a finite number, got %v", where, *m.Multiplier)
		case m.Multiplier != nil && *m.Multiplier <= 0:
			v.add("%s: multiplier must be positive, got %v", where, *m.Multiplier)
		case m.Delta != nil && !finite(*m.Delta):
			v.add("%s: delta must be a finite number, got %v", where, *m.Delta)
		case m.Delta != nil && *m.Delta <= 0:
			v.add("%s: delta must be positive, got %v", where, *m.Delta)
		case m.Delta != nil && (*m.Delta < v.bounds.Min || *m.Delta > v.bounds.Max):
			v.add("%s: delta %v outside bounds [%v, %v]", where, *m.Delta, v.bounds.Min, v.bounds.Max)
		}
	}
}

func (v *validator) scoring(s model.ScoringConfig) {
	if !finite(s.Scale) || s.Scale <= 0 {
		v.add("scoring.scale must be a positive finite number, got %v", s.Scale)
	}
	t := s.Thresholds
	if !(t.Medium > 0 && t.Medium < t.High && t.High < t.Critical && t.Critical <= 100) {
		v.add("scoring.thresholds must satisfy 0 < medium < high < critical <= 100, got %v/%v/%v",
			t.Medium, t.High, t.Critical)
	}
}

func (v *validator) recommendations(recs []model.RecommendationRule, defs []model.RuleDefinition) {
	known := make(map[string]bool, len(defs)+len(model.BuiltinGroups))
	for _, g := range model.BuiltinGroups {
		known[g] = true
	}
	for _, d := range defs {
		known[d.Group] = true
	}

	seen := make(map[string]bool, len(recs))
	for i, r := range recs {
		where := fmt.Sprintf("recommendations[%d]", i)
		if r.ID != "" {
			where = fmt.Sprintf("recommendation %q", r.ID)
			if seen[r.ID] {
				v.add("%s: duplicate id", where)
			}
			seen[r.ID] = true
		} else {
			v.add("%s: id is required", where)
		}

		if r.MinLevel.Rank() < 0 {
			v.add("%s: unknown min_level %q", where, r.MinLevel)
		}
		if r.MaxLevel != "" {
			if r.MaxLevel.Rank() < 0 {
				v.add("%s: unknown max_level %q", where, r.MaxLevel)
			} else if r.MaxLevel.Rank() < r.MinLevel.Rank() {
				v.add("%s: max_level %q is below min_level %q", where, r.MaxLevel, r.MinLevel)
			}
		}
		for _, g := range r.Groups {
			if !known[g] {
				v.add("%s: unknown group %q", where, g)
			}
		}
		if r.Text == "" {
			v.add("%s: text is required", where)
		}
	}
}

// finite rejects NaN and ±Inf, which every comparison above lets through
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func categoryOf(w float64) model.Category {
	if w < 0 {
		return model.CategoryLegitimacy
	}
	return model.CategoryFraud
}
