package score

import "github.com/ppiankov/riskwatch/internal/model"

// Recommend returns the recommendation texts for a level and the groups of
// the fired indicators. The result depends only on the level and the set of
// groups: every rule whose level range contains level and whose groups
// intersect the fired groups (or that names no groups) contributes its text,
// in rule order, without duplicates. No indicators at all yields only the
// insufficient-signal note.
func (s *Scorer) Recommend(level model.RiskLevel, indicators []model.Indicator) []string {
	if len(indicators) == 0 {
		return []string{s.note}
	}

	fired := make(map[string]bool, len(indicators))
	for _, ind := range indicators {
		fired[ind.Group] = true
	}

	rank := level.Rank()
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.recs {
		maxLevel := r.MaxLevel
		if maxLevel == "" {
			maxLevel = model.RiskCritical
		}
		if rank < r.MinLevel.Rank() || rank > maxLevel.Rank() {
			continue
		}
		if !matchesGroups(r.Groups, fired) || seen[r.Text] {
			continue
		}
		seen[r.Text] = true
		out = append(out, r.Text)
	}
	return out
}

func matchesGroups(groups []string, fired map[string]bool) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if fired[g] {
			return true
		}
	}
	return false
}
