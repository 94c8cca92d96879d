package history

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/riskwatch/internal/model"
)

// Entry is one recorded assessment summary
type Entry struct {
	ID             string            `json:"id"`
	Kind           model.SubjectKind `json:"kind"`
	Subject        string            `json:"subject"`
	Score          float64           `json:"normalized_score"`
	Level          model.RiskLevel   `json:"risk_level"`
	Groups         []string          `json:"fraud_groups,omitempty"` // Fraud-leaning groups that fired
	RuleSetVersion string            `json:"rule_set_version"`
	RecordedAt     time.Time         `json:"recorded_at"`
}

// NewEntry summarizes an assessment for the history log. id may be empty,
// in which case a new UUID is assigned.
func NewEntry(id, subject string, a *model.Assessment, at time.Time) Entry {
	if id == "" {
		id = uuid.NewString()
	}
	if subject == "" {
		subject = a.Subject
	}

	seen := make(map[string]bool)
	var groups []string
	for _, ind := range a.Indicators {
		if ind.Category != model.CategoryFraud || ind.Group == "" || seen[ind.Group] {
			continue
		}
		seen[ind.Group] = true
		groups = append(groups, ind.Group)
	}
	sort.Strings(groups)

	return Entry{
		ID:             id,
		Kind:           a.Kind,
		Subject:        subject,
		Score:          a.NormalizedScore,
		Level:          a.RiskLevel,
		Groups:         groups,
		RuleSetVersion: a.RuleSetVersion,
		RecordedAt:     at.UTC(),
	}
}

// Stats aggregates everything recorded since the store was created
type Stats struct {
	Total        int                         `json:"total"`
	ByLevel      map[model.RiskLevel]int     `json:"by_level"`
	LevelPercent map[model.RiskLevel]float64 `json:"level_percent"`
	ByKind       map[model.SubjectKind]int   `json:"by_kind"`
	ByGroup      map[string]int              `json:"by_fraud_group"`
}

func newStats() Stats {
	s := Stats{
		ByLevel:      make(map[model.RiskLevel]int),
		LevelPercent: make(map[model.RiskLevel]float64),
		ByKind:       make(map[model.SubjectKind]int),
		ByGroup:      make(map[string]int),
	}
	for _, l := range model.RiskLevels {
		s.ByLevel[l] = 0
	}
	return s
}

func (s *Stats) add(e Entry) {
	s.Total++
	s.ByLevel[e.Level]++
	s.ByKind[e.Kind]++
	for _, g := range e.Groups {
		s.ByGroup[g]++
	}
}

// finish fills LevelPercent from the counts
func (s *Stats) finish() {
	for _, l := range model.RiskLevels {
		if s.Total == 0 {
			s.LevelPercent[l] = 0
			continue
		}
		s.LevelPercent[l] = math.Round(float64(s.ByLevel[l])*10000/float64(s.Total)) / 100
	}
}

// Store records assessment summaries for the dashboard
type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
}
