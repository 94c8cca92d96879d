package model

import (
	"fmt"
	"strings"
)

// Assessment is the engine's complete output for one analysis call.
// Every value a presentation layer needs is present; nothing has to be re-derived.
type Assessment struct {
	Kind            SubjectKind       `json:"kind"`                    // text, url, advisor
	Subject         string            `json:"subject,omitempty"`       // URL or advisor query; empty for text
	RawScore        float64           `json:"raw_score"`               // Σ fraud − Σ legitimacy
	AdjustedScore   float64           `json:"adjusted_score"`          // After modifiers
	NormalizedScore float64           `json:"normalized_score"`        // Saturated into [0,100]
	RiskLevel       RiskLevel         `json:"risk_level"`              // low, medium, high, critical
	Indicators      []Indicator       `json:"indicators"`              // Ranked by |weight|, ties in rule order
	Recommendations []string          `json:"recommendations"`         // Ordered, deterministic
	Modifiers       []AppliedModifier `json:"modifiers,omitempty"`     // Context modifiers that matched
	Advisor         *AdvisorMatch     `json:"advisor,omitempty"`       // Only for advisor checks
	SkippedRules    []string          `json:"skipped_rules,omitempty"` // Rules that failed to evaluate
	RuleSetVersion  string            `json:"rule_set_version"`
}

// SubjectKind names the analysis operation that produced an assessment
type SubjectKind string

const (
	KindText    SubjectKind = "text"
	KindURL     SubjectKind = "url"
	KindAdvisor SubjectKind = "advisor"
)

// AdvisorMatch is the advisor matcher's verdict
type AdvisorMatch struct {
	Match      *AdvisorRecord `json:"match"`      // nil when nothing matched
	Confidence float64        `json:"confidence"` // [0,1]
	Method     string         `json:"method"`     // registration, exact_name, fuzzy_name, none
}

// AppliedModifier records a context modifier that contributed to the score
type AppliedModifier struct {
	Dimension  Dimension `json:"dimension"`
	Value      string    `json:"value"`
	Multiplier float64   `json:"multiplier,omitempty"`
	Delta      float64   `json:"delta,omitempty"`
}

// RiskLevel is the coarse classification of a normalized score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists the levels from least to most severe
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank orders levels; unknown levels rank -1
func (r RiskLevel) Rank() int {
	for i, l := range RiskLevels {
		if l == r {
			return i
		}
	}
	return -1
}

// ParseRiskLevel reconstructs a RiskLevel from its string form
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if level.Rank() < 0 {
		return "", fmt.Errorf("invalid risk level: %q", s)
	}
	return level, nil
}
