package model

// Dimension is the request-context axis a modifier keys on
type Dimension string

const (
	DimensionPlatform    Dimension = "platform"
	DimensionContentType Dimension = "content_type"
)

// ModifierRule adjusts the aggregated score for a request context.
// Exactly one of Multiplier and Delta is set.
type ModifierRule struct {
	Dimension  Dimension `yaml:"dimension" json:"dimension"`
	Value      string    `yaml:"value" json:"value"`
	Multiplier *float64  `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	Delta      *float64  `yaml:"delta,omitempty" json:"delta,omitempty"`
}

// Thresholds are the lower bounds of the medium, high and critical levels
type Thresholds struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// ScoringConfig controls the saturating transform and level mapping
type ScoringConfig struct {
	Scale      float64    `yaml:"scale" json:"scale"` // adjusted score giving ~63/100
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
}

// RecommendationRule emits Text when the level is within [MinLevel, MaxLevel]
// and any of Groups fired (or Groups is empty)
type RecommendationRule struct {
	ID       string    `yaml:"id" json:"id"`
	MinLevel RiskLevel `yaml:"min_level" json:"min_level"`
	MaxLevel RiskLevel `yaml:"max_level,omitempty" json:"max_level,omitempty"`
	Groups   []string  `yaml:"groups,omitempty" json:"groups,omitempty"`
	Text     string    `yaml:"text" json:"text"`
}

// DomainChecks configures the reference-table checks of URL analysis
type DomainChecks struct {
	UnknownWeight     float64            `yaml:"unknown_weight" json:"unknown_weight"`
	NewWeight         float64            `yaml:"new_weight" json:"new_weight"`
	NewWindowDays     int                `yaml:"new_window_days" json:"new_window_days"`
	EstablishedWeight float64            `yaml:"established_weight" json:"established_weight"`
	EstablishedDays   int                `yaml:"established_days" json:"established_days"`
	FlagWeights       map[string]float64 `yaml:"flag_weights" json:"flag_weights"`
}

// AdvisorChecks configures the advisor matcher's indicators and fuzzy floor
type AdvisorChecks struct {
	SimilarityFloor       float64 `yaml:"similarity_floor" json:"similarity_floor"`
	ActiveWeight          float64 `yaml:"active_weight" json:"active_weight"`
	SuspendedWeight       float64 `yaml:"suspended_weight" json:"suspended_weight"`
	RevokedWeight         float64 `yaml:"revoked_weight" json:"revoked_weight"`
	UnknownStatusWeight   float64 `yaml:"unknown_status_weight" json:"unknown_status_weight"`
	NotFoundWeight        float64 `yaml:"not_found_weight" json:"not_found_weight"`
	ApproximateNameWeight float64 `yaml:"approximate_name_weight" json:"approximate_name_weight"`
}

// WeightBounds limits the magnitude of any configured weight
type WeightBounds struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// RuleSet is the complete deployed rule document
type RuleSet struct {
	Version                string               `yaml:"version" json:"version"`
	WeightBounds           WeightBounds         `yaml:"weight_bounds" json:"weight_bounds"`
	Rules                  []RuleDefinition     `yaml:"rules" json:"rules"`
	DomainChecks           DomainChecks         `yaml:"domain_checks" json:"domain_checks"`
	AdvisorChecks          AdvisorChecks        `yaml:"advisor_checks" json:"advisor_checks"`
	Modifiers              []ModifierRule       `yaml:"modifiers" json:"modifiers"`
	Scoring                ScoringConfig        `yaml:"scoring" json:"scoring"`
	Recommendations        []RecommendationRule `yaml:"recommendations" json:"recommendations"`
	InsufficientSignalNote string               `yaml:"insufficient_signal_note" json:"insufficient_signal_note"`
}
