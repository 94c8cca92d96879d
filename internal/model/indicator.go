package model

// Indicator is a single weighted signal extracted from an input
type Indicator struct {
	ID       string   `json:"id"`                 // Rule or check that produced it (e.g., "urgency_language")
	Category Category `json:"category"`           // fraud or legitimacy
	Group    string   `json:"group,omitempty"`    // Rule family used by recommendations (e.g., "urgency")
	Label    string   `json:"label"`              // Human-readable description
	Weight   float64  `json:"weight"`             // Positive for fraud, negative for legitimacy
	Evidence string   `json:"evidence,omitempty"` // Matched span or looked-up value
}

// Category tags an indicator as fraud-leaning or offsetting
type Category string

const (
	CategoryFraud      Category = "fraud"
	CategoryLegitimacy Category = "legitimacy"
)

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	return c == CategoryFraud || c == CategoryLegitimacy
}

// Target says which kind of input a rule applies to
type Target string

const (
	TargetText Target = "text"
	TargetURL  Target = "url"
)

// RuleKind selects the evaluator used for a rule
type RuleKind string

const (
	KindKeywords   RuleKind = "keywords"
	KindRegex      RuleKind = "regex"
	KindNumeric    RuleKind = "numeric"
	KindStructural RuleKind = "structural"
)

// RuleDefinition is the on-disk form of a catalog rule
type RuleDefinition struct {
	ID            string         `yaml:"id" json:"id"`
	Group         string         `yaml:"group" json:"group"`
	Category      Category       `yaml:"category" json:"category"`
	Label         string         `yaml:"label" json:"label"`
	AppliesTo     Target         `yaml:"applies_to" json:"applies_to"`
	Kind          RuleKind       `yaml:"kind" json:"kind"`
	Weight        float64        `yaml:"weight" json:"weight"`
	Keywords      []string       `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Patterns      []string       `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	CaseSensitive bool           `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	Numeric       *NumericSpec   `yaml:"numeric,omitempty" json:"numeric,omitempty"`
	Check         string         `yaml:"check,omitempty" json:"check,omitempty"`
	Params        map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// NumericSpec configures a numeric-threshold rule
type NumericSpec struct {
	Metric string  `yaml:"metric" json:"metric"` // e.g., "percent_return"
	Above  float64 `yaml:"above" json:"above"`   // Fires when the parsed value exceeds this
}

// Groups produced by reference-table and advisor checks rather than catalog rules
const (
	GroupUnknownDomain       = "unknown_domain"
	GroupNewDomain           = "new_domain"
	GroupEstablishedDomain   = "established_domain"
	GroupDomainFlag          = "domain_flag"
	GroupAdvisorRegistered   = "advisor_registered"
	GroupAdvisorStatus       = "advisor_status"
	GroupAdvisorUnverifiable = "advisor_unverifiable"
	GroupAdvisorApproximate  = "advisor_approximate"
)

// BuiltinGroups lists the groups above for catalog validation
var BuiltinGroups = []string{
	GroupUnknownDomain, GroupNewDomain, GroupEstablishedDomain, GroupDomainFlag,
	GroupAdvisorRegistered, GroupAdvisorStatus, GroupAdvisorUnverifiable, GroupAdvisorApproximate,
}
