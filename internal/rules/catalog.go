package rules

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/riskwatch/internal/model"
)

//go:embed default_rules.yaml
var defaultRules []byte

// DefaultInsufficientSignalNote is used when the rule set leaves the note empty
const DefaultInsufficientSignalNote = "Insufficient signal: no indicators were detected. This is not proof of legitimacy."

// Catalog is a validated, compiled rule set. It is immutable after Parse
// and safe for concurrent use.
type Catalog struct {
	set    model.RuleSet
	rules  []*rule
	name   string
	digest string
}

type rule struct {
	def  model.RuleDefinition
	eval evaluator
}

// MatchError reports a rule that failed to evaluate. The rule does not fire.
type MatchError struct {
	RuleID string
	Err    error
}

func (e MatchError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e MatchError) Unwrap() error {
	return e.Err
}

// Source produces a catalog
type Source interface {
	Load() (*Catalog, error)
}

// FileSource loads a YAML rule set from disk
type FileSource struct {
	Path string
}

func (s FileSource) Load() (*Catalog, error) {
	return LoadFile(s.Path)
}

// BytesSource parses an in-memory YAML rule set
type BytesSource struct {
	Name string
	Data []byte
}

func (s BytesSource) Load() (*Catalog, error) {
	return Parse(s.Data, s.Name)
}

// DefaultSource yields the embedded default rule set
type DefaultSource struct{}

func (DefaultSource) Load() (*Catalog, error) {
	return Default()
}

// LoadCatalog loads a catalog from src
func LoadCatalog(src Source) (*Catalog, error) {
	return src.Load()
}

// LoadFile reads and parses a rule set file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.CatalogError{Source: path, Err: fmt.Errorf("read rule set: %w", err)}
	}
	return Parse(data, path)
}

// Default parses the embedded default rule set
func Default() (*Catalog, error) {
	return Parse(defaultRules, "default")
}

// DefaultYAML returns a copy of the embedded default rule set
func DefaultYAML() []byte {
	return bytes.Clone(defaultRules)
}

// Parse decodes, validates and compiles a YAML rule set. Every problem found
// is reported in a single *model.CatalogError.
func Parse(data []byte, name string) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &model.CatalogError{Source: name, Problems: []string{"rule set is empty"}}
	}

	var set model.RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return nil, &model.CatalogError{Source: name, Err: fmt.Errorf("decode rule set: %w", err)}
	}

	compiled, problems := compile(&set)
	if len(problems) > 0 {
		return nil, &model.CatalogError{Source: name, Problems: problems}
	}

	if set.InsufficientSignalNote == "" {
		set.InsufficientSignalNote = DefaultInsufficientSignalNote
	}

	sum := sha256.Sum256(data)
	return &Catalog{
		set:    set,
		rules:  compiled,
		name:   name,
		digest: hex.EncodeToString(sum[:]),
	}, nil
}

// Name identifies where the catalog came from
func (c *Catalog) Name() string { return c.name }

// Version is the rule set's declared version
func (c *Catalog) Version() string { return c.set.Version }

// Digest is the hex sha256 of the source document
func (c *Catalog) Digest() string { return c.digest }

// RuleSet returns the validated rule document. Callers must not modify it.
func (c *Catalog) RuleSet() model.RuleSet { return c.set }

func (c *Catalog) DomainChecks() model.DomainChecks { return c.set.DomainChecks }

func (c *Catalog) AdvisorChecks() model.AdvisorChecks { return c.set.AdvisorChecks }

// Rules returns the definitions that apply to target, in definition order.
// An empty target returns all rules.
func (c *Catalog) Rules(target model.Target) []model.RuleDefinition {
	out := make([]model.RuleDefinition, 0, len(c.rules))
	for _, r := range c.rules {
		if target == "" || r.def.AppliesTo == target {
			out = append(out, r.def)
		}
	}
	return out
}

// Match runs every rule for target against in, in definition order, and
// returns one indicator per rule that fired. A rule that errors or panics is
// reported as a MatchError and does not fire; the others still run.
func (c *Catalog) Match(in *Input, target model.Target) ([]model.Indicator, []MatchError) {
	var indicators []model.Indicator
	var failures []MatchError

	for _, r := range c.rules {
		if r.def.AppliesTo != target {
			continue
		}
		evidence, ok, err := r.safeEvaluate(in)
		if err != nil {
			failures = append(failures, MatchError{RuleID: r.def.ID, Err: err})
			continue
		}
		if !ok {
			continue
		}
		indicators = append(indicators, model.Indicator{
			ID:       r.def.ID,
			Category: r.def.Category,
			Group:    r.def.Group,
			Label:    r.def.Label,
			Weight:   r.def.Weight,
			Evidence: evidence,
		})
	}
	return indicators, failures
}

func (r *rule) safeEvaluate(in *Input) (evidence string, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			evidence, ok, err = "", false, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.eval.evaluate(in)
}
