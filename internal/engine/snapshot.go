package engine

import (
	"time"

	"github.com/ppiankov/riskwatch/internal/advisor"
	"github.com/ppiankov/riskwatch/internal/extract"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
	"github.com/ppiankov/riskwatch/internal/score"
)

// Snapshot is one immutable (catalog, tables) pair with everything built
// from it. Analyses read a single snapshot from start to finish.
type Snapshot struct {
	Catalog  *rules.Catalog
	Tables   *reftable.Tables
	LoadedAt time.Time

	scorer  *score.Scorer
	text    *extract.TextExtractor
	url     *extract.URLExtractor
	matcher *advisor.Matcher
}

// NewSnapshot wires extractors, matcher and scorer to catalog and tables
func NewSnapshot(catalog *rules.Catalog, tables *reftable.Tables, maxTextBytes int) *Snapshot {
	return &Snapshot{
		Catalog:  catalog,
		Tables:   tables,
		LoadedAt: time.Now().UTC(),
		scorer:   score.NewScorer(catalog.RuleSet()),
		text:     extract.NewTextExtractor(catalog, maxTextBytes),
		url:      extract.NewURLExtractor(catalog, tables),
		matcher:  advisor.NewMatcher(tables, catalog.AdvisorChecks()),
	}
}

// Version is the deployed rule-set version
func (s *Snapshot) Version() string {
	return s.Catalog.Version()
}

func (s *Snapshot) analyzeText(text, platform, contentType string) (*model.Assessment, []rules.MatchError, error) {
	res, err := s.text.Extract(text, platform, contentType)
	if err != nil {
		return nil, nil, err
	}
	a := s.assess(model.KindText, "", res.Indicators, res.Failures, score.Context{Platform: platform, ContentType: contentType})
	return a, res.Failures, nil
}

func (s *Snapshot) analyzeURL(raw string) (*model.Assessment, []rules.MatchError, error) {
	res, parts, err := s.url.Extract(raw)
	if err != nil {
		return nil, nil, err
	}
	a := s.assess(model.KindURL, parts.Raw, res.Indicators, res.Failures, score.Context{})
	return a, res.Failures, nil
}

func (s *Snapshot) checkAdvisor(name, reg string) (*model.Assessment, error) {
	res, err := s.matcher.Match(name, reg)
	if err != nil {
		return nil, err
	}
	subject := reg
	if subject == "" {
		subject = name
	}
	a := s.assess(model.KindAdvisor, subject, res.Indicators, nil, score.Context{})
	a.Advisor = &model.AdvisorMatch{
		Match:      res.Match,
		Confidence: res.Confidence,
		Method:     res.Method,
	}
	return a, nil
}

func (s *Snapshot) assess(kind model.SubjectKind, subject string, indicators []model.Indicator, failures []rules.MatchError, ctx score.Context) *model.Assessment {
	r := s.scorer.Score(indicators, ctx)

	a := &model.Assessment{
		Kind:            kind,
		Subject:         subject,
		RawScore:        r.Raw,
		AdjustedScore:   r.Adjusted,
		NormalizedScore: r.Normalized,
		RiskLevel:       r.Level,
		Indicators:      r.Indicators,
		Recommendations: r.Recommendations,
		Modifiers:       r.Modifiers,
		RuleSetVersion:  s.Version(),
	}
	for _, f := range failures {
		a.SkippedRules = append(a.SkippedRules, f.RuleID)
	}
	return a
}
