package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// Observer receives engine events. Any field may be nil.
type Observer struct {
	RuleFailed func(err rules.MatchError)
	Reloaded   func(target string, err error)
}

// Options configures an Engine
type Options struct {
	MaxTextBytes int
	Logger       *logger.Logger
	Observer     Observer
}

// Reload targets reported to Observer.Reloaded
const (
	TargetCatalog = "catalog"
	TargetTables  = "tables"
)

// Engine serves analyses from the current snapshot. Readers load the
// snapshot pointer once per call and never lock; reloads build a complete
// new snapshot and swap it in under a writer mutex.
type Engine struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex

	maxTextBytes int
	log          *logger.Logger
	observer     Observer
}

// New creates an engine serving catalog and tables
func New(catalog *rules.Catalog, tables *reftable.Tables, opts Options) (*Engine, error) {
	if catalog == nil || tables == nil {
		return nil, errors.New("engine: catalog and tables are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	e := &Engine{
		maxTextBytes: opts.MaxTextBytes,
		log:          log.WithComponent("engine"),
		observer:     opts.Observer,
	}
	e.current.Store(NewSnapshot(catalog, tables, opts.MaxTextBytes))

	n, d := tables.Counts()
	e.log.Info().
		Str("rule_set", catalog.Version()).
		Int("rules", len(catalog.Rules(""))).
		Int("advisors", n).
		Int("domains", d).
		Msg("engine ready")
	return e, nil
}

// Load reads both sources and creates an engine. Any CatalogError aborts.
func Load(ctx context.Context, ruleSrc rules.Source, tableSrc reftable.Source, opts Options) (*Engine, error) {
	catalog, err := rules.LoadCatalog(ruleSrc)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	tables, err := reftable.LoadReferenceTables(ctx, tableSrc)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	return New(catalog, tables, opts)
}

// Snapshot returns the snapshot currently serving
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// AnalyzeText scores free-form text under its platform and content type
func (e *Engine) AnalyzeText(text, platform, contentType string) (*model.Assessment, error) {
	return e.Evaluate(e.Snapshot(), model.Submission{
		Kind:           model.KindText,
		Text:           text,
		SourcePlatform: platform,
		ContentType:    contentType,
	})
}

// AnalyzeURL scores a URL and its domain's reference record
func (e *Engine) AnalyzeURL(raw string) (*model.Assessment, error) {
	return e.Evaluate(e.Snapshot(), model.Submission{Kind: model.KindURL, URL: raw})
}

// CheckAdvisor scores a claimed advisor identity
func (e *Engine) CheckAdvisor(name, registrationNumber string) (*model.Assessment, error) {
	return e.Evaluate(e.Snapshot(), model.Submission{
		Kind:               model.KindAdvisor,
		Name:               name,
		RegistrationNumber: registrationNumber,
	})
}

// Evaluate runs sub against snap. Callers that derive other data from the
// snapshot (cache keys) pass the same snapshot here.
func (e *Engine) Evaluate(snap *Snapshot, sub model.Submission) (*model.Assessment, error) {
	var (
		a        *model.Assessment
		failures []rules.MatchError
		err      error
	)

	switch sub.Kind {
	case model.KindText:
		a, failures, err = snap.analyzeText(sub.Text, sub.SourcePlatform, sub.ContentType)
	case model.KindURL:
		a, failures, err = snap.analyzeURL(sub.URL)
	case model.KindAdvisor:
		a, err = snap.checkAdvisor(sub.Name, sub.RegistrationNumber)
	default:
		return nil, model.NewInvalidInput("kind", fmt.Sprintf("unsupported kind %q", sub.Kind))
	}
	if err != nil {
		return nil, err
	}

	for _, f := range failures {
		e.log.Warn().
			Err(f.Err).
			Str("rule", f.RuleID).
			Str("kind", string(sub.Kind)).
			Msg("rule skipped")
		if e.observer.RuleFailed != nil {
			e.observer.RuleFailed(f)
		}
	}
	return a, nil
}

// ReloadCatalog loads a new catalog and swaps it in with the current tables.
// On error the current snapshot keeps serving.
func (e *Engine) ReloadCatalog(src rules.Source) error {
	return e.Reload(context.Background(), src, nil)
}

// ReloadTables loads new reference tables and swaps them in with the current
// catalog. On error the current snapshot keeps serving.
func (e *Engine) ReloadTables(ctx context.Context, src reftable.Source) error {
	return e.Reload(ctx, nil, src)
}

// Reload loads a catalog from ruleSrc and tables from tableSrc, then swaps
// both in at once. A nil source keeps the current one. If either load fails
// nothing is swapped.
func (e *Engine) Reload(ctx context.Context, ruleSrc rules.Source, tableSrc reftable.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.current.Load()
	catalog, tables := prev.Catalog, prev.Tables

	if ruleSrc != nil {
		c, err := rules.LoadCatalog(ruleSrc)
		if err != nil {
			e.reloaded(TargetCatalog, err)
			return fmt.Errorf("reload rules: %w", err)
		}
		catalog = c
	}
	if tableSrc != nil {
		t, err := reftable.LoadReferenceTables(ctx, tableSrc)
		if err != nil {
			e.reloaded(TargetTables, err)
			return fmt.Errorf("reload reference tables: %w", err)
		}
		tables = t
	}

	e.current.Store(NewSnapshot(catalog, tables, e.maxTextBytes))

	e.log.Info().
		Str("from", prev.Version()).
		Str("to", catalog.Version()).
		Str("digest", catalog.Digest()).
		Str("fingerprint", tables.Fingerprint()).
		Msg("snapshot reloaded")
	if ruleSrc != nil {
		e.reloaded(TargetCatalog, nil)
	}
	if tableSrc != nil {
		e.reloaded(TargetTables, nil)
	}
	return nil
}

func (e *Engine) reloaded(target string, err error) {
	if err != nil {
		e.log.Error().Err(err).Str("target", target).Msg("reload failed, keeping current snapshot")
	}
	if e.observer.Reloaded != nil {
		e.observer.Reloaded(target, err)
	}
}
