package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/riskwatch/internal/cache"
	"github.com/ppiankov/riskwatch/internal/engine"
	"github.com/ppiankov/riskwatch/internal/history"
	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/metrics"
	"github.com/ppiankov/riskwatch/internal/model"
)

// Pipeline wraps the engine with the service concerns around an analysis:
// result cache, history log and metrics. None of them affect the score.
type Pipeline struct {
	engine   *engine.Engine
	cache    cache.Cache // nil when caching is disabled
	cacheTTL time.Duration
	history  history.Store // nil when history is disabled
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// Options configures a Pipeline. Cache, History and Metrics are optional.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	History  history.Store
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// NewPipeline creates a pipeline around eng
func NewPipeline(eng *engine.Engine, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		engine:   eng,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		history:  opts.History,
		metrics:  opts.Metrics,
		log:      log.WithComponent("pipeline"),
		now:      time.Now,
	}
}

// Result is one analysis as returned to API and batch callers
type Result struct {
	ID         string            `json:"id"`
	Assessment *model.Assessment `json:"assessment"`
	Cached     bool              `json:"cached"`
	AnalyzedAt time.Time         `json:"analyzed_at"`
}

// Engine returns the wrapped engine
func (p *Pipeline) Engine() *engine.Engine {
	return p.engine
}

// History returns the history store, or nil
func (p *Pipeline) History() history.Store {
	return p.history
}

// Analyze runs one submission through cache, engine, history and metrics
func (p *Pipeline) Analyze(ctx context.Context, sub model.Submission) (*Result, error) {
	start := p.now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 1. One snapshot for both the cache key and the analysis
	snap := p.engine.Snapshot()
	key := cacheKey(snap, sub)

	// 2. Cache lookup
	a, cached := p.lookup(ctx, key)

	// 3. Analyze on miss
	if !cached {
		var err error
		a, err = p.engine.Evaluate(snap, sub)
		if err != nil {
			p.observeFailure(sub.Kind, err)
			return nil, err
		}
		p.store(ctx, key, a)
	}

	res := &Result{
		ID:         uuid.NewString(),
		Assessment: a,
		Cached:     cached,
		AnalyzedAt: start.UTC(),
	}

	// 4. History and metrics
	if p.history != nil {
		entry := history.NewEntry(res.ID, sub.Subject(), a, start)
		if err := p.history.Record(ctx, entry); err != nil {
			p.log.Warn().Err(err).Str("id", res.ID).Msg("history record failed")
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveAssessment(a.Kind, a.RiskLevel, p.now().Sub(start))
	}

	p.log.Debug().
		Str("id", res.ID).
		Str("kind", string(a.Kind)).
		Str("level", string(a.RiskLevel)).
		Float64("score", a.NormalizedScore).
		Bool("cached", cached).
		Msg("analysis complete")
	return res, nil
}

// cacheKey covers everything an assessment is a function of
func cacheKey(snap *engine.Snapshot, sub model.Submission) string {
	return cache.AssessmentKey(
		snap.Catalog.Version(),
		snap.Catalog.Digest(),
		snap.Tables.Fingerprint(),
		string(sub.Kind),
		sub.Text,
		sub.SourcePlatform,
		sub.ContentType,
		sub.URL,
		sub.Name,
		sub.RegistrationNumber,
	)
}

func (p *Pipeline) lookup(ctx context.Context, key string) (*model.Assessment, bool) {
	if p.cache == nil {
		return nil, false
	}

	var a model.Assessment
	data, hit := p.cache.Get(ctx, key)
	if hit {
		if err := json.Unmarshal(data, &a); err != nil {
			p.log.Warn().Err(err).Msg("dropping undecodable cache entry")
			_ = p.cache.Delete(ctx, key)
			hit = false
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveCache(hit)
	}
	if !hit {
		return nil, false
	}
	return &a, true
}

func (p *Pipeline) store(ctx context.Context, key string, a *model.Assessment) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		p.log.Warn().Err(err).Msg("encode assessment for cache")
		return
	}
	if err := p.cache.Set(ctx, key, data, p.cacheTTL); err != nil {
		p.log.Warn().Err(err).Msg("cache set failed")
	}
}

func (p *Pipeline) observeFailure(kind model.SubjectKind, err error) {
	reason := "internal"
	if errors.Is(err, model.ErrInvalidInput) {
		reason = "invalid_input"
	} else {
		p.log.Error().Err(err).Str("kind", string(kind)).Msg("analysis failed")
	}
	if p.metrics != nil {
		p.metrics.ObserveFailure(kind, reason)
	}
}

// Dashboard is the aggregate view served by the dashboard endpoint
type Dashboard struct {
	Stats          history.Stats   `json:"stats"`
	Recent         []history.Entry `json:"recent"`
	RuleSetVersion string          `json:"rule_set_version"`
}

// Dashboard summarizes history. It fails when history is disabled.
func (p *Pipeline) Dashboard(ctx context.Context, recent int) (*Dashboard, error) {
	if p.history == nil {
		return nil, fmt.Errorf("history is disabled")
	}
	stats, err := p.history.Stats(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := p.history.Recent(ctx, recent)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Stats:          stats,
		Recent:         entries,
		RuleSetVersion: p.engine.Snapshot().Version(),
	}, nil
}
