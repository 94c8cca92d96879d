package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/riskwatch/internal/cache"
	"github.com/ppiankov/riskwatch/internal/engine"
	"github.com/ppiankov/riskwatch/internal/history"
	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/metrics"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/pipeline"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
)

// loadConfig merges defaults, config file, environment and bound flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	// Register every key so environment overrides apply without a config file
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *model.Config) *logger.Logger {
	level := cfg.Logger.Level
	if verbose && logLevel == "" {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Format: cfg.Logger.Format})
}

// ruleSource picks the catalog source for a path, URL or the embedded default
func ruleSource(location string, rc model.RulesConfig) rules.Source {
	switch {
	case location == "":
		return rules.DefaultSource{}
	case rules.IsRemote(location):
		return rules.URLSource{
			URL:        location,
			UserAgent:  "riskwatch/" + Version,
			HTTPProxy:  rc.HTTPProxy,
			HTTPSProxy: rc.HTTPSProxy,
		}
	default:
		return rules.FileSource{Path: location}
	}
}

// app is everything a command needs to run analyses
type app struct {
	cfg         *model.Config
	log         *logger.Logger
	ruleSource  rules.Source
	tableSource reftable.Source
	engine      *engine.Engine
	pipeline    *pipeline.Pipeline
	metrics     *metrics.Metrics
	redis       *redis.Client

	closers []func()
}

// newApp loads rules and reference tables and wires cache, history and
// metrics as configured
func newApp(ctx context.Context, cfg *model.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:        cfg,
		log:        log,
		ruleSource: ruleSource(cfg.Rules.Path, cfg.Rules),
		metrics:    metrics.New(),
	}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openTables(ctx); err != nil {
		return nil, err
	}

	needRedis := cfg.History.Backend == "redis" ||
		(cfg.Cache.Enabled && (cfg.Cache.Backend == cache.BackendRedis || cfg.Cache.Backend == cache.BackendLayered))
	if needRedis {
		client, err := cache.NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	var eng *engine.Engine
	observer := engine.Observer{
		RuleFailed: func(f rules.MatchError) { a.metrics.ObserveSkippedRule(f.RuleID) },
		Reloaded: func(target string, err error) {
			a.metrics.ObserveReload(target, err)
			if err == nil && eng != nil {
				snap := eng.Snapshot()
				a.metrics.SetRuleSet(snap.Version(), snap.Catalog.Digest())
			}
		},
	}
	eng, err := engine.Load(ctx, a.ruleSource, a.tableSource, engine.Options{
		MaxTextBytes: cfg.Engine.MaxTextBytes,
		Logger:       log,
		Observer:     observer,
	})
	if err != nil {
		return nil, err
	}
	a.engine = eng
	a.metrics.SetRuleSet(eng.Snapshot().Version(), eng.Snapshot().Catalog.Digest())

	opts := pipeline.Options{Metrics: a.metrics, Logger: log}
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Backend, cfg.Cache.TTL, a.redisCmd(), cfg.Redis.KeyPrefix, log)
		if err != nil {
			return nil, err
		}
		opts.Cache = c
		opts.CacheTTL = cfg.Cache.TTL
	}
	switch cfg.History.Backend {
	case "", "memory":
		opts.History = history.NewMemoryStore(cfg.History.Capacity)
	case "redis":
		opts.History = history.NewRedisStore(a.redis, cfg.Redis.KeyPrefix, cfg.History.Capacity)
	case "none":
	default:
		return nil, fmt.Errorf("unknown history backend %q (memory, redis, none)", cfg.History.Backend)
	}
	a.pipeline = pipeline.NewPipeline(eng, opts)

	ok = true
	return a, nil
}

// openTables selects files, PostgreSQL or the embedded seed, in that order
func (a *app) openTables(ctx context.Context) error {
	ref := a.cfg.Reference
	asOf, err := reftable.ParseAsOf(ref.AsOf)
	if err != nil {
		return err
	}

	switch {
	case ref.AdvisorsPath != "" || ref.DomainsPath != "":
		a.tableSource = reftable.FileSource{AdvisorsPath: ref.AdvisorsPath, DomainsPath: ref.DomainsPath, AsOf: asOf}
	case ref.PostgresDSN != "":
		pool, err := reftable.Connect(ctx, ref.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect reference database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.tableSource = reftable.PostgresSource{Pool: pool, AsOf: asOf}
	default:
		a.tableSource = reftable.DefaultSource{AsOf: asOf}
	}
	return nil
}

// redisCmd avoids handing a typed nil client to cache.New
func (a *app) redisCmd() redis.Cmdable {
	if a.redis == nil {
		return nil
	}
	return a.redis
}

// Close releases connections in reverse order of opening
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// configure loads config and the logger for a command
func configure() (*model.Config, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func stderrf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
