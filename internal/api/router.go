package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/metrics"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/pipeline"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
	"github.com/ppiankov/riskwatch/internal/worker"
)

// Dependencies holds everything the handlers need
type Dependencies struct {
	Pipeline    *pipeline.Pipeline
	Metrics     *metrics.Metrics // nil disables /metrics and request instrumentation
	RuleSource  rules.Source     // re-read by the admin reload endpoint
	TableSource reftable.Source
	Version     string
	Logger      *logger.Logger
}

// Router holds dependencies for the API router
type Router struct {
	config   model.Config
	handlers *Handlers
	metrics  *metrics.Metrics
	limiter  *worker.Limiter
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg model.Config, deps Dependencies) *Router {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		config:   cfg,
		handlers: NewHandlers(deps, cfg.Server.MaxBodyBytes, log),
		metrics:  deps.Metrics,
		logger:   log.WithComponent("router"),
	}
	if cfg.RateLimit.Enabled {
		r.limiter = worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
		for _, o := range cfg.RateLimit.Overrides {
			r.limiter.SetKeyRate(clientKey(o.Client), o.RequestsPerSecond, o.BurstSize)
		}
	}
	return r
}

// Setup builds the chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(r.logger))
	router.Use(middleware.Recoverer)
	if r.metrics != nil {
		router.Use(instrument(r.metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: r.config.CORS.AllowedOrigins,
		AllowedMethods: r.config.CORS.AllowedMethods,
		AllowedHeaders: r.config.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         r.config.CORS.MaxAge,
	}))

	// Public, unthrottled
	router.Get("/health", r.handlers.Health)
	if r.metrics != nil {
		router.Method(http.MethodGet, "/metrics", r.metrics.Handler())
	}

	router.Route("/api/v1", func(api chi.Router) {
		if r.limiter != nil {
			api.Use(rateLimit(r.limiter))
		}
		if t := r.config.Server.RequestTimeout; t > 0 {
			api.Use(middleware.Timeout(t))
		}

		api.Post("/analyze/text", r.handlers.AnalyzeText)
		api.Post("/analyze/url", r.handlers.AnalyzeURL)
		api.Post("/advisor/check", r.handlers.CheckAdvisor)

		api.Get("/recent", r.handlers.Recent)
		api.Get("/dashboard", r.handlers.Dashboard)
		api.Get("/rules", r.handlers.Rules)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(requireToken(r.config.Server.AdminToken))
			admin.Post("/reload", r.handlers.Reload)
		})
	})

	return router
}

// NewServer wraps the router in an http.Server configured from cfg
func NewServer(cfg model.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
