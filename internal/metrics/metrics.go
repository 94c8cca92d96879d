package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/riskwatch/internal/model"
)

const namespace = "riskwatch"

// Metrics holds the service collectors on a private registry, so tests and
// multiple engines in one process never collide on the default registry
type Metrics struct {
	registry *prometheus.Registry

	assessments  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheResults *prometheus.CounterVec
	skippedRules *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	ruleSet      *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Assessments produced, by subject kind and risk level.",
		}, []string{"kind", "level"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_errors_total",
			Help:      "Analyses that returned an error, by subject kind and reason.",
		}, []string{"kind", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent producing an assessment, cache hits included.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Assessment cache lookups, by result.",
		}, []string{"result"}),
		skippedRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_rules_total",
			Help:      "Rule evaluations that failed and were skipped, by rule id.",
		}, []string{"rule"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Catalog and reference table reloads, by target and result.",
		}, []string{"target", "result"}),
		ruleSet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rule_set_info",
			Help:      "Always 1; labels carry the serving rule-set version and digest.",
		}, []string{"version", "digest"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.assessments, m.failures, m.duration, m.cacheResults,
		m.skippedRules, m.reloads, m.ruleSet, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAssessment counts a produced assessment
func (m *Metrics) ObserveAssessment(kind model.SubjectKind, level model.RiskLevel, elapsed time.Duration) {
	m.assessments.WithLabelValues(string(kind), string(level)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveFailure counts an analysis error. reason is invalid_input or internal.
func (m *Metrics) ObserveFailure(kind model.SubjectKind, reason string) {
	m.failures.WithLabelValues(string(kind), reason).Inc()
}

// ObserveCache counts a cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

// ObserveSkippedRule counts a rule that failed to evaluate
func (m *Metrics) ObserveSkippedRule(ruleID string) {
	m.skippedRules.WithLabelValues(ruleID).Inc()
}

// ObserveReload counts a reload attempt
func (m *Metrics) ObserveReload(target string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(target, result).Inc()
}

// SetRuleSet publishes the serving rule set, replacing the previous one
func (m *Metrics) SetRuleSet(version, digest string) {
	m.ruleSet.Reset()
	m.ruleSet.WithLabelValues(version, digest).Set(1)
}

// ObserveHTTP counts a served request
func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
