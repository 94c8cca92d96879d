package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/riskwatch/internal/logger"
	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/pipeline"
	"github.com/ppiankov/riskwatch/internal/reftable"
	"github.com/ppiankov/riskwatch/internal/rules"
)

const (
	defaultRecent = 20
	maxRecent     = 200
)

// Handlers serves the analysis API
type Handlers struct {
	pipeline     *pipeline.Pipeline
	ruleSource   rules.Source
	tableSource  reftable.Source
	version      string
	maxBodyBytes int64
	logger       *logger.Logger
	startTime    time.Time
}

// NewHandlers creates the API handlers
func NewHandlers(deps Dependencies, maxBodyBytes int64, log *logger.Logger) *Handlers {
	return &Handlers{
		pipeline:     deps.Pipeline,
		ruleSource:   deps.RuleSource,
		tableSource:  deps.TableSource,
		version:      deps.Version,
		maxBodyBytes: maxBodyBytes,
		logger:       log.WithComponent("api"),
		startTime:    time.Now(),
	}
}

// TextRequest is the body of POST /api/v1/analyze/text
type TextRequest struct {
	Text           string `json:"text"`
	SourcePlatform string `json:"source_platform,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
}

// URLRequest is the body of POST /api/v1/analyze/url
type URLRequest struct {
	URL string `json:"url"`
}

// AdvisorRequest is the body of POST /api/v1/advisor/check
type AdvisorRequest struct {
	Name               string `json:"name,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
}

// ReloadRequest is the optional body of POST /api/v1/admin/reload
type ReloadRequest struct {
	Target string `json:"target,omitempty"` // rules, tables or all (default)
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Uptime         string    `json:"uptime"`
	RuleSetVersion string    `json:"rule_set_version"`
	RuleSetDigest  string    `json:"rule_set_digest"`
	TablesAsOf     string    `json:"tables_as_of"`
	LoadedAt       time.Time `json:"loaded_at"`
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.pipeline.Engine().Snapshot()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		RuleSetVersion: snap.Version(),
		RuleSetDigest:  snap.Catalog.Digest(),
		TablesAsOf:     snap.Tables.AsOf().Format("2006-01-02"),
		LoadedAt:       snap.LoadedAt,
	})
}

// AnalyzeText handles POST /api/v1/analyze/text
func (h *Handlers) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.analyze(w, r, model.Submission{
		Kind:           model.KindText,
		Text:           req.Text,
		SourcePlatform: req.SourcePlatform,
		ContentType:    req.ContentType,
	})
}

// AnalyzeURL handles POST /api/v1/analyze/url
func (h *Handlers) AnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.analyze(w, r, model.Submission{Kind: model.KindURL, URL: req.URL})
}

// CheckAdvisor handles POST /api/v1/advisor/check
func (h *Handlers) CheckAdvisor(w http.ResponseWriter, r *http.Request) {
	var req AdvisorRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.analyze(w, r, model.Submission{
		Kind:               model.KindAdvisor,
		Name:               req.Name,
		RegistrationNumber: req.RegistrationNumber,
	})
}

func (h *Handlers) analyze(w http.ResponseWriter, r *http.Request, sub model.Submission) {
	res, err := h.pipeline.Analyze(r.Context(), sub)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("kind", string(sub.Kind)).Msg("analysis failed")
		respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Recent handles GET /api/v1/recent?limit=N
func (h *Handlers) Recent(w http.ResponseWriter, r *http.Request) {
	store := h.pipeline.History()
	if store == nil {
		respondError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit, ok := queryLimit(w, r, "limit")
	if !ok {
		return
	}
	entries, err := store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read history")
		respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Dashboard handles GET /api/v1/dashboard?recent=N
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.pipeline.History() == nil {
		respondError(w, http.StatusNotFound, "history is disabled")
		return
	}
	recent, ok := queryLimit(w, r, "recent")
	if !ok {
		return
	}
	d, err := h.pipeline.Dashboard(r.Context(), recent)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build dashboard")
		respondError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Rules handles GET /api/v1/rules
func (h *Handlers) Rules(w http.ResponseWriter, r *http.Request) {
	snap := h.pipeline.Engine().Snapshot()
	advisors, domains := snap.Tables.Counts()
	respondJSON(w, http.StatusOK, map[string]any{
		"name":     snap.Catalog.Name(),
		"version":  snap.Version(),
		"digest":   snap.Catalog.Digest(),
		"rule_set": snap.Catalog.RuleSet(),
		"tables": map[string]any{
			"fingerprint": snap.Tables.Fingerprint(),
			"as_of":       snap.Tables.AsOf().Format("2006-01-02"),
			"advisors":    advisors,
			"domains":     domains,
		},
	})
}

// Reload handles POST /api/v1/admin/reload
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}

	eng := h.pipeline.Engine()
	reloadRules := req.Target == "" || req.Target == "all" || req.Target == "rules"
	reloadTables := req.Target == "" || req.Target == "all" || req.Target == "tables"
	if !reloadRules && !reloadTables {
		respondError(w, http.StatusBadRequest, "target must be rules, tables or all")
		return
	}

	var ruleSrc rules.Source
	var tableSrc reftable.Source
	if reloadRules {
		ruleSrc = h.ruleSource
	}
	if reloadTables {
		tableSrc = h.tableSource
	}
	// Both sources load before anything is swapped, so a failure leaves the
	// serving snapshot untouched
	if err := eng.Reload(r.Context(), ruleSrc, tableSrc); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	snap := eng.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "reloaded",
		"rule_set_version": snap.Version(),
		"rule_set_digest":  snap.Catalog.Digest(),
		"tables":           snap.Tables.Fingerprint(),
	})
}

// decode reads a JSON body no larger than maxBodyBytes. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryLimit(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultRecent, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	if n > maxRecent {
		n = maxRecent
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
