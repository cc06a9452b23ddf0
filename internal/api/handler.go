package api

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/tenderwatch/internal/analysis"
	"github.com/opensource-finance/tenderwatch/internal/detect"
	"github.com/opensource-finance/tenderwatch/internal/domain"
	"github.com/opensource-finance/tenderwatch/internal/repository"
	"github.com/opensource-finance/tenderwatch/internal/rules"
	"github.com/opensource-finance/tenderwatch/internal/scoring"
)

const (
	maxClaimBody = 1 << 20
	maxBatchBody = 32 << 20

	// MaxBatchClaims bounds a single POST /claims/batch request.
	MaxBatchClaims = 5000
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *analysis.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
	now     func() time.Time
}

// NewHandler creates a new API handler. repo, cache and bus may be nil.
func NewHandler(svc *analysis.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
		now:     time.Now,
	}
}

// AnalyzeResponse wraps a ClaimAnalysis with request metadata.
type AnalyzeResponse struct {
	*domain.ClaimAnalysis
	Version string `json:"version"`
}

// Analyze handles POST /claims/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.decodeClaim(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Submit(r.Context(), claim)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{ClaimAnalysis: a, Version: h.version})
}

// Evaluate handles POST /claims/evaluate. Nothing is recorded.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.decodeClaim(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Evaluate(r.Context(), claim)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{ClaimAnalysis: a, Version: h.version})
}

// BatchRequest is the request body for POST /claims/batch.
type BatchRequest struct {
	Claims []domain.Claim `json:"claims"`
	DryRun bool           `json:"dryRun,omitempty"`
}

// BatchItem is one entry of a BatchResponse, in request order.
type BatchItem struct {
	ClaimID  string                `json:"claimId"`
	Analysis *domain.ClaimAnalysis `json:"analysis,omitempty"`
	Error    string                `json:"error,omitempty"`
	Status   int                   `json:"status"`
}

// BatchResponse is the response for POST /claims/batch.
type BatchResponse struct {
	Results   []BatchItem `json:"results"`
	Count     int         `json:"count"`
	Failed    int         `json:"failed"`
	DryRun    bool        `json:"dryRun,omitempty"`
	Version   string      `json:"version"`
	ElapsedMs int64       `json:"elapsedMs"`
}

// Batch handles POST /claims/batch. Claims of one vendor are scored in
// submission-time order; results come back in request order.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req BatchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Claims) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claims must not be empty",
		})
		return
	}
	if len(req.Claims) > MaxBatchClaims {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("at most %d claims per batch", MaxBatchClaims),
		})
		return
	}
	for i := range req.Claims {
		h.fillDefaults(&req.Claims[i])
	}

	var results []analysis.BatchResult
	if req.DryRun {
		results = h.svc.EvaluateBatch(r.Context(), req.Claims)
	} else {
		results = h.svc.SubmitBatch(r.Context(), req.Claims)
	}

	resp := BatchResponse{
		Results: make([]BatchItem, len(results)),
		Count:   len(results),
		DryRun:  req.DryRun,
		Version: h.version,
	}
	for i, res := range results {
		item := BatchItem{ClaimID: req.Claims[i].ID, Analysis: res.Analysis, Status: http.StatusOK}
		if res.Err != nil {
			item.Status, item.Error = errorStatus(res.Err), res.Err.Error()
			resp.Failed++
		}
		resp.Results[i] = item
	}
	resp.ElapsedMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, resp)
}

// QueueResponse is the response for POST /claims/queue.
type QueueResponse struct {
	ClaimID string `json:"claimId"`
	TraceID string `json:"traceId"`
	Status  string `json:"status"`
}

// Queue handles POST /claims/queue. The claim is validated, then published
// for the worker to analyse.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	claim, ok := h.decodeClaim(w, r)
	if !ok {
		return
	}
	if err := claim.Validate(); err != nil {
		writeError(w, err)
		return
	}

	traceID := GetTraceID(r.Context())
	payload, err := json.Marshal(domain.ClaimMessage{Claim: claim, TraceID: traceID})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TopicClaimSubmitted, payload); err != nil {
		slog.Error("failed to queue claim", "claim_id", claim.ID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue claim",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, QueueResponse{
		ClaimID: claim.ID,
		TraceID: traceID,
		Status:  "queued",
	})
}

// decodeClaim reads a claim body. A missing id or submission time is
// assigned here, before validation.
func (h *Handler) decodeClaim(w http.ResponseWriter, r *http.Request) (domain.Claim, bool) {
	var claim domain.Claim
	r.Body = http.MaxBytesReader(w, r.Body, maxClaimBody)
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return claim, false
	}
	h.fillDefaults(&claim)
	return claim, true
}

func (h *Handler) fillDefaults(c *domain.Claim) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = h.now().UTC()
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("eventbus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     "true",
		"claims":    h.svc.Tracker().Len(),
		"detectors": h.svc.Registry().Len(),
	})
}

// GetClaim retrieves a stored claim by ID.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	claim, err := h.repo.GetClaim(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetAnalysis retrieves an analysis by ID, from cache first.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetReport renders the fraud report for an analysis.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scoring.BuildReport(a))
}

// GetVendorProfile returns the incremental profile of a known vendor.
func (h *Handler) GetVendorProfile(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	p := h.svc.Profile(vendorID)
	if p.IsNew() {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "vendor not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetVendorRisk returns the behavioural risk summary of a vendor.
// Unknown vendors get the "unknown" level rather than 404.
func (h *Handler) GetVendorRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.RiskProfile(chi.URLParam(r, "id")))
}

// SuccessRateRequest is the request body for PUT /vendors/{id}/success-rate.
type SuccessRateRequest struct {
	SuccessRate *float64 `json:"successRate"`
}

// SetSuccessRate records a vendor's externally supplied approval rate.
func (h *Handler) SetSuccessRate(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	var req SuccessRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SuccessRate == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "successRate is required",
		})
		return
	}

	rate, err := h.svc.SetSuccessRate(r.Context(), vendorID, *req.SuccessRate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vendorId":    vendorID,
		"successRate": rate,
	})
}

// DetectorInfo describes one registered detector.
type DetectorInfo struct {
	Type   domain.SignalType `json:"type"`
	Name   string            `json:"name"`
	RuleID string            `json:"ruleId,omitempty"`
}

// ListDetectors returns the detectors in execution order.
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	detectors := h.svc.Registry().Detectors()

	out := make([]DetectorInfo, len(detectors))
	for i, d := range detectors {
		out[i] = DetectorInfo{Type: d.Type(), Name: detect.Name(d.Type())}
		if rd, ok := d.(interface{ RuleID() string }); ok {
			out[i].RuleID = rd.RuleID()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detectors": out,
		"count":     len(out),
	})
}

// ============================================================================
// RULE HANDLERS
// ============================================================================

// ListRules returns the custom rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	engine := h.svc.Rules()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	loaded := engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a rule by ID, from the engine or else the repository.
// Disabled rules are only found in the repository.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if engine := h.svc.Rules(); engine != nil {
		for _, rule := range engine.GetLoadedRules() {
			if rule.ID == ruleID {
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
	}

	if h.repo != nil {
		rule, err := h.repo.GetRuleConfig(r.Context(), ruleID)
		if err == nil {
			writeJSON(w, http.StatusOK, rule)
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule, persists it and, when enabled, loads it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	engine := h.svc.Rules()
	if engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	now := h.now().UTC()
	rule := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     cmp.Or(req.Version, "1.0.0"),
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(r.Context(), rule); err != nil {
			slog.Error("failed to save rule config", "rule_id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := engine.LoadRule(rule); err != nil {
			writeError(w, err)
			return
		}
	}

	slog.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":   rule,
		"loaded": rule.Enabled,
	})
}

// ReloadRules replaces the loaded rules with the repository's latest versions.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	engine := h.svc.Rules()
	if h.repo == nil || engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "stored", len(stored), "loaded", engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   engine.RulesCount(),
	})
}

// errorStatus maps service and repository errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrInvalidClaim), errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, rules.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateClaim):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
