/*
handlers.go - HTTP API handlers for the variance engine

PURPOSE:
  Exposes reconciliation runs via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to reconcile.Service.

ENDPOINTS:
  Analyses:
    POST   /api/analyses                        Run one analysis
    POST   /api/analyses/batch                  Run several (stored items)
    GET    /api/analyses/{org}/{board}          Run history, newest first
    GET    /api/analyses/{org}/{board}/{period} Latest run for a period
    GET    /api/runs/{id}                       Run by ID

  Organizations:
    GET    /api/organizations/{org}/thresholds
    PUT    /api/organizations/{org}/thresholds  JSON or YAML body
    PUT    /api/organizations/{org}/boards/{board}/periods/{period}/budgets
    PUT    /api/organizations/{org}/periods/{period}/actuals

  Scenarios:
    GET    /api/scenarios                       List demo datasets
    POST   /api/scenarios/load                  Load and analyze one

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert payloads via factory (exact decimals, typed errors)
  3. Call reconcile.Service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with:
  - 400: Invalid body, validation or threshold errors
  - 404: Run not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo dataset loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/variance-engine/factory"
	"github.com/warp/variance-engine/ingest"
	"github.com/warp/variance-engine/logger"
	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/variance"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ItemStore persists uploaded budget and actual items.
type ItemStore interface {
	SaveBudgets(ctx context.Context, orgID, boardID, period string, items []variance.BudgetItem) error
	SaveActuals(ctx context.Context, orgID, period string, items []variance.ActualItem) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *reconcile.Service
	Items   ItemStore
	Factory *factory.Factory
	Log     zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. The service's sources should read the
// items written to items.
func NewHandler(svc *reconcile.Service, items ItemStore, log zerolog.Logger) *Handler {
	return &Handler{
		Service: svc,
		Items:   items,
		Factory: factory.New(),
		Log:     log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// ANALYSIS HANDLERS
// =============================================================================

// RunAnalysis runs one analysis from posted or stored items.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := reconcile.Request{
		OrgID:    body.OrgID,
		BoardID:  body.BoardID,
		Period:   body.Period,
		Previous: body.Previous,
		Refresh:  body.Refresh,
	}

	if body.Budgets != nil {
		budgets, err := h.Factory.BudgetsFromJSON(body.Budgets, body.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid budget items", err)
			return
		}
		req.Budgets = ingest.Static{BudgetItems: budgets}
	}
	if body.Actuals != nil {
		actuals, err := h.Factory.ActualsFromJSON(body.Actuals, body.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actual items", err)
			return
		}
		req.Actuals = ingest.Static{ActualItems: actuals}
	}
	if body.Thresholds != nil {
		cfg, err := h.Factory.ThresholdsFromJSON(*body.Thresholds)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid thresholds", err)
			return
		}
		req.Thresholds = &cfg
	}

	out, err := h.Service.Run(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Analysis failed", err)
		return
	}

	status := http.StatusCreated
	if out.Cached {
		status = http.StatusOK
	}
	writeJSON(w, status, AnalysisResponse{Run: out.Run, Cached: out.Cached})
}

// RunBatch runs stored-item analyses for several scopes. Per-scope errors
// are reported inline; the response is 200 unless the body is invalid.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "No requests in batch", nil)
		return
	}

	reqs := make([]reconcile.Request, len(body.Requests))
	for i, b := range body.Requests {
		reqs[i] = reconcile.Request{OrgID: b.OrgID, BoardID: b.BoardID, Period: b.Period}
	}

	results := h.Service.RunBatch(r.Context(), reqs)

	resp := make([]BatchItemResponse, len(results))
	for i, res := range results {
		resp[i] = BatchItemResponse{Key: res.Request.Key()}
		if res.Err != nil {
			resp[i].Error = res.Err.Error()
			continue
		}
		resp[i].RunID = res.Outcome.Run.ID
		resp[i].Cached = res.Outcome.Cached
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRuns returns run history for org/board. ?limit=N caps the result.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Service.Results.ListRuns(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "board"), limit)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list runs", err)
		return
	}

	dtos := make([]RunSummaryDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunSummaryDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LatestRun returns the newest run for a period.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	key := variance.RunKey{
		OrgID:   chi.URLParam(r, "org"),
		BoardID: chi.URLParam(r, "board"),
		Period:  chi.URLParam(r, "period"),
	}
	run, err := h.Service.Results.LatestRun(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.Results.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org")
	cfg, err := h.Service.Thresholds.GetThresholds(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, r, "Failed to load thresholds", err)
		return
	}
	writeJSON(w, http.StatusOK, ThresholdsResponse{OrgID: orgID, Thresholds: h.Factory.ThresholdsToJSON(cfg)})
}

// PutThresholds replaces an organization's thresholds. The body may be
// JSON or YAML; omitted fields take defaults.
func (h *Handler) PutThresholds(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.Factory.ParseThresholds(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid thresholds", err)
		return
	}

	if err := h.Service.Thresholds.SaveThresholds(r.Context(), orgID, cfg); err != nil {
		h.writeServiceError(w, r, "Failed to save thresholds", err)
		return
	}

	logger.FromContext(r.Context()).Info().
		Str("org_id", orgID).
		Str("profile", string(cfg.Profile)).
		Str("critical_percent", cfg.CriticalPercent.String()).
		Msg("thresholds updated")

	writeJSON(w, http.StatusOK, ThresholdsResponse{OrgID: orgID, Thresholds: h.Factory.ThresholdsToJSON(cfg)})
}

// PutBudgets replaces the stored budget items of one board and period.
func (h *Handler) PutBudgets(w http.ResponseWriter, r *http.Request) {
	orgID, boardID, period := chi.URLParam(r, "org"), chi.URLParam(r, "board"), chi.URLParam(r, "period")
	if _, err := variance.ParsePeriod(period); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var body []factory.BudgetItemJSON
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	items, err := h.Factory.BudgetsFromJSON(body, period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget items", err)
		return
	}

	if err := h.Items.SaveBudgets(r.Context(), orgID, boardID, period, items); err != nil {
		h.writeServiceError(w, r, "Failed to save budget items", err)
		return
	}
	h.invalidate(r.Context(), variance.RunKey{OrgID: orgID, BoardID: boardID, Period: period})

	writeJSON(w, http.StatusOK, ItemsResponse{Status: "saved", Count: len(items)})
}

// PutActuals replaces the stored actual items of one organization and
// period. Actuals are shared by every board, so all cached runs of the
// organization are dropped.
func (h *Handler) PutActuals(w http.ResponseWriter, r *http.Request) {
	orgID, period := chi.URLParam(r, "org"), chi.URLParam(r, "period")
	if _, err := variance.ParsePeriod(period); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var body []factory.ActualItemJSON
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	items, err := h.Factory.ActualsFromJSON(body, period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid actual items", err)
		return
	}

	if err := h.Items.SaveActuals(r.Context(), orgID, period, items); err != nil {
		h.writeServiceError(w, r, "Failed to save actual items", err)
		return
	}
	if err := h.Service.InvalidateOrg(r.Context(), orgID); err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Str("org_id", orgID).Msg("cache invalidation failed")
	}

	writeJSON(w, http.StatusOK, ItemsResponse{Status: "saved", Count: len(items)})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) invalidate(ctx context.Context, key variance.RunKey) {
	if err := h.Service.Invalidate(ctx, key); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("run_key", key.String()).Msg("cache invalidation failed")
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case variance.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, variance.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
