/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Item and threshold
  payloads reuse the factory schema types so amounts arrive as exact
  decimals; responses embed variance types, whose decimals serialize as
  strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers (via factory and the engine), not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/: Item and threshold payload schemas
*/
package api

import (
	"time"

	"github.com/warp/variance-engine/factory"
	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// ANALYSES
// =============================================================================

// AnalyzeRequest runs one analysis. When Budgets is omitted the stored
// items for org/board/period are used; the same for Actuals.
type AnalyzeRequest struct {
	OrgID      string                   `json:"org_id"`
	BoardID    string                   `json:"board_id"`
	Period     string                   `json:"period"`
	Budgets    []factory.BudgetItemJSON `json:"budgets,omitempty"`
	Actuals    []factory.ActualItemJSON `json:"actuals,omitempty"`
	Thresholds *factory.ThresholdsJSON  `json:"thresholds,omitempty"`
	Previous   *variance.AnalysisResult `json:"previous,omitempty"`
	Refresh    bool                     `json:"refresh,omitempty"`
}

// AnalysisResponse wraps a run with whether it came from cache.
type AnalysisResponse struct {
	Run    variance.AnalysisRun `json:"run"`
	Cached bool                 `json:"cached"`
}

// BatchRequest runs stored-item analyses for several scopes.
type BatchRequest struct {
	Requests []BatchItemRequest `json:"requests"`
}

type BatchItemRequest struct {
	OrgID   string `json:"org_id"`
	BoardID string `json:"board_id"`
	Period  string `json:"period"`
}

type BatchItemResponse struct {
	Key    variance.RunKey `json:"key"`
	RunID  string          `json:"run_id,omitempty"`
	Cached bool            `json:"cached,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RunSummaryDTO is one row of run history.
type RunSummaryDTO struct {
	ID            string           `json:"id"`
	Key           variance.RunKey  `json:"key"`
	Profile       variance.Profile `json:"profile"`
	Summary       variance.Summary `json:"summary"`
	InsightCount  int              `json:"insight_count"`
	PreviousRunID string           `json:"previous_run_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func toRunSummaryDTO(run variance.AnalysisRun) RunSummaryDTO {
	return RunSummaryDTO{
		ID:            run.ID,
		Key:           run.Key,
		Profile:       run.Result.Profile,
		Summary:       run.Result.Summary,
		InsightCount:  len(run.Result.Insights),
		PreviousRunID: run.PreviousRunID,
		CreatedAt:     run.CreatedAt,
	}
}

// =============================================================================
// THRESHOLDS / ITEMS
// =============================================================================

type ThresholdsResponse struct {
	OrgID      string                 `json:"org_id"`
	Thresholds factory.ThresholdsJSON `json:"thresholds"`
}

type ItemsResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// =============================================================================
// SCENARIOS / MISC
// =============================================================================

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	OrgID       string   `json:"org_id"`
	BoardID     string   `json:"board_id"`
	Periods     []string `json:"periods"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Status   string   `json:"status"`
	Scenario string   `json:"scenario"`
	RunIDs   []string `json:"run_ids"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
