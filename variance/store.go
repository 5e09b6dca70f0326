/*
store.go - Collaborator interfaces around the engine

PURPOSE:
  Analyze is pure. Everything it needs from the outside world (budget and
  actual items, cached results, previous runs for trend comparison, per-org
  thresholds) is supplied by the caller through these interfaces. Concrete
  implementations are constructed once at startup and injected; there are
  no package-level singletons.

KEY INTERFACES:
  BudgetSource:   Budget line items for org/board/period
  ActualSource:   Actual items for org/period
  Cache:          Keyed bytes with TTL (serialized runs)
  ResultStore:    Write-once history of analysis runs
  ThresholdStore: Per-organization ThresholdConfig

WRITE-ONCE CONTRACT:
  ResultStore has SaveRun but no Update or Delete. Each run gets a fresh ID;
  re-running a period appends a new run and LatestRun returns the newest.

IMPLEMENTATIONS:
  - variance/store/memory.go: In-memory ResultStore + ThresholdStore
  - store/sqlite/sqlite.go:   SQLite (runs, thresholds, cache table)
  - store/postgres/postgres.go: PostgreSQL via pgx
  - cache/memory.go:          In-memory TTL cache with janitor
  - ingest/:                  File and payload backed sources

SEE ALSO:
  - reconcile/service.go: Wires these around Analyze
*/
package variance

import (
	"context"
	"time"
)

// =============================================================================
// SOURCES - Where items come from
// =============================================================================

// BudgetSource supplies planned line items, e.g. from a work-management board.
type BudgetSource interface {
	Budgets(ctx context.Context, orgID, boardID string, period Period) ([]BudgetItem, error)
}

// ActualSource supplies realized amounts, e.g. from an accounting system.
type ActualSource interface {
	Actuals(ctx context.Context, orgID string, period Period) ([]ActualItem, error)
}

// =============================================================================
// CACHE - Keyed bytes with TTL
// =============================================================================

// Cache stores serialized runs. Get returns ErrCacheMiss for absent or
// expired keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// RESULT STORE - Write-once history of runs
// =============================================================================

// RunKey identifies the scope of one analysis.
type RunKey struct {
	OrgID   string `json:"org_id"`
	BoardID string `json:"board_id"`
	Period  string `json:"period"`
}

func (k RunKey) String() string {
	return k.OrgID + "/" + k.BoardID + "/" + k.Period
}

// AnalysisRun is a persisted AnalysisResult with its scope and inputs' config.
type AnalysisRun struct {
	ID         string          `json:"id"`
	Key        RunKey          `json:"key"`
	Thresholds ThresholdConfig `json:"thresholds"`
	Result     AnalysisResult  `json:"result"`
	CreatedAt  time.Time       `json:"created_at"`

	// PreviousRunID is the run used for trend comparison, if any.
	PreviousRunID string `json:"previous_run_id,omitempty"`
}

type ResultStore interface {
	// SaveRun persists a run. Returns ErrDuplicateRun if the ID exists.
	SaveRun(ctx context.Context, run AnalysisRun) error

	// GetRun returns a run by ID or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (AnalysisRun, error)

	// LatestRun returns the newest run for key or ErrRunNotFound.
	LatestRun(ctx context.Context, key RunKey) (AnalysisRun, error)

	// ListRuns returns runs for org/board, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, orgID, boardID string, limit int) ([]AnalysisRun, error)
}

// =============================================================================
// THRESHOLD STORE - Per-organization configuration
// =============================================================================

// ThresholdStore returns DefaultThresholds for organizations with no saved
// configuration.
type ThresholdStore interface {
	GetThresholds(ctx context.Context, orgID string) (ThresholdConfig, error)
	SaveThresholds(ctx context.Context, orgID string, cfg ThresholdConfig) error
}
