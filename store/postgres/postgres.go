/*
Package postgres provides a PostgreSQL-backed ResultStore and ThresholdStore.

PURPOSE:
  Multi-instance deployments share run history and thresholds through
  PostgreSQL. Results are stored as JSONB so historical runs can be queried
  ad hoc without a column per field.

POOL OWNERSHIP:
  The *pgxpool.Pool is created once in main (Connect) and injected. This
  package holds no package-level pool.

USAGE:
  pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL)
  if err != nil {
      return err
  }
  defer pool.Close()

  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil {
      return err
  }

SEE ALSO:
  - store/sqlite/sqlite.go: Single-node implementation
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/variance-engine/variance"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Connect parses url and opens a pool.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url not set")
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool     *pgxpool.Pool
	defaults variance.ThresholdConfig
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, defaults: variance.DefaultThresholds()}
}

// WithDefaultThresholds sets the configuration returned for organizations
// that never saved their own.
func (s *Store) WithDefaultThresholds(cfg variance.ThresholdConfig) *Store {
	s.defaults = cfg
	return s
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS variance_runs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		board_id TEXT NOT NULL,
		period TEXT NOT NULL,
		thresholds JSONB NOT NULL,
		result JSONB NOT NULL,
		previous_run_id TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_variance_runs_scope
		ON variance_runs (org_id, board_id, period, created_at DESC);

	CREATE TABLE IF NOT EXISTS variance_thresholds (
		org_id TEXT PRIMARY KEY,
		config JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// =============================================================================
// RESULT STORE
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run variance.AnalysisRun) error {
	thresholds, err := json.Marshal(run.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	var previous *string
	if run.PreviousRunID != "" {
		previous = &run.PreviousRunID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO variance_runs (id, org_id, board_id, period, thresholds, result, previous_run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Key.OrgID, run.Key.BoardID, run.Key.Period,
		thresholds, result, previous, run.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return variance.ErrDuplicateRun
	}
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, org_id, board_id, period, thresholds, result, previous_run_id, created_at`

func (s *Store) GetRun(ctx context.Context, id string) (variance.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM variance_runs WHERE id = $1", id)
	return scanRun(row)
}

func (s *Store) LatestRun(ctx context.Context, key variance.RunKey) (variance.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM variance_runs
		WHERE org_id = $1 AND board_id = $2 AND period = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		key.OrgID, key.BoardID, key.Period,
	)
	return scanRun(row)
}

func (s *Store) ListRuns(ctx context.Context, orgID, boardID string, limit int) ([]variance.AnalysisRun, error) {
	query := `
		SELECT ` + runColumns + ` FROM variance_runs
		WHERE org_id = $1 AND board_id = $2
		ORDER BY created_at DESC, id DESC`
	args := []any{orgID, boardID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []variance.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (variance.AnalysisRun, error) {
	var run variance.AnalysisRun
	var thresholds, result []byte
	var previous *string

	err := row.Scan(&run.ID, &run.Key.OrgID, &run.Key.BoardID, &run.Key.Period,
		&thresholds, &result, &previous, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return variance.AnalysisRun{}, variance.ErrRunNotFound
	}
	if err != nil {
		return variance.AnalysisRun{}, fmt.Errorf("failed to load run: %w", err)
	}

	if err := json.Unmarshal(thresholds, &run.Thresholds); err != nil {
		return variance.AnalysisRun{}, fmt.Errorf("failed to unmarshal thresholds: %w", err)
	}
	if err := json.Unmarshal(result, &run.Result); err != nil {
		return variance.AnalysisRun{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	if previous != nil {
		run.PreviousRunID = *previous
	}
	return run, nil
}

// =============================================================================
// THRESHOLD STORE
// =============================================================================

func (s *Store) GetThresholds(ctx context.Context, orgID string) (variance.ThresholdConfig, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, "SELECT config FROM variance_thresholds WHERE org_id = $1", orgID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return variance.ThresholdConfig{}, fmt.Errorf("failed to load thresholds: %w", err)
	}

	var cfg variance.ThresholdConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return variance.ThresholdConfig{}, fmt.Errorf("failed to unmarshal thresholds: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveThresholds(ctx context.Context, orgID string, cfg variance.ThresholdConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO variance_thresholds (org_id, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id)
		DO UPDATE SET
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at`,
		orgID, raw, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save thresholds: %w", err)
	}
	return nil
}

// Reset truncates both tables (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE variance_runs, variance_thresholds")
	return err
}

var (
	_ variance.ResultStore    = (*Store)(nil)
	_ variance.ThresholdStore = (*Store)(nil)
)
