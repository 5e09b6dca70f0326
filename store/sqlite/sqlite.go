/*
Package sqlite provides a SQLite-backed implementation of the variance
collaborator interfaces.

PURPOSE:
  One file-backed database holds everything the service persists: analysis
  run history, per-organization thresholds, a shared result cache, and the
  budget/actual items loaded through the API or demo scenarios. In
  production, the same patterns apply to PostgreSQL (see store/postgres).

INTERFACES IMPLEMENTED:
  variance.ResultStore:    Write-once analysis runs
  variance.ThresholdStore: Per-organization thresholds
  variance.Cache:          TTL cache table
  variance.BudgetSource:   Budget items by org/board/period
  variance.ActualSource:   Actual items by org/period

WRITE-ONCE ENFORCEMENT:
  analysis_runs is insert-only. Re-running a period inserts a new row and
  LatestRun picks the newest by created_at.

KEY TABLES:
  analysis_runs:  Serialized AnalysisResult per run
  org_thresholds: ThresholdConfig JSON per organization
  cache_entries:  Key/value with absolute expiry (unix nanos)
  budget_items:   Planned line items, ordered by position
  actual_items:   Realized amounts, ordered by position

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/variance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := reconcile.New(store, store, store, store, log).WithCache(store, 5*time.Minute)

SEE ALSO:
  - variance/store.go: Interface definitions
  - variance/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/variance-engine/variance"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time

	// defaults is returned for organizations with no saved thresholds.
	defaults variance.ThresholdConfig
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now, defaults: variance.DefaultThresholds()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithDefaultThresholds sets the configuration returned for organizations
// that never saved their own.
func (s *Store) WithDefaultThresholds(cfg variance.ThresholdConfig) *Store {
	s.defaults = cfg
	return s
}

// WithClock replaces the time source used for cache expiry. Test helper.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Analysis runs (insert-only)
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		board_id TEXT NOT NULL,
		period TEXT NOT NULL,
		thresholds_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		previous_run_id TEXT,
		created_at INTEGER NOT NULL -- unix nanos
	);

	-- LatestRun / ListRuns (hot path)
	CREATE INDEX IF NOT EXISTS idx_runs_scope_created
		ON analysis_runs(org_id, board_id, period, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_board_created
		ON analysis_runs(org_id, board_id, created_at DESC);

	-- Thresholds per organization
	CREATE TABLE IF NOT EXISTS org_thresholds (
		org_id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Result cache
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);

	-- Budget items (board export)
	CREATE TABLE IF NOT EXISTS budget_items (
		org_id TEXT NOT NULL,
		board_id TEXT NOT NULL,
		period_label TEXT NOT NULL,
		id TEXT NOT NULL,
		account_code TEXT,
		account_name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		period_start TEXT,
		period_end TEXT,
		parent_id TEXT,
		category TEXT,
		department TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (org_id, board_id, period_label, id)
	);

	-- Actual items (accounting report)
	CREATE TABLE IF NOT EXISTS actual_items (
		org_id TEXT NOT NULL,
		period_label TEXT NOT NULL,
		id TEXT NOT NULL,
		account_code TEXT,
		account_name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_count INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		PRIMARY KEY (org_id, period_label, id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RESULT STORE
// =============================================================================

// SaveRun inserts a run. Returns variance.ErrDuplicateRun if the ID exists.
func (s *Store) SaveRun(ctx context.Context, run variance.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds, err := json.Marshal(run.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, org_id, board_id, period, thresholds_json,
			result_json, previous_run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Key.OrgID, run.Key.BoardID, run.Key.Period,
		string(thresholds), string(result), nullString(run.PreviousRunID),
		run.CreatedAt.UnixNano(),
	)
	if isUniqueConstraintError(err) {
		return variance.ErrDuplicateRun
	}
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, org_id, board_id, period, thresholds_json, result_json, previous_run_id, created_at`

func (s *Store) GetRun(ctx context.Context, id string) (variance.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM analysis_runs WHERE id = ?", id)
	return scanRun(row)
}

func (s *Store) LatestRun(ctx context.Context, key variance.RunKey) (variance.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM analysis_runs
		WHERE org_id = ? AND board_id = ? AND period = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`,
		key.OrgID, key.BoardID, key.Period,
	)
	return scanRun(row)
}

// ListRuns returns runs for org/board, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, orgID, boardID string, limit int) ([]variance.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM analysis_runs
		WHERE org_id = ? AND board_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		orgID, boardID, limit,
	)
	if err != nil {
		return nil, err
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (variance.AnalysisRun, error) {
	var run variance.AnalysisRun
	var thresholds, result string
	var previous sql.NullString
	var createdAt int64

	err := row.Scan(&run.ID, &run.Key.OrgID, &run.Key.BoardID, &run.Key.Period,
		&thresholds, &result, &previous, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return variance.AnalysisRun{}, variance.ErrRunNotFound
	}
	if err != nil {
		return variance.AnalysisRun{}, err
	}

	if err := json.Unmarshal([]byte(thresholds), &run.Thresholds); err != nil {
		return variance.AnalysisRun{}, fmt.Errorf("failed to unmarshal thresholds for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(result), &run.Result); err != nil {
		return variance.AnalysisRun{}, fmt.Errorf("failed to unmarshal result for run %s: %w", run.ID, err)
	}
	run.PreviousRunID = previous.String
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	return run, nil
}

// =============================================================================
// THRESHOLD STORE
// =============================================================================

func (s *Store) GetThresholds(ctx context.Context, orgID string) (variance.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM org_thresholds WHERE org_id = ?", orgID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return variance.ThresholdConfig{}, err
	}

	var cfg variance.ThresholdConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return variance.ThresholdConfig{}, fmt.Errorf("failed to unmarshal thresholds for %s: %w", orgID, err)
	}
	return cfg, nil
}

// SaveThresholds validates and upserts the organization's configuration.
func (s *Store) SaveThresholds(ctx context.Context, orgID string, cfg variance.ThresholdConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO org_thresholds (org_id, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`,
		orgID, string(raw), s.now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// CACHE
// =============================================================================

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, s.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, variance.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts key. A non-positive ttl deletes it.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`,
		key, value, s.now().Add(ttl).UnixNano(),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// DeletePrefix removes every cache row whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE substr(key, 1, ?) = ?",
		len(prefix), prefix,
	)
	return err
}

// PurgeExpired removes expired cache rows and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// BUDGET / ACTUAL ITEMS
// =============================================================================

// SaveBudgets replaces the budget items of one org/board/period.
func (s *Store) SaveBudgets(ctx context.Context, orgID, boardID, period string, items []variance.BudgetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM budget_items WHERE org_id = ? AND board_id = ? AND period_label = ?",
		orgID, boardID, period,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO budget_items (org_id, board_id, period_label, id, account_code,
			account_name, account_type, amount, period_start, period_end,
			parent_id, category, department, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, b := range items {
		_, err := stmt.ExecContext(ctx,
			orgID, boardID, period, b.ID, nullString(b.AccountCode),
			b.AccountName, string(b.AccountType), b.Amount.String(),
			formatDate(b.Period.Start), formatDate(b.Period.End),
			nullString(b.ParentID), nullString(b.Category), nullString(b.Department), i,
		)
		if isUniqueConstraintError(err) {
			return &variance.ItemError{ItemID: b.ID, Field: "id", Reason: "duplicate id", Err: variance.ErrDuplicateItem}
		}
		if err != nil {
			return fmt.Errorf("failed to save budget item %s: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// SaveActuals replaces the actual items of one org/period.
func (s *Store) SaveActuals(ctx context.Context, orgID, period string, items []variance.ActualItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM actual_items WHERE org_id = ? AND period_label = ?", orgID, period,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO actual_items (org_id, period_label, id, account_code, account_name,
			account_type, amount, transaction_count, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range items {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("actual-%d", i)
		}
		if _, err := stmt.ExecContext(ctx,
			orgID, period, id, nullString(a.AccountCode), a.AccountName,
			string(a.AccountType), a.Amount.String(), a.TransactionCount, i,
		); err != nil {
			return fmt.Errorf("failed to save actual item %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Budgets implements variance.BudgetSource.
func (s *Store) Budgets(ctx context.Context, orgID, boardID string, period variance.Period) ([]variance.BudgetItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_code, account_name, account_type, amount, period_start,
			period_end, parent_id, category, department
		FROM budget_items
		WHERE org_id = ? AND board_id = ? AND period_label = ?
		ORDER BY position`,
		orgID, boardID, period.Label,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []variance.BudgetItem
	for rows.Next() {
		var b variance.BudgetItem
		var code, start, end, parent, category, department sql.NullString
		var accountType, amount string

		if err := rows.Scan(&b.ID, &code, &b.AccountName, &accountType, &amount,
			&start, &end, &parent, &category, &department); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &variance.AmountError{ItemID: b.ID, Field: "amount", Value: amount}
		}
		b.AccountCode = code.String
		b.AccountType = variance.AccountType(accountType)
		b.ParentID = parent.String
		b.Category = category.String
		b.Department = department.String
		b.Period = variance.Period{Label: period.Label, Start: parseDate(start), End: parseDate(end)}
		items = append(items, b)
	}
	return items, rows.Err()
}

// Actuals implements variance.ActualSource.
func (s *Store) Actuals(ctx context.Context, orgID string, period variance.Period) ([]variance.ActualItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_code, account_name, account_type, amount, transaction_count
		FROM actual_items
		WHERE org_id = ? AND period_label = ?
		ORDER BY position`,
		orgID, period.Label,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []variance.ActualItem
	for rows.Next() {
		var a variance.ActualItem
		var code sql.NullString
		var accountType, amount string

		if err := rows.Scan(&a.ID, &code, &a.AccountName, &accountType, &amount, &a.TransactionCount); err != nil {
			return nil, err
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &variance.AmountError{ItemID: a.ID, Field: "amount", Value: amount}
		}
		a.AccountCode = code.String
		a.AccountType = variance.AccountType(accountType)
		a.PeriodLabel = period.Label
		items = append(items, a)
	}
	return items, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"analysis_runs", "org_thresholds", "cache_entries", "budget_items", "actual_items"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format("2006-01-02"), Valid: true}
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", s.String)
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

var (
	_ variance.ResultStore    = (*Store)(nil)
	_ variance.ThresholdStore = (*Store)(nil)
	_ variance.Cache          = (*Store)(nil)
	_ variance.BudgetSource   = (*Store)(nil)
	_ variance.ActualSource   = (*Store)(nil)
)
