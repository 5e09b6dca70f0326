/*
Package reconcile runs variance analyses against live collaborators.

PURPOSE:
  variance.Analyze is pure. This package is the calling layer around it:
  it fetches budget and actual items, resolves the organization's
  thresholds, looks up the previous period's run for trend comparison,
  persists each new run and serves repeated requests from the cache.

RUN FLOW:
  1. Resolve thresholds (request override, else ThresholdStore)
  2. Cache lookup by org/board/period; a hit under the same thresholds
     returns the cached run without touching the sources
  3. Fetch budgets and actuals (request sources, else service sources)
  4. LatestRun for the previous period supplies the trend baseline
  5. Analyze
  6. SaveRun with a fresh ID (runs are write-once), then cache it

CONCURRENCY:
  A Service is safe for concurrent use; it holds no mutable state of its
  own. RunBatch bounds parallelism with Workers at the I/O boundary.

SEE ALSO:
  - variance/store.go: Collaborator interfaces
  - api/handlers.go: HTTP entry point
  - cmd/variance: CLI entry point
*/
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/variance-engine/logger"
	"github.com/warp/variance-engine/variance"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	DefaultWorkers  = 4
)

// =============================================================================
// REQUEST / OUTCOME
// =============================================================================

// Request names the scope of one analysis.
type Request struct {
	OrgID   string
	BoardID string
	Period  string // YYYY-MM

	// Thresholds overrides the organization's stored configuration.
	Thresholds *variance.ThresholdConfig

	// Budgets and Actuals override the service sources, e.g. for items
	// posted with an API request. Such runs bypass the cache lookup.
	Budgets variance.BudgetSource
	Actuals variance.ActualSource

	// Previous overrides the stored previous-period run as trend baseline.
	Previous *variance.AnalysisResult

	// Refresh skips the cache lookup and always re-runs.
	Refresh bool
}

func (r Request) Key() variance.RunKey {
	return variance.RunKey{OrgID: r.OrgID, BoardID: r.BoardID, Period: r.Period}
}

// Outcome is a run plus how it was produced.
type Outcome struct {
	Run    variance.AnalysisRun `json:"run"`
	Cached bool                 `json:"cached"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Budgets    variance.BudgetSource
	Actuals    variance.ActualSource
	Results    variance.ResultStore
	Thresholds variance.ThresholdStore

	// Cache is optional; nil disables caching.
	Cache    variance.Cache
	CacheTTL time.Duration

	Workers int
	Log     zerolog.Logger

	newID func() string
	now   func() time.Time
}

// New creates a Service. Sources may be nil when every request carries
// its own.
func New(budgets variance.BudgetSource, actuals variance.ActualSource, results variance.ResultStore, thresholds variance.ThresholdStore, log zerolog.Logger) *Service {
	return &Service{
		Budgets:    budgets,
		Actuals:    actuals,
		Results:    results,
		Thresholds: thresholds,
		CacheTTL:   DefaultCacheTTL,
		Workers:    DefaultWorkers,
		Log:        log,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// WithCache enables result caching with the given TTL.
func (s *Service) WithCache(c variance.Cache, ttl time.Duration) *Service {
	s.Cache = c
	if ttl > 0 {
		s.CacheTTL = ttl
	}
	return s
}

// WithClock replaces the clock and ID generator. Used by tests.
func (s *Service) WithClock(now func() time.Time, newID func() string) *Service {
	s.now = now
	s.newID = newID
	return s
}

// =============================================================================
// RUN
// =============================================================================

// Run performs one analysis. Validation and config errors from the engine
// are returned wrapped; check them with variance.IsClientError.
func (s *Service) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.OrgID == "" || req.BoardID == "" {
		return Outcome{}, &variance.ItemError{ItemID: req.Key().String(), Field: "scope", Reason: "org and board are required", Err: variance.ErrMissingID}
	}
	period, err := variance.ParsePeriod(req.Period)
	if err != nil {
		return Outcome{}, &variance.ItemError{ItemID: req.Key().String(), Field: "period", Reason: err.Error(), Err: variance.ErrInvalidPeriod}
	}

	key := req.Key()
	log := s.Log.With().Str("run_key", key.String()).Logger()
	ctx = logger.WithContext(ctx, log)

	cfg, err := s.resolveThresholds(ctx, req)
	if err != nil {
		return Outcome{}, err
	}

	cacheable := req.Budgets == nil && req.Actuals == nil && req.Previous == nil
	if cacheable && !req.Refresh {
		if run, ok := s.cached(ctx, key, cfg); ok {
			log.Debug().Str("run_id", run.ID).Msg("served analysis from cache")
			return Outcome{Run: run, Cached: true}, nil
		}
	}

	budgets, actuals, err := s.fetch(ctx, req, period)
	if err != nil {
		return Outcome{}, err
	}

	previous, previousID, err := s.previous(ctx, req, period)
	if err != nil {
		return Outcome{}, err
	}

	result, err := variance.Analyze(budgets, actuals, cfg, previous)
	if err != nil {
		return Outcome{}, fmt.Errorf("analysis %s failed: %w", key, err)
	}

	run := variance.AnalysisRun{
		ID:            s.newID(),
		Key:           key,
		Thresholds:    cfg,
		Result:        result,
		CreatedAt:     s.now().UTC(),
		PreviousRunID: previousID,
	}
	if err := s.Results.SaveRun(ctx, run); err != nil {
		return Outcome{}, fmt.Errorf("failed to save run %s: %w", key, err)
	}

	if cacheable {
		s.store(ctx, key, run)
	}

	log.Info().
		Str("run_id", run.ID).
		Int("records", result.Summary.RecordCount).
		Int("insights", len(result.Insights)).
		Int("critical", result.Summary.SeverityCounts[variance.SeverityCritical]).
		Msg("analysis completed")

	return Outcome{Run: run}, nil
}

// Invalidate drops the cached run for key, e.g. after new items are loaded.
func (s *Service) Invalidate(ctx context.Context, key variance.RunKey) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Delete(ctx, cacheKey(key))
}

// prefixDeleter is implemented by caches that can drop a key range.
type prefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// InvalidateOrg drops every cached run of orgID. Caches without prefix
// deletion leave the entries to expire with their TTL.
func (s *Service) InvalidateOrg(ctx context.Context, orgID string) error {
	pd, ok := s.Cache.(prefixDeleter)
	if !ok {
		return nil
	}
	return pd.DeletePrefix(ctx, "run:"+orgID+"/")
}

func (s *Service) resolveThresholds(ctx context.Context, req Request) (variance.ThresholdConfig, error) {
	if req.Thresholds != nil {
		cfg := req.Thresholds.WithDefaults()
		if err := cfg.Validate(); err != nil {
			return variance.ThresholdConfig{}, err
		}
		return cfg, nil
	}
	cfg, err := s.Thresholds.GetThresholds(ctx, req.OrgID)
	if err != nil {
		return variance.ThresholdConfig{}, fmt.Errorf("failed to load thresholds for %s: %w", req.OrgID, err)
	}
	return cfg, nil
}

func (s *Service) fetch(ctx context.Context, req Request, period variance.Period) ([]variance.BudgetItem, []variance.ActualItem, error) {
	budgetSource, actualSource := s.Budgets, s.Actuals
	if req.Budgets != nil {
		budgetSource = req.Budgets
	}
	if req.Actuals != nil {
		actualSource = req.Actuals
	}
	if budgetSource == nil || actualSource == nil {
		return nil, nil, errors.New("no budget or actual source configured")
	}

	budgets, err := budgetSource.Budgets(ctx, req.OrgID, req.BoardID, period)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch budgets: %w", err)
	}
	actuals, err := actualSource.Actuals(ctx, req.OrgID, period)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch actuals: %w", err)
	}
	return budgets, actuals, nil
}

// previous returns the trend baseline: the request override, else the
// newest stored run for the previous period. No stored run is not an error.
func (s *Service) previous(ctx context.Context, req Request, period variance.Period) (*variance.AnalysisResult, string, error) {
	if req.Previous != nil {
		return req.Previous, "", nil
	}
	key := variance.RunKey{OrgID: req.OrgID, BoardID: req.BoardID, Period: period.Previous().Label}
	run, err := s.Results.LatestRun(ctx, key)
	if errors.Is(err, variance.ErrRunNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load previous run %s: %w", key, err)
	}
	return &run.Result, run.ID, nil
}

// =============================================================================
// CACHE
// =============================================================================

func cacheKey(key variance.RunKey) string {
	return "run:" + key.String()
}

// cached returns the cached run when it was produced under cfg. Cache
// failures are logged and treated as misses.
func (s *Service) cached(ctx context.Context, key variance.RunKey, cfg variance.ThresholdConfig) (variance.AnalysisRun, bool) {
	if s.Cache == nil {
		return variance.AnalysisRun{}, false
	}
	data, err := s.Cache.Get(ctx, cacheKey(key))
	if err != nil {
		if !errors.Is(err, variance.ErrCacheMiss) {
			s.Log.Warn().Err(err).Str("run_key", key.String()).Msg("cache read failed")
		}
		return variance.AnalysisRun{}, false
	}

	var run variance.AnalysisRun
	if err := json.Unmarshal(data, &run); err != nil {
		s.Log.Warn().Err(err).Str("run_key", key.String()).Msg("discarding unreadable cache entry")
		return variance.AnalysisRun{}, false
	}
	if !sameThresholds(run.Thresholds, cfg) {
		return variance.AnalysisRun{}, false
	}
	return run, true
}

func (s *Service) store(ctx context.Context, key variance.RunKey, run variance.AnalysisRun) {
	if s.Cache == nil {
		return
	}
	data, err := json.Marshal(run)
	if err != nil {
		s.Log.Warn().Err(err).Msg("failed to encode run for cache")
		return
	}
	if err := s.Cache.Set(ctx, cacheKey(key), data, s.CacheTTL); err != nil {
		s.Log.Warn().Err(err).Str("run_key", key.String()).Msg("cache write failed")
	}
}

func sameThresholds(a, b variance.ThresholdConfig) bool {
	return a.Profile == b.Profile &&
		a.WarningPercent.Equal(b.WarningPercent) &&
		a.CriticalPercent.Equal(b.CriticalPercent) &&
		a.FavorablePercent.Equal(b.FavorablePercent)
}

// =============================================================================
// BATCH
// =============================================================================

// BatchResult pairs a request with its outcome or error.
type BatchResult struct {
	Request Request
	Outcome Outcome
	Err     error
}

// RunBatch runs requests with at most Workers in flight. Results are in
// request order; one failing request does not cancel the others.
func (s *Service) RunBatch(ctx context.Context, reqs []Request) []BatchResult {
	results := make([]BatchResult, len(reqs))

	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			results[i].Request = req
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Outcome, results[i].Err = s.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.Log.Info().Int("requests", len(reqs)).Int("failed", failed).Msg("batch completed")

	return results
}
