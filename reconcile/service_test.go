package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/cache"
	"github.com/warp/variance-engine/ingest"
	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/variance"
	"github.com/warp/variance-engine/variance/store"
)

// =============================================================================
// FIXTURES
// =============================================================================

// countingSource counts fetches so cache hits can be observed.
type countingSource struct {
	ingest.Static
	budgetCalls atomic.Int32
	actualCalls atomic.Int32
	err         error
}

func (c *countingSource) Budgets(ctx context.Context, org, board string, p variance.Period) ([]variance.BudgetItem, error) {
	c.budgetCalls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Static.Budgets(ctx, org, board, p)
}

func (c *countingSource) Actuals(ctx context.Context, org string, p variance.Period) ([]variance.ActualItem, error) {
	c.actualCalls.Add(1)
	return c.Static.Actuals(ctx, org, p)
}

func item(id, code, name, period, amount string) variance.BudgetItem {
	return variance.BudgetItem{
		ID:          id,
		AccountCode: code,
		AccountName: name,
		AccountType: variance.AccountExpense,
		Amount:      variance.MustDecimal(amount),
		Period:      variance.MustParsePeriod(period),
	}
}

func spent(code, name, period, amount string) variance.ActualItem {
	return variance.ActualItem{
		ID:          code + "-" + period,
		AccountCode: code,
		AccountName: name,
		AccountType: variance.AccountExpense,
		Amount:      variance.MustDecimal(amount),
		PeriodLabel: period,
	}
}

func newSource() *countingSource {
	return &countingSource{Static: ingest.Static{
		BudgetItems: []variance.BudgetItem{
			item("rent-feb", "6100", "Rent", "2025-02", "1000"),
			item("rent-mar", "6100", "Rent", "2025-03", "1000"),
		},
		ActualItems: []variance.ActualItem{
			spent("6100", "Rent", "2025-02", "1110"),
			spent("6100", "Rent", "2025-03", "1200"),
		},
	}}
}

type fixture struct {
	svc     *reconcile.Service
	source  *countingSource
	results *store.Memory
	cache   *cache.Memory
	clock   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:  newSource(),
		results: store.NewMemory(),
		clock:   time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.cache = cache.NewMemory(zerolog.Nop()).WithClock(func() time.Time { return f.clock })

	var seq atomic.Int32
	f.svc = reconcile.New(f.source, f.source, f.results, f.results, zerolog.Nop()).
		WithCache(f.cache, time.Minute).
		WithClock(func() time.Time { return f.clock }, func() string {
			return fmt.Sprintf("run-%d", seq.Add(1))
		})
	return f
}

func march() reconcile.Request {
	return reconcile.Request{OrgID: "acme", BoardID: "fy25", Period: "2025-03"}
}

// =============================================================================
// RUN
// =============================================================================

func TestRun_PersistsRun(t *testing.T) {
	// GIVEN an organization with March budgets and actuals
	f := setup(t)

	// WHEN running March
	out, err := f.svc.Run(context.Background(), march())

	// THEN the run is analyzed and stored
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, "run-1", out.Run.ID)
	assert.Equal(t, variance.RunKey{OrgID: "acme", BoardID: "fy25", Period: "2025-03"}, out.Run.Key)
	assert.Equal(t, f.clock, out.Run.CreatedAt)
	assert.Equal(t, "2025-03", out.Run.Result.Period)

	rec, ok := out.Run.Result.Record("rent-mar")
	require.True(t, ok)
	assert.Equal(t, variance.SeverityCritical, rec.Severity)

	stored, err := f.results.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, out.Run.Key, stored.Key)
}

func TestRun_UsesPreviousPeriodForTrend(t *testing.T) {
	// GIVEN February already analyzed (11% over)
	f := setup(t)
	feb := march()
	feb.Period = "2025-02"
	_, err := f.svc.Run(context.Background(), feb)
	require.NoError(t, err)

	// WHEN March runs (20% over)
	out, err := f.svc.Run(context.Background(), march())

	// THEN the February run is the baseline and the trend is worsening
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Run.PreviousRunID)
	rec, _ := out.Run.Result.Record("rent-mar")
	assert.Equal(t, variance.TrendWorsening, rec.Trend)
}

func TestRun_NoPreviousRun_NoTrend(t *testing.T) {
	f := setup(t)

	out, err := f.svc.Run(context.Background(), march())

	require.NoError(t, err)
	assert.Empty(t, out.Run.PreviousRunID)
	rec, _ := out.Run.Result.Record("rent-mar")
	assert.Empty(t, rec.Trend)
}

func TestRun_CacheHitSkipsSources(t *testing.T) {
	// GIVEN a completed run
	f := setup(t)
	first, err := f.svc.Run(context.Background(), march())
	require.NoError(t, err)

	// WHEN the same scope runs again within the TTL
	second, err := f.svc.Run(context.Background(), march())

	// THEN it is served from cache with no new fetch or stored run
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Run.ID, second.Run.ID)
	assert.Equal(t, int32(1), f.source.budgetCalls.Load())

	runs, err := f.results.ListRuns(context.Background(), "acme", "fy25", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_CacheExpires(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Run(context.Background(), march())
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Minute)
	out, err := f.svc.Run(context.Background(), march())

	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, "run-2", out.Run.ID)
}

func TestRun_ThresholdChangeBypassesCache(t *testing.T) {
	// GIVEN a cached run under default thresholds
	f := setup(t)
	_, err := f.svc.Run(context.Background(), march())
	require.NoError(t, err)

	// WHEN the organization raises its thresholds
	require.NoError(t, f.results.SaveThresholds(context.Background(), "acme", variance.ThresholdConfig{
		WarningPercent:  variance.MustDecimal("25"),
		CriticalPercent: variance.MustDecimal("40"),
	}))
	out, err := f.svc.Run(context.Background(), march())

	// THEN the analysis re-runs under the new thresholds
	require.NoError(t, err)
	assert.False(t, out.Cached)
	rec, _ := out.Run.Result.Record("rent-mar")
	assert.Equal(t, variance.SeverityNormal, rec.Severity)
}

func TestRun_RefreshAndInvalidate(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Run(context.Background(), march())
	require.NoError(t, err)

	req := march()
	req.Refresh = true
	out, err := f.svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, out.Cached)

	require.NoError(t, f.svc.Invalidate(context.Background(), march().Key()))
	out, err = f.svc.Run(context.Background(), march())
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, int32(3), f.source.budgetCalls.Load())
}

func TestRun_RequestSourcesOverrideAndSkipCache(t *testing.T) {
	f := setup(t)
	req := march()
	req.Budgets = ingest.Static{BudgetItems: []variance.BudgetItem{item("travel", "6200", "Travel", "2025-03", "500")}}
	req.Actuals = ingest.Static{}

	out, err := f.svc.Run(context.Background(), req)
	require.NoError(t, err)
	again, err := f.svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, again.Cached)
	assert.Equal(t, int32(0), f.source.budgetCalls.Load())
	_, ok := out.Run.Result.Record("travel")
	assert.True(t, ok)
}

func TestRun_ThresholdOverride(t *testing.T) {
	f := setup(t)
	req := march()
	req.Thresholds = &variance.ThresholdConfig{Profile: variance.ProfileDetailed}

	out, err := f.svc.Run(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, variance.ProfileDetailed, out.Run.Thresholds.Profile)
	assert.Equal(t, variance.ProfileDetailed, out.Run.Result.Profile)
}

func TestRun_Rejects(t *testing.T) {
	inverted := &variance.ThresholdConfig{
		WarningPercent:  variance.MustDecimal("20"),
		CriticalPercent: variance.MustDecimal("10"),
	}
	tests := []struct {
		name string
		req  reconcile.Request
		is   error
	}{
		{"missing board", reconcile.Request{OrgID: "acme", Period: "2025-03"}, variance.ErrMissingID},
		{"bad period", reconcile.Request{OrgID: "acme", BoardID: "fy25", Period: "March"}, variance.ErrInvalidPeriod},
		{"inverted thresholds", reconcile.Request{OrgID: "acme", BoardID: "fy25", Period: "2025-03", Thresholds: inverted}, variance.ErrInvalidThresholds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.svc.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.is)
			assert.True(t, variance.IsClientError(err))
		})
	}
}

func TestRun_EngineErrorIsNotPersisted(t *testing.T) {
	// GIVEN a budget whose parent does not exist
	f := setup(t)
	orphan := item("orphan", "7000", "Orphan", "2025-03", "10")
	orphan.ParentID = "ghost"
	f.source.BudgetItems = append(f.source.BudgetItems, orphan)

	// WHEN running
	_, err := f.svc.Run(context.Background(), march())

	// THEN the hierarchy error surfaces and nothing is stored
	assert.ErrorIs(t, err, variance.ErrHierarchy)
	runs, _ := f.results.ListRuns(context.Background(), "acme", "fy25", 0)
	assert.Empty(t, runs)
}

func TestRun_SourceErrorWrapped(t *testing.T) {
	f := setup(t)
	boom := errors.New("board api unavailable")
	f.source.err = boom

	_, err := f.svc.Run(context.Background(), march())

	assert.ErrorIs(t, err, boom)
	assert.False(t, variance.IsClientError(err))
}

// =============================================================================
// BATCH
// =============================================================================

func TestRunBatch_KeepsOrderAndIsolatesFailures(t *testing.T) {
	f := setup(t)
	f.svc.Workers = 2
	reqs := []reconcile.Request{
		{OrgID: "acme", BoardID: "fy25", Period: "2025-02"},
		{OrgID: "acme", BoardID: "fy25", Period: "bad"},
		{OrgID: "acme", BoardID: "fy25", Period: "2025-03"},
	}

	results := f.svc.RunBatch(context.Background(), reqs)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "2025-02", results[0].Outcome.Run.Key.Period)
	assert.ErrorIs(t, results[1].Err, variance.ErrInvalidPeriod)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "2025-03", results[2].Request.Period)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.svc.RunBatch(ctx, []reconcile.Request{march()})

	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
