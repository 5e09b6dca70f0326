package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/ingest"
	"github.com/warp/variance-engine/variance"
)

var march = variance.MustParsePeriod("2025-03")

func sampleReport() ingest.Report {
	return ingest.Report{
		Name:   "Profit and Loss",
		Period: "2025-03",
		Rows: []ingest.ReportRow{
			{
				Type:   ingest.RowSection,
				Group:  "Income",
				Header: []ingest.ReportColumn{{Value: "Income"}},
				Rows: []ingest.ReportRow{
					{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Sales", ID: "4000"}, {Value: "18,500.00"}}},
				},
				Summary: []ingest.ReportColumn{{Value: "Total Income"}, {Value: "18500.00"}},
			},
			{
				Type:   ingest.RowSection,
				Header: []ingest.ReportColumn{{Value: "Expenses"}},
				Rows: []ingest.ReportRow{
					{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Rent", ID: "6100"}, {Value: "5000"}}},
					{
						Type:   ingest.RowSection,
						Header: []ingest.ReportColumn{{Value: "Travel"}},
						Rows: []ingest.ReportRow{
							{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Airfare", ID: "6210"}, {Value: "1200.50"}}},
							{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Lodging"}, {Value: "(30)"}}},
						},
					},
				},
			},
			{Type: ingest.RowSummary, Columns: []ingest.ReportColumn{{Value: "Net Income"}, {Value: "12329.50"}}},
		},
	}
}

// =============================================================================
// REPORT FLATTENING
// =============================================================================

func TestFlattenReport_DepthFirstWithInheritedTypes(t *testing.T) {
	// GIVEN a nested report with a typed nested section
	report := sampleReport()

	// WHEN flattening
	items, err := ingest.FlattenReport(report)

	// THEN every data row appears once, in document order
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "4000", items[0].ID)
	assert.Equal(t, variance.AccountRevenue, items[0].AccountType)
	assert.True(t, items[0].Amount.Equal(variance.MustDecimal("18500")))

	assert.Equal(t, "Rent", items[1].AccountName)
	assert.Equal(t, variance.AccountExpense, items[1].AccountType)

	// nested "Travel" section names no type and inherits expense
	assert.Equal(t, "6210", items[2].AccountCode)
	assert.Equal(t, variance.AccountExpense, items[2].AccountType)

	assert.Equal(t, "row-3", items[3].ID)
	assert.Empty(t, items[3].AccountCode)
	assert.True(t, items[3].Amount.Equal(variance.MustDecimal("-30")))
	assert.Equal(t, "2025-03", items[3].PeriodLabel)
}

func TestFlattenReport_CostOfGoodsSection(t *testing.T) {
	report := ingest.Report{Period: "2025-03", Rows: []ingest.ReportRow{{
		Type:   ingest.RowSection,
		Header: []ingest.ReportColumn{{Value: "Cost of Goods Sold"}},
		Rows:   []ingest.ReportRow{{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Materials"}, {Value: "10"}}}},
	}}}

	items, err := ingest.FlattenReport(report)

	require.NoError(t, err)
	assert.Equal(t, variance.AccountCostOfGoodsSold, items[0].AccountType)
}

func TestFlattenReport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		row  ingest.ReportRow
	}{
		{"unknown row type", ingest.ReportRow{Type: "chart"}},
		{"missing amount column", ingest.ReportRow{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Rent"}}}},
		{"non-finite amount", ingest.ReportRow{Type: ingest.RowData, Columns: []ingest.ReportColumn{{Value: "Rent"}, {Value: "Inf"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.FlattenReport(ingest.Report{Period: "2025-03", Rows: []ingest.ReportRow{tt.row}})
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// BOARD MAPPING
// =============================================================================

func sampleBoard() ingest.Board {
	return ingest.Board{
		ID:   "board-1",
		Name: "FY25 Budget",
		Items: []ingest.BoardItem{
			{ID: "opex", Name: "Operating Expenses", Group: "Opex", Columns: map[string]string{
				"account_type": "Expense", "budget": "0",
			}},
			{ID: "rent", Name: " Rent ", Group: "Opex", ParentItemID: "opex", Columns: map[string]string{
				"account_code": "6100", "account_type": "expense", "budget": "5,000", "department": "Ops",
			}},
			{ID: "feb-travel", Name: "Travel", ParentItemID: "opex", Columns: map[string]string{
				"budget": "900", "period": "2025-02",
			}},
			{ID: "feb-airfare", Name: "Airfare", ParentItemID: "feb-travel", Columns: map[string]string{
				"budget": "100", "period": "2025-03", "category": "T&E",
			}},
		},
	}
}

func TestBoardMapping_BudgetItems(t *testing.T) {
	// GIVEN a board with one row for another period
	board := sampleBoard()

	// WHEN mapping for March
	items, err := ingest.DefaultBoardMapping().BudgetItems(board, march)

	// THEN the February row is skipped and its child is detached
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Rent", items[1].AccountName)
	assert.Equal(t, "6100", items[1].AccountCode)
	assert.Equal(t, "Opex", items[1].Category)
	assert.Equal(t, "Ops", items[1].Department)
	assert.Equal(t, "opex", items[1].ParentID)
	assert.True(t, items[1].Amount.Equal(variance.MustDecimal("5000")))
	assert.Equal(t, march, items[1].Period)

	assert.Equal(t, "feb-airfare", items[2].ID)
	assert.Empty(t, items[2].ParentID)
	assert.Equal(t, "T&E", items[2].Category)
	assert.Equal(t, variance.AccountOther, items[2].AccountType)
}

func TestBoardMapping_Rejects(t *testing.T) {
	tests := []struct {
		name string
		item ingest.BoardItem
		is   error
	}{
		{"missing id", ingest.BoardItem{Name: "Rent", Columns: map[string]string{"budget": "1"}}, variance.ErrMissingID},
		{"bad amount", ingest.BoardItem{ID: "r", Columns: map[string]string{"budget": "NaN"}}, variance.ErrInvalidAmount},
		{"bad period", ingest.BoardItem{ID: "r", Columns: map[string]string{"budget": "1", "period": "Q1"}}, variance.ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.DefaultBoardMapping().BudgetItems(ingest.Board{Items: []ingest.BoardItem{tt.item}}, march)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestBoardMapping_FeedsAnalyze(t *testing.T) {
	budgets, err := ingest.DefaultBoardMapping().BudgetItems(sampleBoard(), march)
	require.NoError(t, err)
	actuals, err := ingest.FlattenReport(sampleReport())
	require.NoError(t, err)

	result, err := variance.Analyze(budgets, actuals, variance.DefaultThresholds(), nil)

	require.NoError(t, err)
	rent, ok := result.Record("rent")
	require.True(t, ok)
	assert.True(t, rent.Variance.IsZero())
	airfare, ok := result.Record("feb-airfare")
	require.True(t, ok)
	assert.True(t, airfare.Actual.Equal(variance.MustDecimal("1200.50")))
}

// =============================================================================
// SOURCES
// =============================================================================

func TestStatic_FiltersByPeriod(t *testing.T) {
	src := ingest.Static{
		BudgetItems: []variance.BudgetItem{
			{ID: "a", Period: march},
			{ID: "b", Period: variance.MustParsePeriod("2025-02")},
			{ID: "c"},
		},
		ActualItems: []variance.ActualItem{{ID: "x", PeriodLabel: "2025-02"}, {ID: "y"}},
	}

	budgets, err := src.Budgets(context.Background(), "org", "board", march)
	require.NoError(t, err)
	actuals, err := src.Actuals(context.Background(), "org", march)
	require.NoError(t, err)

	require.Len(t, budgets, 2)
	assert.Equal(t, "a", budgets[0].ID)
	assert.Equal(t, "c", budgets[1].ID)
	require.Len(t, actuals, 1)
	assert.Equal(t, "y", actuals[0].ID)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDir_ReadsArraysAndExports(t *testing.T) {
	// GIVEN a board export for budgets and a nested report for actuals
	dir := ingest.NewDir(t.TempDir())
	writeFile(t, dir.BudgetPath("acme", "fy25", march), `{"id": "fy25", "items": [
		{"id": "rent", "name": "Rent", "columns": {"account_code": "6100", "account_type": "expense", "budget": "5000"}}
	]}`)
	writeFile(t, dir.ActualPath("acme", march), `{"name": "P&L", "rows": [
		{"type": "section", "group": "Expenses", "header": [{"value": "Expenses"}], "rows": [
			{"type": "data", "columns": [{"value": "Rent", "id": "6100"}, {"value": "5500"}]}
		]}
	]}`)

	// WHEN reading both sides
	ctx := context.Background()
	budgets, err := dir.Budgets(ctx, "acme", "fy25", march)
	require.NoError(t, err)
	actuals, err := dir.Actuals(ctx, "acme", march)
	require.NoError(t, err)

	// THEN the report period defaults to the requested one
	require.Len(t, budgets, 1)
	require.Len(t, actuals, 1)
	assert.Equal(t, "2025-03", actuals[0].PeriodLabel)
	assert.Equal(t, variance.AccountExpense, actuals[0].AccountType)
}

func TestDir_ReadsPlainArrays(t *testing.T) {
	dir := ingest.NewDir(t.TempDir())
	writeFile(t, dir.BudgetPath("acme", "fy25", march), `[{"id": "rent", "account_name": "Rent", "amount": 10}]`)
	writeFile(t, dir.ActualPath("acme", march), `[{"account_name": "Rent", "amount": "12"}]`)

	budgets, err := dir.Budgets(context.Background(), "acme", "fy25", march)
	require.NoError(t, err)
	actuals, err := dir.Actuals(context.Background(), "acme", march)
	require.NoError(t, err)

	assert.Equal(t, "2025-03", budgets[0].Period.Label)
	assert.Equal(t, "actual-0", actuals[0].ID)
}

func TestDir_MissingFilesAreEmpty(t *testing.T) {
	dir := ingest.NewDir(t.TempDir())

	budgets, err := dir.Budgets(context.Background(), "acme", "fy25", march)
	require.NoError(t, err)
	actuals, err := dir.Actuals(context.Background(), "acme", march)
	require.NoError(t, err)

	assert.Empty(t, budgets)
	assert.Empty(t, actuals)
}

func TestDir_MalformedFile(t *testing.T) {
	dir := ingest.NewDir(t.TempDir())
	writeFile(t, dir.ActualPath("acme", march), `{"rows": "nope"}`)

	_, err := dir.Actuals(context.Background(), "acme", march)
	assert.Error(t, err)
}

func TestDecodeActuals_ReportTakesRequestedPeriod(t *testing.T) {
	// GIVEN: A report export with no period of its own
	data := []byte(`{"name": "P&L", "rows": [
		{"type": "section", "header": [{"value": "Expenses"}], "rows": [
			{"type": "data", "columns": [{"value": "Travel", "id": "6200"}, {"value": "950.00"}]}
		]}
	]}`)

	// WHEN: Decoding for March
	actuals, err := ingest.DecodeActuals(data, march)

	// THEN: Items carry March and the section's account type
	require.NoError(t, err)
	require.Len(t, actuals, 1)
	assert.Equal(t, "2025-03", actuals[0].PeriodLabel)
	assert.Equal(t, variance.AccountExpense, actuals[0].AccountType)
	assert.True(t, actuals[0].Amount.Equal(variance.MustDecimal("950")))
}

func TestDecodeBudgets_BoardAndArray(t *testing.T) {
	board := []byte(`{"id": "fy25", "items": [
		{"id": "travel", "name": "Travel", "columns": {"budget": "1000", "period": "2025-03"}},
		{"id": "later", "name": "Later", "columns": {"budget": "5", "period": "2025-04"}}
	]}`)
	items, err := ingest.DecodeBudgets(board, march, ingest.DefaultBoardMapping())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "travel", items[0].ID)

	array := []byte(`[{"id": "rent", "account_name": "Rent", "amount": "10"}]`)
	items, err = ingest.DecodeBudgets(array, march, ingest.DefaultBoardMapping())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2025-03", items[0].Period.Label)
}
