package variance_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/variance"
)

func insightsFor(t *testing.T, budgets []variance.BudgetItem, actuals []variance.ActualItem, previous *variance.AnalysisResult) []variance.Insight {
	t.Helper()
	result, err := variance.Analyze(budgets, actuals, variance.DefaultThresholds(), previous)
	require.NoError(t, err)
	return result.Insights
}

func TestInsights_LargerImpactRanksFirst(t *testing.T) {
	// GIVEN: two critical unfavorable variances, +500 and +10000
	// WHEN: Generating insights
	// THEN: the +10000 insight ranks first; the analysis-level trend follows both

	insights := insightsFor(t,
		[]variance.BudgetItem{
			budget("rent", "6100", "Rent", variance.AccountExpense, "1000"),
			budget("travel", "6200", "Travel", variance.AccountExpense, "10000"),
		},
		[]variance.ActualItem{
			actual("6100", "", variance.AccountExpense, "1500"),
			actual("6200", "", variance.AccountExpense, "20000"),
		},
		nil,
	)

	require.Len(t, insights, 3)
	assert.Equal(t, "travel", insights[0].RecordID)
	assert.Equal(t, "rent", insights[1].RecordID)
	assert.Equal(t, variance.InsightTrend, insights[2].Type)
	assert.Empty(t, insights[2].RecordID)

	for _, in := range insights[:2] {
		assert.Equal(t, variance.InsightVariance, in.Type)
		assert.Equal(t, 100, in.Priority)
		assert.True(t, in.Actionable)
		assertDecimal(t, "0.95", in.Confidence)
	}
}

func TestInsights_OrderIsStableForEqualKeys(t *testing.T) {
	budgets := []variance.BudgetItem{
		budget("a", "1", "Alpha", variance.AccountExpense, "1000"),
		budget("b", "2", "Beta", variance.AccountExpense, "1000"),
		budget("ok", "3", "Gamma", variance.AccountExpense, "100000"),
	}
	actuals := []variance.ActualItem{
		actual("1", "", variance.AccountExpense, "1200"),
		actual("2", "", variance.AccountExpense, "1200"),
		actual("3", "", variance.AccountExpense, "100000"),
	}

	for i := 0; i < 5; i++ {
		insights := insightsFor(t, budgets, actuals, nil)
		require.Len(t, insights, 2)
		assert.Equal(t, "a", insights[0].RecordID)
		assert.Equal(t, "b", insights[1].RecordID)
	}
}

func TestInsights_UrgencyGrowsWithVariance(t *testing.T) {
	// Critical boundary 15: 20% crosses no step, 22.5% crosses 1.5x,
	// 30% crosses 2x, 50% crosses 3x.
	tests := []struct {
		actual    string
		wantItems int
	}{
		{"1200", 2},
		{"1225", 3},
		{"1300", 4},
		{"1500", 5},
	}
	for _, tt := range tests {
		t.Run(tt.actual, func(t *testing.T) {
			insights := insightsFor(t,
				[]variance.BudgetItem{
					budget("rent", "6100", "Rent", variance.AccountExpense, "1000"),
					budget("big", "6200", "Payroll", variance.AccountExpense, "1000000"),
				},
				[]variance.ActualItem{
					actual("6100", "", variance.AccountExpense, tt.actual),
					actual("6200", "", variance.AccountExpense, "1000000"),
				},
				nil,
			)
			require.Len(t, insights, 1)
			assert.Len(t, insights[0].ActionItems, tt.wantItems)
		})
	}
}

func TestInsights_RevenueShortfallMessage(t *testing.T) {
	insights := insightsFor(t,
		[]variance.BudgetItem{budget("sales", "4000", "Product Sales", variance.AccountRevenue, "20000")},
		[]variance.ActualItem{actual("4000", "", variance.AccountRevenue, "16000")},
		nil,
	)

	require.NotEmpty(t, insights)
	first := insights[0]
	assert.Equal(t, "sales", first.RecordID)
	assert.Equal(t, "Product Sales is below target by 4000.00 (20.0%), beyond the 15.0% critical threshold", first.Message)
	assertDecimal(t, "-4000", first.Metadata.Variance)
	assertDecimal(t, "15", first.Metadata.Threshold)
}

func TestInsights_CriticalFavorable(t *testing.T) {
	insights := insightsFor(t,
		[]variance.BudgetItem{
			budget("mkt", "6500", "Marketing", variance.AccountExpense, "1000"),
			budget("big", "6200", "Payroll", variance.AccountExpense, "1000000"),
		},
		[]variance.ActualItem{
			actual("6500", "", variance.AccountExpense, "700"),
			actual("6200", "", variance.AccountExpense, "1000000"),
		},
		nil,
	)

	require.Len(t, insights, 1)
	assert.Equal(t, 60, insights[0].Priority)
	assertDecimal(t, "0.97", insights[0].Confidence)
	assert.True(t, strings.HasPrefix(insights[0].Message, "Marketing is under budget by 300.00 (30.0%)"))
}

func TestInsights_ExceptionallyFavorable_Recommendation(t *testing.T) {
	// -8% on an expense: favorable beyond -5% but below the warning tier
	insights := insightsFor(t,
		[]variance.BudgetItem{budget("sw", "6300", "Software", variance.AccountExpense, "1000")},
		[]variance.ActualItem{actual("6300", "", variance.AccountExpense, "920")},
		nil,
	)

	require.Len(t, insights, 1)
	assert.Equal(t, variance.InsightRecommendation, insights[0].Type)
	assert.Equal(t, 20, insights[0].Priority)
	assert.False(t, insights[0].Actionable)
	assertDecimal(t, "-5", insights[0].Metadata.Threshold)
}

func TestInsights_NoneWhenOnPlan(t *testing.T) {
	insights := insightsFor(t,
		[]variance.BudgetItem{budget("rent", "6100", "Rent", variance.AccountExpense, "1000")},
		[]variance.ActualItem{actual("6100", "", variance.AccountExpense, "1050")},
		nil,
	)
	assert.Empty(t, insights)
}

// =============================================================================
// TRENDS
// =============================================================================

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, variance.TrendImproving, variance.ClassifyTrend(dec("8"), dec("10")))
	assert.Equal(t, variance.TrendStable, variance.ClassifyTrend(dec("9"), dec("10")))
	assert.Equal(t, variance.TrendStable, variance.ClassifyTrend(dec("-11"), dec("10")))
	assert.Equal(t, variance.TrendWorsening, variance.ClassifyTrend(dec("-11.5"), dec("10")))
	assert.Equal(t, variance.TrendStable, variance.ClassifyTrend(dec("0"), dec("0")))
}

func TestInsights_WorseningWarning(t *testing.T) {
	// GIVEN: rent was 11% over last period and is 14% over now (warning both times)
	// THEN: a worsening trend insight carrying the previous percent

	budgets := []variance.BudgetItem{
		budget("rent", "6100", "Rent", variance.AccountExpense, "1000"),
		budget("big", "6200", "Payroll", variance.AccountExpense, "1000000"),
	}
	previous := analyze(t, budgets, []variance.ActualItem{
		actual("6100", "", variance.AccountExpense, "1110"),
		actual("6200", "", variance.AccountExpense, "1000000"),
	})

	result, err := variance.Analyze(budgets, []variance.ActualItem{
		actual("6100", "", variance.AccountExpense, "1140"),
		actual("6200", "", variance.AccountExpense, "1000000"),
	}, variance.DefaultThresholds(), &previous)
	require.NoError(t, err)

	rent, _ := result.Record("rent")
	payroll, _ := result.Record("big")
	assert.Equal(t, variance.TrendWorsening, rent.Trend)
	assert.Equal(t, variance.TrendStable, payroll.Trend)

	require.Len(t, result.Insights, 1)
	in := result.Insights[0]
	assert.Equal(t, variance.InsightTrend, in.Type)
	assert.Equal(t, 50, in.Priority)
	require.NotNil(t, in.Metadata.PreviousPercent)
	assertDecimal(t, "11", *in.Metadata.PreviousPercent)
}

func TestInsights_WorseningCritical_FoldsIntoVarianceInsight(t *testing.T) {
	budgets := []variance.BudgetItem{
		budget("rent", "6100", "Rent", variance.AccountExpense, "1000"),
		budget("big", "6200", "Payroll", variance.AccountExpense, "1000000"),
	}
	previous := analyze(t, budgets, []variance.ActualItem{
		actual("6100", "", variance.AccountExpense, "1200"),
		actual("6200", "", variance.AccountExpense, "1000000"),
	})

	insights := insightsFor(t, budgets, []variance.ActualItem{
		actual("6100", "", variance.AccountExpense, "1300"),
		actual("6200", "", variance.AccountExpense, "1000000"),
	}, &previous)

	require.Len(t, insights, 1)
	assert.Equal(t, variance.InsightVariance, insights[0].Type)
	// 30% is 2x critical: 4 action items plus the trend follow-up
	assert.Len(t, insights[0].ActionItems, 5)
	require.NotNil(t, insights[0].Metadata.PreviousPercent)
}

func TestInsights_NoPreviousResult_NoTrends(t *testing.T) {
	result := analyze(t, sampleBudgets(), sampleActuals())
	for _, r := range result.Records {
		assert.Empty(t, r.Trend)
	}
}
