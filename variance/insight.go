package variance

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INSIGHT RULES - Priority and confidence per rule
// =============================================================================

// Confidence values are fixed per rule. They express how reliably the rule's
// trigger indicates a real issue, not a statistical probability.
const (
	priorityCriticalUnfavorable = 100
	priorityAnalysisTrend       = 80
	priorityCriticalFavorable   = 60
	priorityWorsening           = 50
	priorityAnomaly             = 40
	priorityRecommendation      = 20
)

var (
	confidenceCriticalUnfavorable = decimal.RequireFromString("0.95")
	confidenceCriticalFavorable   = decimal.RequireFromString("0.97")
	confidenceAnalysisTrend       = decimal.RequireFromString("0.99")
	confidenceWorsening           = decimal.RequireFromString("0.96")
	confidenceAnomaly             = decimal.RequireFromString("0.98")
	confidenceRecommendation      = decimal.RequireFromString("0.95")

	trendImprovingFactor = decimal.RequireFromString("0.9")
	trendWorseningFactor = decimal.RequireFromString("1.1")

	urgencySteps = []decimal.Decimal{
		decimal.RequireFromString("1.5"),
		decimal.NewFromInt(2),
		decimal.NewFromInt(3),
	}
)

// Message templates. Amounts are absolute with two decimals, percents with one.
const (
	tmplOverBudget       = "%s is over budget by %s (%s%%), above the %s%% critical threshold"
	tmplRevenueShortfall = "%s is below target by %s (%s%%), beyond the %s%% critical threshold"
	tmplUnderBudget      = "%s is under budget by %s (%s%%); verify the figures before treating this as savings"
	tmplRevenueAbove     = "%s exceeded target by %s (%s%%); verify the figures before raising forecasts"
	tmplAnalysisTrend    = "Total actuals are %s%% %s total budget (%s vs %s), beyond the %s%% critical threshold"
	tmplWorsening        = "%s variance is worsening: %s%% this period vs %s%% last period"
	tmplUnbudgeted       = "%s has %s of activity with no budgeted amount"
	tmplReallocate       = "%s is %s%% favorable to plan; consider reallocating the surplus"

	actionWorsening = "Variance has worsened since last period; monitor %s weekly"
)

// =============================================================================
// TREND COMPARISON
// =============================================================================

// ClassifyTrend compares magnitudes of the current and previous percent.
// Under 90% of the previous magnitude is improving, over 110% is worsening.
func ClassifyTrend(current, previous decimal.Decimal) Trend {
	cur := current.Abs()
	prev := previous.Abs()
	switch {
	case cur.LessThan(prev.Mul(trendImprovingFactor)):
		return TrendImproving
	case cur.GreaterThan(prev.Mul(trendWorseningFactor)):
		return TrendWorsening
	default:
		return TrendStable
	}
}

type trendKey struct {
	account string
	rollup  bool
}

// applyTrends returns copies of records with Trend set where the previous
// result has a record for the same account and row kind. The map holds the
// previous percent per record ID.
func applyTrends(records []VarianceRecord, previous *AnalysisResult) ([]VarianceRecord, map[string]decimal.Decimal) {
	out := make([]VarianceRecord, len(records))
	copy(out, records)
	if previous == nil {
		return out, nil
	}

	prev := make(map[trendKey]decimal.Decimal, len(previous.Records))
	for _, r := range previous.Records {
		k := trendKey{account: r.AccountKey(), rollup: r.Rollup}
		if _, seen := prev[k]; !seen {
			prev[k] = r.VariancePercent
		}
	}

	prevByID := make(map[string]decimal.Decimal)
	for i := range out {
		p, ok := prev[trendKey{account: out[i].AccountKey(), rollup: out[i].Rollup}]
		if !ok {
			continue
		}
		out[i].Trend = ClassifyTrend(out[i].VariancePercent, p)
		prevByID[out[i].ID] = p
	}
	return out, prevByID
}

// =============================================================================
// INSIGHT GENERATOR
// =============================================================================

// GenerateInsights applies trend comparison (when previous is non-nil) and
// derives ranked insights from classified records. It returns the records
// with trends set; the input slice is not modified.
func GenerateInsights(records []VarianceRecord, summary Summary, cfg ThresholdConfig, previous *AnalysisResult) ([]VarianceRecord, []Insight) {
	withTrends, prevPercents := applyTrends(records, previous)
	critical := cfg.CriticalBoundary()

	var insights []Insight
	for _, r := range withTrends {
		var fromRecord []Insight

		if r.Severity == SeverityCritical {
			switch r.Direction {
			case DirectionUnfavorable:
				fromRecord = append(fromRecord, criticalUnfavorable(r, critical))
			case DirectionFavorable:
				fromRecord = append(fromRecord, criticalFavorable(r, critical))
			}
		}

		if r.Trend == TrendWorsening {
			prevPct := prevPercents[r.ID]
			if len(fromRecord) > 0 {
				for i := range fromRecord {
					fromRecord[i].ActionItems = append(fromRecord[i].ActionItems, fmt.Sprintf(actionWorsening, r.AccountName))
					fromRecord[i].Metadata.PreviousPercent = &prevPct
				}
			} else if r.Severity != cfg.Floor() {
				fromRecord = append(fromRecord, worsening(r, prevPct, cfg))
			}
		}

		if !r.Rollup && r.Budget.IsZero() && !r.Actual.IsZero() {
			fromRecord = append(fromRecord, unbudgeted(r))
		}

		if !r.Rollup && r.ExceptionallyFavorable && r.Severity != SeverityCritical {
			fromRecord = append(fromRecord, reallocation(r, cfg))
		}

		insights = append(insights, fromRecord...)
	}

	if summary.TotalVariancePercent.Abs().GreaterThan(critical) {
		insights = append(insights, analysisTrend(summary, critical))
	}

	rankInsights(insights)
	return withTrends, insights
}

// rankInsights orders by priority, then by absolute variance, both
// descending. Equal keys keep generation order.
func rankInsights(insights []Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Priority != insights[j].Priority {
			return insights[i].Priority > insights[j].Priority
		}
		return insights[i].Metadata.Variance.Abs().GreaterThan(insights[j].Metadata.Variance.Abs())
	})
}

// urgencyLevel counts how many urgency steps |percent| has crossed,
// measured in multiples of the critical boundary.
func urgencyLevel(pct, critical decimal.Decimal) int {
	if !critical.IsPositive() {
		return len(urgencySteps)
	}
	ratio := pct.Abs().Div(critical)
	level := 0
	for _, step := range urgencySteps {
		if ratio.GreaterThanOrEqual(step) {
			level++
		}
	}
	return level
}

func criticalUnfavorable(r VarianceRecord, critical decimal.Decimal) Insight {
	var msg string
	var base, escalations []string

	if r.AccountType.IsRevenue() {
		msg = fmt.Sprintf(tmplRevenueShortfall, r.AccountName, money(r.Variance), pct(r.VariancePercent), pct(critical))
		base = []string{
			"Review the pipeline and bookings behind " + r.AccountName,
			"Confirm revenue recognition timing for " + r.AccountName,
		}
		escalations = []string{
			"Revise the forecast for " + r.AccountName,
			"Escalate to the revenue owner for a recovery plan",
			"Schedule an immediate variance review with finance leadership",
		}
	} else {
		msg = fmt.Sprintf(tmplOverBudget, r.AccountName, money(r.Variance), pct(r.VariancePercent), pct(critical))
		base = []string{
			"Review recent transactions posted to " + r.AccountName,
			"Confirm the planned amount for " + r.AccountName + " is still accurate",
		}
		escalations = []string{
			"Freeze discretionary spending on " + r.AccountName + " until reviewed",
			"Escalate to the budget owner for a reforecast",
			"Schedule an immediate variance review with finance leadership",
		}
	}

	items := append([]string{}, base...)
	items = append(items, escalations[:urgencyLevel(r.VariancePercent, critical)]...)

	return Insight{
		Type:        InsightVariance,
		Severity:    SeverityCritical,
		Priority:    priorityCriticalUnfavorable,
		Message:     msg,
		Confidence:  confidenceCriticalUnfavorable,
		Actionable:  true,
		ActionItems: items,
		RecordID:    r.ID,
		Metadata:    recordMetadata(r, critical),
	}
}

func criticalFavorable(r VarianceRecord, critical decimal.Decimal) Insight {
	var msg string
	var items []string
	if r.AccountType.IsRevenue() {
		msg = fmt.Sprintf(tmplRevenueAbove, r.AccountName, money(r.Variance), pct(r.VariancePercent))
		items = []string{
			"Verify revenue for " + r.AccountName + " is not double-counted",
			"Consider raising the target for " + r.AccountName,
		}
	} else {
		msg = fmt.Sprintf(tmplUnderBudget, r.AccountName, money(r.Variance), pct(r.VariancePercent))
		items = []string{
			"Verify all transactions for " + r.AccountName + " have been recorded",
			"Consider reallocating unused budget from " + r.AccountName,
		}
	}

	return Insight{
		Type:        InsightVariance,
		Severity:    SeverityCritical,
		Priority:    priorityCriticalFavorable,
		Message:     msg,
		Confidence:  confidenceCriticalFavorable,
		Actionable:  true,
		ActionItems: items,
		RecordID:    r.ID,
		Metadata:    recordMetadata(r, critical),
	}
}

func worsening(r VarianceRecord, prevPct decimal.Decimal, cfg ThresholdConfig) Insight {
	md := recordMetadata(r, cfg.CriticalBoundary())
	md.PreviousPercent = &prevPct
	return Insight{
		Type:        InsightTrend,
		Severity:    r.Severity,
		Priority:    priorityWorsening,
		Message:     fmt.Sprintf(tmplWorsening, r.AccountName, pct(r.VariancePercent), pct(prevPct)),
		Confidence:  confidenceWorsening,
		Actionable:  true,
		ActionItems: []string{fmt.Sprintf(actionWorsening, r.AccountName)},
		RecordID:    r.ID,
		Metadata:    md,
	}
}

func unbudgeted(r VarianceRecord) Insight {
	return Insight{
		Type:       InsightAnomaly,
		Severity:   r.Severity,
		Priority:   priorityAnomaly,
		Message:    fmt.Sprintf(tmplUnbudgeted, r.AccountName, money(r.Actual)),
		Confidence: confidenceAnomaly,
		Actionable: true,
		ActionItems: []string{
			"Add a planned amount for " + r.AccountName + " or reclassify the activity",
		},
		RecordID: r.ID,
		Metadata: recordMetadata(r, decimal.Zero),
	}
}

func reallocation(r VarianceRecord, cfg ThresholdConfig) Insight {
	return Insight{
		Type:       InsightRecommendation,
		Severity:   r.Severity,
		Priority:   priorityRecommendation,
		Message:    fmt.Sprintf(tmplReallocate, r.AccountName, pct(r.VariancePercent)),
		Confidence: confidenceRecommendation,
		RecordID:   r.ID,
		Metadata:   recordMetadata(r, cfg.FavorablePercent),
	}
}

func analysisTrend(s Summary, critical decimal.Decimal) Insight {
	side := "above"
	if s.TotalVariance.IsNegative() {
		side = "below"
	}
	return Insight{
		Type:     InsightTrend,
		Severity: SeverityCritical,
		Priority: priorityAnalysisTrend,
		Message: fmt.Sprintf(tmplAnalysisTrend,
			pct(s.TotalVariancePercent), side,
			s.TotalActual.StringFixed(2), s.TotalBudget.StringFixed(2), pct(critical)),
		Confidence: confidenceAnalysisTrend,
		Actionable: true,
		ActionItems: []string{
			"Review the largest contributors to the overall variance",
			"Reforecast the remaining periods",
		},
		Metadata: InsightMetadata{
			Variance:        s.TotalVariance,
			VariancePercent: s.TotalVariancePercent,
			Threshold:       critical,
		},
	}
}

func recordMetadata(r VarianceRecord, threshold decimal.Decimal) InsightMetadata {
	return InsightMetadata{
		AccountCode:     r.AccountCode,
		AccountName:     r.AccountName,
		Variance:        r.Variance,
		VariancePercent: r.VariancePercent,
		Threshold:       threshold,
	}
}

func money(d decimal.Decimal) string { return d.Abs().StringFixed(2) }
func pct(d decimal.Decimal) string   { return d.Abs().StringFixed(1) }
