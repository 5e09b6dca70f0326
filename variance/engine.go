package variance

import "github.com/shopspring/decimal"

// =============================================================================
// RECONCILIATION ORCHESTRATOR - The single entry point
// =============================================================================

// Analyze reconciles one organization/board/period.
//
// Steps: validate -> match -> calculate + classify -> aggregate hierarchy ->
// summarize -> trends + insights.
//
// Analyze is pure: it reads only its arguments and holds no package state,
// so concurrent calls need no locking. Fetching inputs, caching and
// persisting the result belong to the caller (see package reconcile).
//
// Threshold policy: zero fields take defaults; warning >= critical or a
// negative threshold fails with a ConfigError before any item is read.
// Empty budgets produce an empty, zero-total result.
func Analyze(budgets []BudgetItem, actuals []ActualItem, cfg ThresholdConfig, previous *AnalysisResult) (AnalysisResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return AnalysisResult{}, err
	}
	if err := validateBudgets(budgets); err != nil {
		return AnalysisResult{}, err
	}

	h, err := buildHierarchy(budgets)
	if err != nil {
		return AnalysisResult{}, err
	}

	classifier := NewClassifier(cfg)
	pairs := Match(budgets, actuals)

	records := make([]VarianceRecord, len(pairs))
	for i, p := range pairs {
		records[i] = buildRecord(p, classifier, cfg)
	}
	records = aggregate(budgets, records, h, classifier, cfg)

	summary := Summarize(records, cfg)
	records, insights := GenerateInsights(records, summary, cfg, previous)
	if insights == nil {
		insights = []Insight{}
	}

	return AnalysisResult{
		Period:   commonPeriodLabel(budgets),
		Profile:  cfg.Profile,
		Records:  records,
		Insights: insights,
		Summary:  summary,
	}, nil
}

// validateBudgets checks IDs and periods. Amounts are decimals and cannot be
// non-finite here; non-finite source values are rejected where they are
// converted (AmountFromFloat, AmountFromString).
func validateBudgets(budgets []BudgetItem) error {
	seen := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		if b.ID == "" {
			return &ItemError{ItemID: b.AccountName, Field: "id", Reason: "budget item has no id", Err: ErrMissingID}
		}
		if seen[b.ID] {
			return &ItemError{ItemID: b.ID, Field: "id", Reason: "duplicate id", Err: ErrDuplicateItem}
		}
		seen[b.ID] = true

		if !b.Period.Valid() {
			return &ItemError{ItemID: b.ID, Field: "period", Reason: "end before start", Err: ErrInvalidPeriod}
		}
	}
	return nil
}

// Summarize totals the source rows; rollups are excluded so nothing is
// counted twice. Every severity of the profile appears in SeverityCounts.
func Summarize(records []VarianceRecord, cfg ThresholdConfig) Summary {
	s := Summary{
		TotalBudget:    decimal.Zero,
		TotalActual:    decimal.Zero,
		SeverityCounts: make(map[Severity]int),
	}
	for _, sev := range cfg.Severities() {
		s.SeverityCounts[sev] = 0
	}

	for _, r := range records {
		if r.Rollup {
			s.RollupCount++
			continue
		}
		s.RecordCount++
		if r.Matched {
			s.MatchedCount++
		} else {
			s.UnmatchedCount++
		}
		s.TotalBudget = s.TotalBudget.Add(r.Budget)
		s.TotalActual = s.TotalActual.Add(r.Actual)
		s.SeverityCounts[r.Severity]++
	}

	s.TotalVariance = s.TotalActual.Sub(s.TotalBudget)
	s.TotalVariancePercent = decimal.Zero
	if !s.TotalBudget.IsZero() {
		s.TotalVariancePercent = s.TotalVariance.Div(s.TotalBudget).Mul(hundred)
	}
	return s
}

// commonPeriodLabel returns the shared period label, or "" when budgets are
// empty or span several periods.
func commonPeriodLabel(budgets []BudgetItem) string {
	if len(budgets) == 0 {
		return ""
	}
	label := budgets[0].Period.Label
	for _, b := range budgets[1:] {
		if b.Period.Label != label {
			return ""
		}
	}
	return label
}
