package variance

import "github.com/shopspring/decimal"

// =============================================================================
// VARIANCE CALCULATOR - Signed deviation and economic direction
// =============================================================================

// Calculation is the numeric part of a VarianceRecord.
type Calculation struct {
	Variance        decimal.Decimal
	VariancePercent decimal.Decimal
	Direction       Direction
}

// Calculate computes actual - budget and its percentage of budget.
//
// A zero budget yields a zero percent. Unbudgeted spend therefore never
// reaches a percent-based severity tier, however large the dollar amount.
func Calculate(budget, actual decimal.Decimal, accountType AccountType) Calculation {
	v := actual.Sub(budget)

	pct := decimal.Zero
	if !budget.IsZero() {
		pct = v.Div(budget).Mul(hundred)
	}

	return Calculation{
		Variance:        v,
		VariancePercent: pct,
		Direction:       DirectionOf(v, accountType),
	}
}

// DirectionOf applies the accounting convention for the account type.
// Revenue above plan and expense below plan are favorable; asset,
// liability, equity and other accounts are always neutral.
func DirectionOf(v decimal.Decimal, accountType AccountType) Direction {
	if v.IsZero() {
		return DirectionNeutral
	}
	switch {
	case accountType.IsRevenue():
		if v.IsPositive() {
			return DirectionFavorable
		}
		return DirectionUnfavorable
	case accountType.IsExpense():
		if v.IsNegative() {
			return DirectionFavorable
		}
		return DirectionUnfavorable
	default:
		return DirectionNeutral
	}
}

// isExceptionallyFavorable flags favorable variances at least as large as the
// configured favorable threshold (default -5%, compared by magnitude).
func isExceptionallyFavorable(c Calculation, cfg ThresholdConfig) bool {
	if c.Direction != DirectionFavorable {
		return false
	}
	return c.VariancePercent.Abs().GreaterThanOrEqual(cfg.FavorablePercent.Abs())
}

// buildRecord computes one classified record from a budget/actual pair.
func buildRecord(pair MatchedPair, classifier Classifier, cfg ThresholdConfig) VarianceRecord {
	b := pair.Budget
	actual := pair.ActualAmount()
	calc := Calculate(b.Amount, actual, b.AccountType)

	return VarianceRecord{
		ID:                     b.ID,
		BudgetItemID:           b.ID,
		AccountCode:            b.AccountCode,
		AccountName:            b.AccountName,
		AccountType:            b.AccountType,
		Budget:                 b.Amount,
		Actual:                 actual,
		Variance:               calc.Variance,
		VariancePercent:        calc.VariancePercent,
		Severity:               classifier.Classify(calc.VariancePercent),
		Direction:              calc.Direction,
		ExceptionallyFavorable: isExceptionallyFavorable(calc, cfg),
		Level:                  0,
		Matched:                pair.Actual != nil,
	}
}
