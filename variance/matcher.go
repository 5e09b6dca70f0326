package variance

import "strings"

// =============================================================================
// ACCOUNT MATCHER - Budget item -> zero or one actual item
// =============================================================================

// Match pairs every budget item with its actual, in budget input order.
//
// Matching rules:
//  1. Exact, case-sensitive account code when both sides carry a code.
//  2. Otherwise case-insensitive substring match of account names in either
//     direction ("Sales & Marketing" vs "Marketing - Sales & Marketing").
//  3. First candidate by actual input order wins.
//
// Actuals labelled with a different period are never candidates. An actual
// may serve several budget items. Unmatched budget items get a nil Actual.
func Match(budgets []BudgetItem, actuals []ActualItem) []MatchedPair {
	names := make([]string, len(actuals))
	for i, a := range actuals {
		names[i] = normalizeName(a.AccountName)
	}

	pairs := make([]MatchedPair, len(budgets))
	for i, b := range budgets {
		pairs[i] = matchOne(b, actuals, names)
	}
	return pairs
}

func matchOne(b BudgetItem, actuals []ActualItem, names []string) MatchedPair {
	if b.AccountCode != "" {
		for i := range actuals {
			if !samePeriod(b, actuals[i]) {
				continue
			}
			if actuals[i].AccountCode != "" && actuals[i].AccountCode == b.AccountCode {
				return MatchedPair{Budget: b, Actual: &actuals[i], MatchedBy: MatchByCode}
			}
		}
	}

	budgetName := normalizeName(b.AccountName)
	if budgetName != "" {
		for i := range actuals {
			if !samePeriod(b, actuals[i]) || names[i] == "" {
				continue
			}
			if strings.Contains(budgetName, names[i]) || strings.Contains(names[i], budgetName) {
				return MatchedPair{Budget: b, Actual: &actuals[i], MatchedBy: MatchByName}
			}
		}
	}

	return MatchedPair{Budget: b, MatchedBy: MatchNone}
}

func samePeriod(b BudgetItem, a ActualItem) bool {
	return a.PeriodLabel == "" || b.Period.Label == "" || a.PeriodLabel == b.Period.Label
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
