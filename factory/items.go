package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/variance-engine/variance"
)

const dateLayout = "2006-01-02"

// =============================================================================
// ITEM SCHEMA TYPES
// =============================================================================

// BudgetItemJSON is the payload representation of a BudgetItem.
// Period defaults to the request period when empty.
type BudgetItemJSON struct {
	ID          string `json:"id"`
	AccountCode string `json:"account_code,omitempty"`
	AccountName string `json:"account_name"`
	AccountType string `json:"account_type"`
	Amount      Amount `json:"amount"`
	Period      string `json:"period,omitempty"`
	PeriodStart string `json:"period_start,omitempty"` // YYYY-MM-DD
	PeriodEnd   string `json:"period_end,omitempty"`   // YYYY-MM-DD
	ParentID    string `json:"parent_id,omitempty"`
	Category    string `json:"category,omitempty"`
	Department  string `json:"department,omitempty"`
}

// ActualItemJSON is the payload representation of an ActualItem.
type ActualItemJSON struct {
	ID               string `json:"id,omitempty"`
	AccountCode      string `json:"account_code,omitempty"`
	AccountName      string `json:"account_name"`
	AccountType      string `json:"account_type"`
	Amount           Amount `json:"amount"`
	Period           string `json:"period,omitempty"`
	TransactionCount int    `json:"transaction_count,omitempty"`
}

// =============================================================================
// BUDGETS
// =============================================================================

// ParseBudgets parses a JSON array of budget items.
func (f *Factory) ParseBudgets(data []byte, defaultPeriod string) ([]variance.BudgetItem, error) {
	var items []BudgetItemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse budget items JSON: %w", err)
	}
	return f.BudgetsFromJSON(items, defaultPeriod)
}

// BudgetsFromJSON converts payload items. The first malformed item aborts
// the conversion.
func (f *Factory) BudgetsFromJSON(items []BudgetItemJSON, defaultPeriod string) ([]variance.BudgetItem, error) {
	out := make([]variance.BudgetItem, 0, len(items))
	for _, bj := range items {
		b, err := f.budgetFromJSON(bj, defaultPeriod)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *Factory) budgetFromJSON(bj BudgetItemJSON, defaultPeriod string) (variance.BudgetItem, error) {
	amount, err := bj.Amount.ToDecimal(bj.ID, "amount")
	if err != nil {
		return variance.BudgetItem{}, err
	}

	period, err := parseItemPeriod(bj, defaultPeriod)
	if err != nil {
		return variance.BudgetItem{}, err
	}

	return variance.BudgetItem{
		ID:          bj.ID,
		AccountCode: bj.AccountCode,
		AccountName: bj.AccountName,
		AccountType: variance.ParseAccountType(bj.AccountType),
		Amount:      amount,
		Period:      period,
		ParentID:    bj.ParentID,
		Category:    bj.Category,
		Department:  bj.Department,
	}, nil
}

// parseItemPeriod resolves the label to its calendar month, then applies
// explicit start/end dates when given.
func parseItemPeriod(bj BudgetItemJSON, defaultPeriod string) (variance.Period, error) {
	label := bj.Period
	if label == "" {
		label = defaultPeriod
	}

	var period variance.Period
	if label != "" {
		p, err := variance.ParsePeriod(label)
		if err != nil {
			return variance.Period{}, &variance.ItemError{ItemID: bj.ID, Field: "period", Reason: err.Error(), Err: variance.ErrInvalidPeriod}
		}
		period = p
	}

	if bj.PeriodStart != "" {
		t, err := time.Parse(dateLayout, bj.PeriodStart)
		if err != nil {
			return variance.Period{}, &variance.ItemError{ItemID: bj.ID, Field: "period_start", Reason: "not YYYY-MM-DD", Err: variance.ErrInvalidPeriod}
		}
		period.Start = t
	}
	if bj.PeriodEnd != "" {
		t, err := time.Parse(dateLayout, bj.PeriodEnd)
		if err != nil {
			return variance.Period{}, &variance.ItemError{ItemID: bj.ID, Field: "period_end", Reason: "not YYYY-MM-DD", Err: variance.ErrInvalidPeriod}
		}
		period.End = t
	}
	return period, nil
}

// BudgetsToJSON converts budget items to their payload form.
func (f *Factory) BudgetsToJSON(items []variance.BudgetItem) []BudgetItemJSON {
	out := make([]BudgetItemJSON, len(items))
	for i, b := range items {
		bj := BudgetItemJSON{
			ID:          b.ID,
			AccountCode: b.AccountCode,
			AccountName: b.AccountName,
			AccountType: string(b.AccountType),
			Amount:      Amount(b.Amount.String()),
			Period:      b.Period.Label,
			ParentID:    b.ParentID,
			Category:    b.Category,
			Department:  b.Department,
		}
		if !b.Period.Start.IsZero() {
			bj.PeriodStart = b.Period.Start.Format(dateLayout)
		}
		if !b.Period.End.IsZero() {
			bj.PeriodEnd = b.Period.End.Format(dateLayout)
		}
		out[i] = bj
	}
	return out
}

// =============================================================================
// ACTUALS
// =============================================================================

// ParseActuals parses a JSON array of actual items.
func (f *Factory) ParseActuals(data []byte, defaultPeriod string) ([]variance.ActualItem, error) {
	var items []ActualItemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse actual items JSON: %w", err)
	}
	return f.ActualsFromJSON(items, defaultPeriod)
}

func (f *Factory) ActualsFromJSON(items []ActualItemJSON, defaultPeriod string) ([]variance.ActualItem, error) {
	out := make([]variance.ActualItem, 0, len(items))
	for i, aj := range items {
		id := aj.ID
		if id == "" {
			id = fmt.Sprintf("actual-%d", i)
		}
		amount, err := aj.Amount.ToDecimal(id, "amount")
		if err != nil {
			return nil, err
		}

		label := aj.Period
		if label == "" {
			label = defaultPeriod
		}

		out = append(out, variance.ActualItem{
			ID:               id,
			AccountCode:      aj.AccountCode,
			AccountName:      aj.AccountName,
			AccountType:      variance.ParseAccountType(aj.AccountType),
			Amount:           amount,
			PeriodLabel:      label,
			TransactionCount: aj.TransactionCount,
		})
	}
	return out, nil
}

func (f *Factory) ActualsToJSON(items []variance.ActualItem) []ActualItemJSON {
	out := make([]ActualItemJSON, len(items))
	for i, a := range items {
		out[i] = ActualItemJSON{
			ID:               a.ID,
			AccountCode:      a.AccountCode,
			AccountName:      a.AccountName,
			AccountType:      string(a.AccountType),
			Amount:           Amount(a.Amount.String()),
			Period:           a.PeriodLabel,
			TransactionCount: a.TransactionCount,
		}
	}
	return out
}
