package ingest

import (
	"strings"

	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// BOARD SHAPE - Work-management board export
// =============================================================================

// BoardItem is one row of a budgeting board. Column values are keyed by
// column ID and are always text, as boards export them.
type BoardItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Group        string            `json:"group,omitempty"`
	ParentItemID string            `json:"parent_item_id,omitempty"`
	Columns      map[string]string `json:"columns"`
}

type Board struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Items []BoardItem `json:"items"`
}

// BoardMapping names the board columns holding each budget field.
// Empty column IDs are skipped.
type BoardMapping struct {
	AccountCode string `json:"account_code" yaml:"account_code"`
	AccountType string `json:"account_type" yaml:"account_type"`
	Amount      string `json:"amount" yaml:"amount"`
	Period      string `json:"period" yaml:"period"`
	Category    string `json:"category" yaml:"category"`
	Department  string `json:"department" yaml:"department"`
}

// DefaultBoardMapping matches the column IDs of the standard budget board
// template.
func DefaultBoardMapping() BoardMapping {
	return BoardMapping{
		AccountCode: "account_code",
		AccountType: "account_type",
		Amount:      "budget",
		Period:      "period",
		Category:    "category",
		Department:  "department",
	}
}

// BudgetItems converts board rows for one period. Rows whose period column
// names a different period are skipped; rows with no period column value
// take the requested period. The board group is used as the category when
// no category column is mapped.
func (m BoardMapping) BudgetItems(b Board, period variance.Period) ([]variance.BudgetItem, error) {
	out := make([]variance.BudgetItem, 0, len(b.Items))
	skipped := make(map[string]bool)

	for _, it := range b.Items {
		if it.ID == "" {
			return nil, &variance.ItemError{ItemID: it.Name, Field: "id", Reason: "board item has no id", Err: variance.ErrMissingID}
		}

		if label := m.column(it, m.Period); label != "" && label != period.Label {
			if _, err := variance.ParsePeriod(label); err != nil {
				return nil, &variance.ItemError{ItemID: it.ID, Field: "period", Reason: err.Error(), Err: variance.ErrInvalidPeriod}
			}
			skipped[it.ID] = true
			continue
		}

		amount, err := variance.AmountFromString(it.ID, "amount", m.column(it, m.Amount))
		if err != nil {
			return nil, err
		}

		category := m.column(it, m.Category)
		if category == "" {
			category = it.Group
		}

		out = append(out, variance.BudgetItem{
			ID:          it.ID,
			AccountCode: m.column(it, m.AccountCode),
			AccountName: strings.TrimSpace(it.Name),
			AccountType: variance.ParseAccountType(m.column(it, m.AccountType)),
			Amount:      amount,
			Period:      period,
			ParentID:    it.ParentItemID,
			Category:    category,
			Department:  m.column(it, m.Department),
		})
	}

	// Parents filtered out by period would otherwise read as unknown
	// parents. References to rows that never existed on the board are
	// left for the engine to reject.
	for i := range out {
		if skipped[out[i].ParentID] {
			out[i].ParentID = ""
		}
	}
	return out, nil
}

func (m BoardMapping) column(it BoardItem, columnID string) string {
	if columnID == "" {
		return ""
	}
	return strings.TrimSpace(it.Columns[columnID])
}
