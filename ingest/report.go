/*
Package ingest adapts source-system exports into variance input items.

PURPOSE:
  The engine takes flat BudgetItem and ActualItem slices. Source systems
  do not produce those directly: accounting systems export nested
  profit-and-loss reports, and work-management boards export items with
  free-form columns. This package flattens and maps those shapes. It is a
  pre-processing layer; nothing here is part of the engine.

KEY CONCEPTS:
  - Report / ReportRow: nested accounting report (sections contain rows)
  - FlattenReport: depth-first walk producing one ActualItem per data row
  - Board / BoardItem: board export with column values by column ID
  - BoardMapping: which columns carry code, amount, type, parent...

SEE ALSO:
  - source.go: File-backed and static BudgetSource/ActualSource
  - factory/: Plain JSON item payloads
*/
package ingest

import (
	"fmt"
	"strings"

	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// REPORT SHAPE - Nested accounting report
// =============================================================================

// RowType distinguishes structural rows from rows carrying an amount.
type RowType string

const (
	RowSection RowType = "section"
	RowData    RowType = "data"
	RowSummary RowType = "summary"
)

// ReportColumn is one cell. ID carries the account code on name cells.
type ReportColumn struct {
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
}

// ReportRow is either a section (Header + nested Rows + optional Summary)
// or a data row (Columns: name cell, amount cell).
type ReportRow struct {
	Type    RowType        `json:"type"`
	Group   string         `json:"group,omitempty"`
	Header  []ReportColumn `json:"header,omitempty"`
	Columns []ReportColumn `json:"columns,omitempty"`
	Rows    []ReportRow    `json:"rows,omitempty"`
	Summary []ReportColumn `json:"summary,omitempty"`
}

// Report is a profit-and-loss style export for one period.
type Report struct {
	Name   string      `json:"name"`
	Period string      `json:"period"` // YYYY-MM
	Rows   []ReportRow `json:"rows"`
}

// =============================================================================
// FLATTENING
// =============================================================================

// FlattenReport walks the report depth-first and returns one ActualItem
// per data row, in document order. Section and summary rows produce no
// items. A data row's account type comes from the nearest enclosing
// section that names one (via Group or header text); rows outside any
// typed section are "other".
//
// Amount cells are parsed with variance.AmountFromString, so non-finite
// or unparsable values fail the whole report.
func FlattenReport(r Report) ([]variance.ActualItem, error) {
	var out []variance.ActualItem
	var walk func(rows []ReportRow, path []string, accountType variance.AccountType) error

	walk = func(rows []ReportRow, path []string, accountType variance.AccountType) error {
		for _, row := range rows {
			switch row.Type {
			case RowSection:
				title := cellValue(row.Header, 0)
				sectionType := accountType
				if t := sectionAccountType(row.Group, title); t != variance.AccountOther {
					sectionType = t
				}
				if err := walk(row.Rows, append(path, title), sectionType); err != nil {
					return err
				}

			case RowData:
				item, err := dataRowItem(row, path, accountType, r.Period, len(out))
				if err != nil {
					return err
				}
				out = append(out, item)

			case RowSummary:
				// totals are recomputed by the engine

			default:
				return fmt.Errorf("report %q: unknown row type %q at %s", r.Name, row.Type, strings.Join(path, " > "))
			}
		}
		return nil
	}

	if err := walk(r.Rows, nil, variance.AccountOther); err != nil {
		return nil, err
	}
	return out, nil
}

func dataRowItem(row ReportRow, path []string, accountType variance.AccountType, period string, index int) (variance.ActualItem, error) {
	if len(row.Columns) < 2 {
		return variance.ActualItem{}, fmt.Errorf("report row %d under %q: expected name and amount columns, got %d",
			index, strings.Join(path, " > "), len(row.Columns))
	}
	name := strings.TrimSpace(row.Columns[0].Value)
	code := strings.TrimSpace(row.Columns[0].ID)

	id := code
	if id == "" {
		id = fmt.Sprintf("row-%d", index)
	}

	amount, err := variance.AmountFromString(id, "amount", row.Columns[1].Value)
	if err != nil {
		return variance.ActualItem{}, err
	}

	return variance.ActualItem{
		ID:          id,
		AccountCode: code,
		AccountName: name,
		AccountType: accountType,
		Amount:      amount,
		PeriodLabel: period,
	}, nil
}

// sectionAccountType maps a section group ("Income", "COGS", "Expenses",
// "OtherIncome") or header title to an account type.
func sectionAccountType(group, title string) variance.AccountType {
	for _, candidate := range []string{group, title} {
		c := strings.ToLower(strings.TrimSpace(candidate))
		switch {
		case c == "":
			continue
		case strings.Contains(c, "cost of goods") || c == "cogs" || strings.Contains(c, "cost of sales"):
			return variance.AccountCostOfGoodsSold
		case strings.Contains(c, "income") || strings.Contains(c, "revenue") || strings.Contains(c, "sales"):
			return variance.AccountRevenue
		case strings.Contains(c, "expense"):
			return variance.AccountExpense
		}
	}
	return variance.AccountOther
}

func cellValue(cols []ReportColumn, i int) string {
	if i < len(cols) {
		return strings.TrimSpace(cols[i].Value)
	}
	return ""
}
