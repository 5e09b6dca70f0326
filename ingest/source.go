package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/variance-engine/factory"
	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// STATIC SOURCE - Items supplied with the request
// =============================================================================

// Static serves fixed item slices. The API uses it when a request carries
// its own items instead of naming a stored dataset.
type Static struct {
	BudgetItems []variance.BudgetItem
	ActualItems []variance.ActualItem
}

// Budgets returns the budget items whose period label matches. Items with
// no label are returned for every period.
func (s Static) Budgets(_ context.Context, _, _ string, period variance.Period) ([]variance.BudgetItem, error) {
	out := make([]variance.BudgetItem, 0, len(s.BudgetItems))
	for _, b := range s.BudgetItems {
		if b.Period.Label == "" || b.Period.Label == period.Label {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s Static) Actuals(_ context.Context, _ string, period variance.Period) ([]variance.ActualItem, error) {
	out := make([]variance.ActualItem, 0, len(s.ActualItems))
	for _, a := range s.ActualItems {
		if a.PeriodLabel == "" || a.PeriodLabel == period.Label {
			out = append(out, a)
		}
	}
	return out, nil
}

// =============================================================================
// FILE SOURCE - Exports on disk
// =============================================================================

// Dir reads exports from a directory tree:
//
//	<root>/<org>/<board>/<period>.budgets.json   factory budget array or board export
//	<root>/<org>/<period>.actuals.json           factory actual array or nested report
//
// A missing file yields no items rather than an error, the same as an
// empty board or a period with no postings.
type Dir struct {
	Root    string
	Mapping BoardMapping
}

func NewDir(root string) *Dir {
	return &Dir{Root: root, Mapping: DefaultBoardMapping()}
}

func (d *Dir) BudgetPath(orgID, boardID string, period variance.Period) string {
	return filepath.Join(d.Root, orgID, boardID, period.Label+".budgets.json")
}

func (d *Dir) ActualPath(orgID string, period variance.Period) string {
	return filepath.Join(d.Root, orgID, period.Label+".actuals.json")
}

func (d *Dir) Budgets(ctx context.Context, orgID, boardID string, period variance.Period) ([]variance.BudgetItem, error) {
	data, err := readOptional(ctx, d.BudgetPath(orgID, boardID, period))
	if err != nil || data == nil {
		return nil, err
	}
	return DecodeBudgets(data, period, d.Mapping)
}

func (d *Dir) Actuals(ctx context.Context, orgID string, period variance.Period) ([]variance.ActualItem, error) {
	data, err := readOptional(ctx, d.ActualPath(orgID, period))
	if err != nil || data == nil {
		return nil, err
	}
	return DecodeActuals(data, period)
}

// =============================================================================
// DECODING - Shared by Dir and the CLI
// =============================================================================

// DecodeBudgets accepts a factory budget array or a board export object.
func DecodeBudgets(data []byte, period variance.Period, mapping BoardMapping) ([]variance.BudgetItem, error) {
	if isObject(data) {
		var board Board
		if err := json.Unmarshal(data, &board); err != nil {
			return nil, fmt.Errorf("failed to parse board export: %w", err)
		}
		return mapping.BudgetItems(board, period)
	}
	return factory.New().ParseBudgets(data, period.Label)
}

// DecodeActuals accepts a factory actual array or a nested report object.
// A report with no period takes the requested one.
func DecodeActuals(data []byte, period variance.Period) ([]variance.ActualItem, error) {
	if isObject(data) {
		var report Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse report export: %w", err)
		}
		if report.Period == "" {
			report.Period = period.Label
		}
		return FlattenReport(report)
	}
	return factory.New().ParseActuals(data, period.Label)
}

func readOptional(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

var (
	_ variance.BudgetSource = Static{}
	_ variance.ActualSource = Static{}
	_ variance.BudgetSource = (*Dir)(nil)
	_ variance.ActualSource = (*Dir)(nil)
)
