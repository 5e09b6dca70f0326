/*
scenarios.go - Demo datasets for testing and demonstrations

PURPOSE:

	Provides pre-built datasets that populate the item store with realistic
	budgets and actuals, then analyze every period in order so run history
	and trend insights are visible immediately.

AVAILABLE SCENARIOS:

	quarterly-opex:     Q1 opex board with a parent rollup and worsening travel
	revenue-shortfall:  Revenue well under plan, COGS under plan in step
	unbudgeted-spend:   Zero-budget line with spend, plus an unmatched account
	detailed-profile:   Four-tier thresholds saved for the organization

HOW SCENARIOS WORK:
 1. Reset the item store (clears items, runs, thresholds)
 2. Save organization thresholds when the scenario defines them
 3. Save budgets and actuals for each period via factory JSON
 4. Run each period oldest first so each run finds its predecessor

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "quarterly-opex"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Item upload handlers use the same conversions
  - factory/items.go: Item JSON schema
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO

	// thresholds is YAML or JSON; empty keeps the defaults.
	thresholds string

	// budgets is one plan applied to every period.
	budgets string

	// actuals by period label.
	actuals map[string]string
}

const demoOrg = "demo-co"

var opexPlan = `[
	{"id": "opex", "account_name": "Operating Expenses", "account_type": "expense", "amount": 0},
	{"id": "rent", "account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000", "parent_id": "opex", "department": "Facilities"},
	{"id": "travel", "account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1000", "parent_id": "opex", "department": "Sales"},
	{"id": "software", "account_code": "6300", "account_name": "Software", "account_type": "expense", "amount": "2000", "parent_id": "opex", "department": "Engineering"},
	{"id": "sales", "account_code": "4000", "account_name": "Sales", "account_type": "revenue", "amount": "50000"}
]`

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "quarterly-opex",
			Name:        "Quarterly Opex",
			Description: "Q1 opex board: rent on plan, travel overspend growing month over month, software under plan",
			OrgID:       demoOrg,
			BoardID:     "fy25-opex",
			Periods:     []string{"2025-01", "2025-02", "2025-03"},
		},
		budgets: opexPlan,
		actuals: map[string]string{
			"2025-01": `[
				{"account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000"},
				{"account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1050"},
				{"account_code": "6300", "account_name": "Software", "account_type": "expense", "amount": "1900"},
				{"account_code": "4000", "account_name": "Sales", "account_type": "revenue", "amount": "51000"}
			]`,
			"2025-02": `[
				{"account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000"},
				{"account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1120"},
				{"account_code": "6300", "account_name": "Software", "account_type": "expense", "amount": "1700"},
				{"account_code": "4000", "account_name": "Sales", "account_type": "revenue", "amount": "49000"}
			]`,
			"2025-03": `[
				{"account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000"},
				{"account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1300"},
				{"account_code": "6300", "account_name": "Software", "account_type": "expense", "amount": "1600"},
				{"account_code": "4000", "account_name": "Sales", "account_type": "revenue", "amount": "48500"}
			]`,
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "revenue-shortfall",
			Name:        "Revenue Shortfall",
			Description: "Product revenue 22% under plan; cost of goods falls with it",
			OrgID:       demoOrg,
			BoardID:     "fy25-pnl",
			Periods:     []string{"2025-03"},
		},
		budgets: `[
			{"id": "product", "account_code": "4100", "account_name": "Product Revenue", "account_type": "revenue", "amount": "100000"},
			{"id": "services", "account_code": "4200", "account_name": "Services Revenue", "account_type": "revenue", "amount": "20000"},
			{"id": "cogs", "account_code": "5000", "account_name": "Cost of Goods Sold", "account_type": "cogs", "amount": "40000"}
		]`,
		actuals: map[string]string{
			"2025-03": `[
				{"account_code": "4100", "account_name": "Product Revenue", "account_type": "revenue", "amount": "78000"},
				{"account_code": "4200", "account_name": "Services Revenue", "account_type": "revenue", "amount": "20500"},
				{"account_code": "5000", "account_name": "Cost of Goods Sold", "account_type": "cogs", "amount": "31000"}
			]`,
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "unbudgeted-spend",
			Name:        "Unbudgeted Spend",
			Description: "Spend on a zero-budget line and a planned account with no postings",
			OrgID:       demoOrg,
			BoardID:     "fy25-misc",
			Periods:     []string{"2025-03"},
		},
		budgets: `[
			{"id": "consulting", "account_code": "6500", "account_name": "Consulting", "account_type": "expense", "amount": 0},
			{"id": "misc", "account_code": "9999", "account_name": "Miscellaneous", "account_type": "expense", "amount": "750"},
			{"id": "office", "account_code": "6400", "account_name": "Office Supplies", "account_type": "expense", "amount": "300"}
		]`,
		actuals: map[string]string{
			"2025-03": `[
				{"account_code": "6500", "account_name": "Consulting", "account_type": "expense", "amount": "4200"},
				{"account_code": "6400", "account_name": "Office Supplies", "account_type": "expense", "amount": "310"}
			]`,
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "detailed-profile",
			Name:        "Detailed Profile",
			Description: "Organization on four-tier thresholds (low, medium, high, critical)",
			OrgID:       "tiered-co",
			BoardID:     "fy25-opex",
			Periods:     []string{"2025-03"},
		},
		thresholds: "profile: detailed\n",
		budgets:    opexPlan,
		actuals: map[string]string{
			"2025-03": `[
				{"account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5150"},
				{"account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1090"},
				{"account_code": "6300", "account_name": "Software", "account_type": "expense", "amount": "2300"},
				{"account_code": "4000", "account_name": "Sales", "account_type": "revenue", "amount": "38000"}
			]`,
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the store, loads a scenario and analyzes its periods.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	runIDs, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.currentScenario = ""
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = s.ID

	writeJSON(w, http.StatusOK, LoadScenarioResponse{Status: "loaded", Scenario: s.ID, RunIDs: runIDs})
}

// ResetDatabase clears all stored items, runs and thresholds.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Items.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]string, error) {
	if err := h.Items.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	if s.thresholds != "" {
		cfg, err := h.Factory.ParseThresholds([]byte(s.thresholds))
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		if err := h.Service.Thresholds.SaveThresholds(ctx, s.OrgID, cfg); err != nil {
			return nil, fmt.Errorf("save thresholds: %w", err)
		}
	}

	for _, period := range s.Periods {
		budgets, err := h.Factory.ParseBudgets([]byte(s.budgets), period)
		if err != nil {
			return nil, fmt.Errorf("budgets %s: %w", period, err)
		}
		actuals, err := h.Factory.ParseActuals([]byte(s.actuals[period]), period)
		if err != nil {
			return nil, fmt.Errorf("actuals %s: %w", period, err)
		}
		if err := h.Items.SaveBudgets(ctx, s.OrgID, s.BoardID, period, budgets); err != nil {
			return nil, fmt.Errorf("save budgets %s: %w", period, err)
		}
		if err := h.Items.SaveActuals(ctx, s.OrgID, period, actuals); err != nil {
			return nil, fmt.Errorf("save actuals %s: %w", period, err)
		}
	}

	// Oldest first: each run uses the one before it as trend baseline.
	runIDs := make([]string, 0, len(s.Periods))
	for _, period := range s.Periods {
		out, err := h.Service.Run(ctx, reconcile.Request{
			OrgID:   s.OrgID,
			BoardID: s.BoardID,
			Period:  period,
			Refresh: true,
		})
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", variance.RunKey{OrgID: s.OrgID, BoardID: s.BoardID, Period: period}, err)
		}
		runIDs = append(runIDs, out.Run.ID)
	}
	return runIDs, nil
}
