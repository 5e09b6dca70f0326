package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/reconcile"
	"github.com/warp/variance-engine/variance"
)

const planJSON = `[
	{"id": "opex", "account_name": "Operating Expenses", "account_type": "expense", "amount": 0},
	{"id": "rent", "account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000", "parent_id": "opex"},
	{"id": "travel", "account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "1000", "parent_id": "opex"}
]`

func actualsJSON(travel string) string {
	return `[
		{"account_code": "6100", "account_name": "Rent", "account_type": "expense", "amount": "5000"},
		{"account_code": "6200", "account_name": "Travel", "account_type": "expense", "amount": "` + travel + `"}
	]`
}

type harness struct {
	t   *testing.T
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, dir: dir, db: filepath.Join(dir, "variance.db")}
}

func (h *harness) file(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--db", h.db, "--config", filepath.Join(h.dir, "missing.toml")))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) outcome(args ...string) reconcile.Outcome {
	h.t.Helper()
	out, err := h.run("", append(args, "--json")...)
	require.NoError(h.t, err)

	var o reconcile.Outcome
	require.NoError(h.t, json.Unmarshal([]byte(out), &o))
	return o
}

func TestAnalyze_Files(t *testing.T) {
	// GIVEN: Plan and ledger files
	h := newHarness(t)
	budgets := h.file("plan.json", planJSON)
	actuals := h.file("ledger.json", actualsJSON("1300"))

	// WHEN: Analyzing March
	o := h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-03",
		"--budgets", budgets, "--actuals", actuals)

	// THEN: Travel is critical and the rollup is present
	assert.False(t, o.Cached)
	assert.Equal(t, variance.RunKey{OrgID: "acme", BoardID: "opex", Period: "2025-03"}, o.Run.Key)

	travel, ok := o.Run.Result.Record("travel")
	require.True(t, ok)
	assert.Equal(t, variance.SeverityCritical, travel.Severity)
	assert.Equal(t, variance.DirectionUnfavorable, travel.Direction)

	rollup, ok := o.Run.Result.Record("rollup:opex")
	require.True(t, ok)
	assert.True(t, rollup.Budget.Equal(variance.MustDecimal("6000")))
	assert.True(t, rollup.Actual.Equal(variance.MustDecimal("6300")))
}

func TestAnalyze_TableOutput(t *testing.T) {
	h := newHarness(t)
	budgets := h.file("plan.json", planJSON)
	actuals := h.file("ledger.json", actualsJSON("1300"))

	out, err := h.run("", "analyze", "--period", "2025-03", "--budgets", budgets, "--actuals", actuals)
	require.NoError(t, err)

	assert.Contains(t, out, "6200 Travel")
	assert.Contains(t, out, "+30.0%")
	assert.Contains(t, out, "Insights")
}

func TestAnalyze_SavedItemsTrendAndHistory(t *testing.T) {
	// GIVEN: February saved to the database
	h := newHarness(t)
	budgets := h.file("plan.json", planJSON)
	h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-02",
		"--budgets", budgets, "--actuals", h.file("feb.json", actualsJSON("1100")), "--save")

	// AND: March saved, then analyzed again from the database alone
	h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-03",
		"--budgets", budgets, "--actuals", h.file("mar.json", actualsJSON("1300")), "--save")
	stored := h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-03")

	// THEN: The stored items analyze the same and travel worsened since February
	travel, ok := stored.Run.Result.Record("travel")
	require.True(t, ok)
	assert.True(t, travel.Actual.Equal(variance.MustDecimal("1300")))
	assert.Equal(t, variance.TrendWorsening, travel.Trend)

	// AND: The repeat is served from the database cache
	again := h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-03")
	assert.True(t, again.Cached)
	assert.Equal(t, stored.Run.ID, again.Run.ID)

	// AND: History lists every recorded run
	out, err := h.run("", "history", "--org", "acme", "--board", "opex", "--json")
	require.NoError(t, err)
	var runs []variance.AnalysisRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 3)
	assert.Equal(t, "2025-03", runs[0].Key.Period)

	// AND: One run can be shown in full
	out, err = h.run("", "history", "--run", stored.Run.ID)
	require.NoError(t, err)
	assert.Contains(t, out, stored.Run.ID)
	assert.Contains(t, out, "worsening")
}

func TestAnalyze_ExportDirectory(t *testing.T) {
	// GIVEN: A board export and a nested report under an export tree
	h := newHarness(t)
	h.file("exports/acme/opex/2025-03.budgets.json", `{
		"id": "opex", "name": "FY25 Opex",
		"items": [
			{"id": "travel", "name": "Travel", "columns": {"account_code": "6200", "account_type": "expense", "budget": "1000", "period": "2025-03"}}
		]
	}`)
	h.file("exports/acme/2025-03.actuals.json", `{
		"name": "ProfitAndLoss",
		"rows": [
			{"type": "section", "header": [{"value": "Expenses"}], "rows": [
				{"type": "data", "columns": [{"value": "Travel", "id": "6200"}, {"value": "950.00"}]}
			]}
		]
	}`)

	// WHEN: Analyzing from the directory
	o := h.outcome("analyze", "--org", "acme", "--board", "opex", "--period", "2025-03",
		"--dir", filepath.Join(h.dir, "exports"))

	// THEN: The report line matches the board item by code
	travel, ok := o.Run.Result.Record("travel")
	require.True(t, ok)
	assert.True(t, travel.Matched)
	assert.Equal(t, variance.DirectionFavorable, travel.Direction)
}

func TestAnalyze_PreviousFile(t *testing.T) {
	// GIVEN: A previous run printed with --json
	h := newHarness(t)
	budgets := h.file("plan.json", planJSON)
	prevOut, err := h.run("", "analyze", "--org", "other", "--period", "2025-02",
		"--budgets", budgets, "--actuals", h.file("feb.json", actualsJSON("1100")), "--json")
	require.NoError(t, err)
	prev := h.file("prev.json", prevOut)

	// WHEN: Analyzing a different org with that file as baseline
	o := h.outcome("analyze", "--org", "acme", "--period", "2025-03",
		"--budgets", budgets, "--actuals", h.file("mar.json", actualsJSON("1300")), "--previous", prev)

	// THEN: The trend compares against the file
	travel, ok := o.Run.Result.Record("travel")
	require.True(t, ok)
	assert.Equal(t, variance.TrendWorsening, travel.Trend)
}

func TestAnalyze_Rejects(t *testing.T) {
	h := newHarness(t)
	budgets := h.file("plan.json", planJSON)

	tests := []struct {
		name string
		args []string
	}{
		{"missing period", []string{"analyze"}},
		{"bad period", []string{"analyze", "--period", "March"}},
		{"missing file", []string{"analyze", "--period", "2025-03", "--budgets", filepath.Join(h.dir, "nope.json")}},
		{"both stdin", []string{"analyze", "--period", "2025-03", "--budgets", "-", "--actuals", "-"}},
		{"bad thresholds", []string{"analyze", "--period", "2025-03", "--budgets", budgets, "--thresholds", h.file("t.yaml", "warning_percent: 20\ncritical_percent: 10\n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run("", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestThresholds_SetAndGet(t *testing.T) {
	h := newHarness(t)

	// GIVEN: Defaults before anything is saved
	out, err := h.run("", "thresholds", "get", "--org", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "profile: standard")

	// WHEN: Saving a detailed profile from stdin
	out, err = h.run("profile: detailed\n", "thresholds", "set", "--org", "acme", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "saved detailed thresholds for acme")

	// THEN: Get reflects it and analyses use it
	out, err = h.run("", "thresholds", "get", "--org", "acme", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"profile": "detailed"`)

	o := h.outcome("analyze", "--org", "acme", "--period", "2025-03",
		"--budgets", h.file("plan.json", planJSON), "--actuals", h.file("mar.json", actualsJSON("1300")))
	assert.Equal(t, variance.ProfileDetailed, o.Run.Result.Profile)
}

func TestThresholds_SetRejects(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "thresholds", "set", "--org", "acme")
	assert.Error(t, err)

	_, err = h.run("profile: sideways\n", "thresholds", "set", "--org", "acme", "--file", "-")
	assert.Error(t, err)
}
