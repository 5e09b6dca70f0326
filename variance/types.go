/*
Package variance provides the budget-vs-actual reconciliation engine.

PURPOSE:
  This package matches planned budget line items against realized actuals,
  computes signed variances with accounting-direction semantics, classifies
  severity against organization thresholds, rolls child accounts up into
  parents and generates ranked insights. It is a pure computation: no I/O,
  no logging, no global state.

KEY CONCEPTS IN THIS FILE (types.go):
  - BudgetItem / ActualItem: the two input record shapes
  - AccountType: drives favorable/unfavorable direction
  - VarianceRecord: one computed row (source or synthetic rollup)
  - AnalysisResult: the complete output of one Analyze call

DESIGN PRINCIPLES:
  1. Precision: all money and percentages use decimal.Decimal
  2. Determinism: identical inputs always produce identical output order
  3. Immutability: inputs are never modified; results are fresh values
  4. Fail fast: malformed input returns a typed error, never a partial result

USAGE:
  result, err := variance.Analyze(budgets, actuals, variance.DefaultThresholds(), nil)
  if err != nil {
      return err
  }
  for _, r := range result.Records {
      fmt.Println(r.AccountName, r.Variance, r.Severity)
  }

SEE ALSO:
  - engine.go: Analyze, the single entry point
  - matcher.go, calculator.go, classifier.go, hierarchy.go, insight.go
  - store.go: collaborator interfaces (sources, cache, persistence)
*/
package variance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT TYPE - Determines economic direction of a variance
// =============================================================================

type AccountType string

const (
	AccountRevenue         AccountType = "revenue"
	AccountExpense         AccountType = "expense"
	AccountCostOfGoodsSold AccountType = "cost_of_goods_sold"
	AccountAsset           AccountType = "asset"
	AccountLiability       AccountType = "liability"
	AccountEquity          AccountType = "equity"
	AccountOther           AccountType = "other"
)

// IsExpense reports whether spending less than planned is good news.
func (t AccountType) IsExpense() bool {
	return t == AccountExpense || t == AccountCostOfGoodsSold
}

func (t AccountType) IsRevenue() bool { return t == AccountRevenue }

// ParseAccountType normalizes the spellings used by accounting systems and
// budgeting boards ("Income", "Other Expense", "COGS", ...).
func ParseAccountType(s string) AccountType {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)

	switch norm {
	case "revenue", "income", "other_income", "sales":
		return AccountRevenue
	case "expense", "expenses", "other_expense", "cost":
		return AccountExpense
	case "cost_of_goods_sold", "cogs", "cost_of_sales":
		return AccountCostOfGoodsSold
	case "asset", "assets":
		return AccountAsset
	case "liability", "liabilities":
		return AccountLiability
	case "equity":
		return AccountEquity
	default:
		return AccountOther
	}
}

// =============================================================================
// INPUT RECORDS
// =============================================================================

// BudgetItem is a planned amount for one account in one period.
type BudgetItem struct {
	ID          string
	AccountCode string // optional
	AccountName string
	AccountType AccountType
	Amount      decimal.Decimal
	Period      Period

	// ParentID references another BudgetItem in the same input set.
	ParentID   string
	Category   string
	Department string
}

// ActualItem is a realized amount for one account in one period.
// Expenses are positive as spent, revenue positive as earned.
type ActualItem struct {
	ID               string
	AccountCode      string
	AccountName      string
	AccountType      AccountType
	Amount           decimal.Decimal
	PeriodLabel      string
	TransactionCount int
}

// =============================================================================
// MATCHING
// =============================================================================

type MatchMethod string

const (
	MatchByCode MatchMethod = "code"
	MatchByName MatchMethod = "name"
	MatchNone   MatchMethod = "none"
)

// MatchedPair associates a budget item with zero or one actual item.
// A nil Actual means the actual amount is treated as zero.
type MatchedPair struct {
	Budget    BudgetItem
	Actual    *ActualItem
	MatchedBy MatchMethod
}

// ActualAmount returns the matched amount, or zero when unmatched.
func (p MatchedPair) ActualAmount() decimal.Decimal {
	if p.Actual == nil {
		return decimal.Zero
	}
	return p.Actual.Amount
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Severity string

const (
	// Standard profile
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"

	// Detailed profile (critical is shared)
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Direction string

const (
	DirectionFavorable   Direction = "favorable"
	DirectionUnfavorable Direction = "unfavorable"
	DirectionNeutral     Direction = "neutral"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
)

// =============================================================================
// VARIANCE RECORD - One computed row
// =============================================================================

type VarianceRecord struct {
	// ID is the budget item ID for source rows and "rollup:<parentID>"
	// for synthetic parent rows.
	ID           string      `json:"id"`
	BudgetItemID string      `json:"budget_item_id"`
	AccountCode  string      `json:"account_code,omitempty"`
	AccountName  string      `json:"account_name"`
	AccountType  AccountType `json:"account_type"`

	Budget          decimal.Decimal `json:"budget"`
	Actual          decimal.Decimal `json:"actual"`
	Variance        decimal.Decimal `json:"variance"`         // actual - budget
	VariancePercent decimal.Decimal `json:"variance_percent"` // 0 when budget is 0

	Severity               Severity  `json:"severity"`
	Direction              Direction `json:"direction"`
	ExceptionallyFavorable bool      `json:"exceptionally_favorable,omitempty"`

	// Level is 0 for source rows; rollups sit one above their deepest child.
	Level      int  `json:"level"`
	Rollup     bool `json:"rollup,omitempty"`
	ChildCount int  `json:"child_count,omitempty"`
	Matched    bool `json:"matched"`

	// Trend is empty unless a previous result was supplied.
	Trend Trend `json:"trend,omitempty"`
}

// AccountKey identifies the account across runs: the code when present,
// otherwise the lower-cased name.
func (r VarianceRecord) AccountKey() string {
	if r.AccountCode != "" {
		return "code:" + r.AccountCode
	}
	return "name:" + strings.ToLower(strings.TrimSpace(r.AccountName))
}

// =============================================================================
// INSIGHTS
// =============================================================================

type InsightType string

const (
	InsightVariance       InsightType = "variance"
	InsightTrend          InsightType = "trend"
	InsightAnomaly        InsightType = "anomaly"
	InsightRecommendation InsightType = "recommendation"
)

// InsightMetadata is the fixed set of facts an insight may carry.
// Fields that do not apply to a rule are left zero/nil.
type InsightMetadata struct {
	AccountCode     string           `json:"account_code,omitempty"`
	AccountName     string           `json:"account_name,omitempty"`
	Variance        decimal.Decimal  `json:"variance"`
	VariancePercent decimal.Decimal  `json:"variance_percent"`
	Threshold       decimal.Decimal  `json:"threshold"`
	PreviousPercent *decimal.Decimal `json:"previous_percent,omitempty"`
}

type Insight struct {
	Type     InsightType `json:"type"`
	Severity Severity    `json:"severity"`
	Priority int         `json:"priority"`
	Message  string      `json:"message"`

	// Confidence is a fixed heuristic per rule, not a probability.
	Confidence  decimal.Decimal `json:"confidence"`
	Actionable  bool            `json:"actionable"`
	ActionItems []string        `json:"action_items,omitempty"`

	// RecordID references the triggering VarianceRecord; empty for
	// analysis-level insights.
	RecordID string          `json:"record_id,omitempty"`
	Metadata InsightMetadata `json:"metadata"`
}

// =============================================================================
// ANALYSIS RESULT
// =============================================================================

type Summary struct {
	TotalBudget          decimal.Decimal  `json:"total_budget"`
	TotalActual          decimal.Decimal  `json:"total_actual"`
	TotalVariance        decimal.Decimal  `json:"total_variance"`
	TotalVariancePercent decimal.Decimal  `json:"total_variance_percent"`
	SeverityCounts       map[Severity]int `json:"severity_counts"`

	RecordCount    int `json:"record_count"`
	MatchedCount   int `json:"matched_count"`
	UnmatchedCount int `json:"unmatched_count"`
	RollupCount    int `json:"rollup_count"`
}

type AnalysisResult struct {
	Period   string           `json:"period"`
	Profile  Profile          `json:"profile"`
	Records  []VarianceRecord `json:"records"`
	Insights []Insight        `json:"insights"`
	Summary  Summary          `json:"summary"`
}

// SourceRecords returns level-0 rows only (no rollups).
func (r AnalysisResult) SourceRecords() []VarianceRecord {
	out := make([]VarianceRecord, 0, len(r.Records))
	for _, rec := range r.Records {
		if !rec.Rollup {
			out = append(out, rec)
		}
	}
	return out
}

// Record looks up a record by ID.
func (r AnalysisResult) Record(id string) (VarianceRecord, bool) {
	for _, rec := range r.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return VarianceRecord{}, false
}
