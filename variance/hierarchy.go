package variance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HIERARCHY AGGREGATOR - Parent rollups from ParentID references
// =============================================================================

// hierarchy is the validated forest built from budget items.
type hierarchy struct {
	index    map[string]int      // item ID -> input position
	children map[string][]string // parent ID -> child IDs in input order
}

func (h hierarchy) empty() bool { return len(h.children) == 0 }

// buildHierarchy validates parent references and returns the forest.
// Unknown parents, parents in another period and cycles are fatal.
func buildHierarchy(budgets []BudgetItem) (hierarchy, error) {
	h := hierarchy{
		index:    make(map[string]int, len(budgets)),
		children: make(map[string][]string),
	}
	for i, b := range budgets {
		h.index[b.ID] = i
	}

	for _, b := range budgets {
		if b.ParentID == "" {
			continue
		}
		pi, ok := h.index[b.ParentID]
		if !ok {
			return hierarchy{}, &HierarchyError{ItemID: b.ID, ParentID: b.ParentID, Reason: "unknown_parent"}
		}
		if budgets[pi].Period.Label != b.Period.Label {
			return hierarchy{}, &HierarchyError{ItemID: b.ID, ParentID: b.ParentID, Reason: "cross_period"}
		}
		h.children[b.ParentID] = append(h.children[b.ParentID], b.ID)
	}

	// Walk each parent chain; revisiting a node on the current path is a cycle.
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(budgets))
	for _, b := range budgets {
		if state[b.ID] == done {
			continue
		}
		var path []string
		cur := b.ID
		for cur != "" && state[cur] != done {
			if state[cur] == onPath {
				return hierarchy{}, &HierarchyError{
					ItemID:   cur,
					ParentID: budgets[h.index[cur]].ParentID,
					Reason:   "cycle",
					Path:     append(path, cur),
				}
			}
			state[cur] = onPath
			path = append(path, cur)
			cur = budgets[h.index[cur]].ParentID
		}
		for _, id := range path {
			state[id] = done
		}
	}

	return h, nil
}

// subtree is the aggregate of every source row strictly below a node.
type subtree struct {
	budget  decimal.Decimal
	actual  decimal.Decimal
	level   int
	matched bool
}

// Aggregate appends one synthetic rollup record per parent to the source
// records. Source records are returned unchanged and first; rollups follow,
// ordered by level then by the parent's input position.
//
// A rollup sums the source rows of all strict descendants exactly once, so a
// parent's own planned amount is not part of its rollup.
func Aggregate(budgets []BudgetItem, records []VarianceRecord, cfg ThresholdConfig) ([]VarianceRecord, error) {
	h, err := buildHierarchy(budgets)
	if err != nil {
		return nil, err
	}
	return aggregate(budgets, records, h, NewClassifier(cfg), cfg), nil
}

func aggregate(budgets []BudgetItem, records []VarianceRecord, h hierarchy, classifier Classifier, cfg ThresholdConfig) []VarianceRecord {
	out := make([]VarianceRecord, len(records))
	copy(out, records)
	if h.empty() {
		return out
	}

	memo := make(map[string]subtree, len(h.children))
	var walk func(id string) subtree
	walk = func(id string) subtree {
		if s, ok := memo[id]; ok {
			return s
		}
		s := subtree{budget: decimal.Zero, actual: decimal.Zero}
		for _, childID := range h.children[id] {
			child := records[h.index[childID]]
			s.budget = s.budget.Add(child.Budget)
			s.actual = s.actual.Add(child.Actual)
			s.matched = s.matched || child.Matched

			childLevel := 0
			if len(h.children[childID]) > 0 {
				cs := walk(childID)
				s.budget = s.budget.Add(cs.budget)
				s.actual = s.actual.Add(cs.actual)
				s.matched = s.matched || cs.matched
				childLevel = cs.level
			}
			if childLevel+1 > s.level {
				s.level = childLevel + 1
			}
		}
		memo[id] = s
		return s
	}

	parents := make([]string, 0, len(h.children))
	for id := range h.children {
		parents = append(parents, id)
	}
	sort.Slice(parents, func(i, j int) bool { return h.index[parents[i]] < h.index[parents[j]] })

	rollups := make([]VarianceRecord, 0, len(parents))
	for _, id := range parents {
		s := walk(id)
		parent := budgets[h.index[id]]
		calc := Calculate(s.budget, s.actual, parent.AccountType)

		rollups = append(rollups, VarianceRecord{
			ID:                     "rollup:" + id,
			BudgetItemID:           id,
			AccountCode:            parent.AccountCode,
			AccountName:            parent.AccountName,
			AccountType:            parent.AccountType,
			Budget:                 s.budget,
			Actual:                 s.actual,
			Variance:               calc.Variance,
			VariancePercent:        calc.VariancePercent,
			Severity:               classifier.Classify(calc.VariancePercent),
			Direction:              calc.Direction,
			ExceptionallyFavorable: isExceptionallyFavorable(calc, cfg),
			Level:                  s.level,
			Rollup:                 true,
			ChildCount:             len(h.children[id]),
			Matched:                s.matched,
		})
	}

	sort.SliceStable(rollups, func(i, j int) bool { return rollups[i].Level < rollups[j].Level })
	return append(out, rollups...)
}
