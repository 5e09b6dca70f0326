// Package store provides in-memory implementations of the variance
// collaborator interfaces.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// MEMORY STORE - In-memory ResultStore + ThresholdStore (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	runs       map[string]variance.AnalysisRun
	byKey      map[variance.RunKey][]string // run IDs, insertion order
	thresholds map[string]variance.ThresholdConfig
}

func NewMemory() *Memory {
	return &Memory{
		runs:       make(map[string]variance.AnalysisRun),
		byKey:      make(map[variance.RunKey][]string),
		thresholds: make(map[string]variance.ThresholdConfig),
	}
}

// SaveRun stores a run. Write-once per ID.
func (m *Memory) SaveRun(_ context.Context, run variance.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return variance.ErrDuplicateRun
	}
	m.runs[run.ID] = run
	m.byKey[run.Key] = append(m.byKey[run.Key], run.ID)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (variance.AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return variance.AnalysisRun{}, variance.ErrRunNotFound
	}
	return run, nil
}

// LatestRun returns the newest run for key. Runs with equal CreatedAt are
// ordered by insertion.
func (m *Memory) LatestRun(_ context.Context, key variance.RunKey) (variance.AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byKey[key]
	if len(ids) == 0 {
		return variance.AnalysisRun{}, variance.ErrRunNotFound
	}

	latest := m.runs[ids[0]]
	for _, id := range ids[1:] {
		run := m.runs[id]
		if !run.CreatedAt.Before(latest.CreatedAt) {
			latest = run
		}
	}
	return latest, nil
}

func (m *Memory) ListRuns(_ context.Context, orgID, boardID string, limit int) ([]variance.AnalysisRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []variance.AnalysisRun
	for key, ids := range m.byKey {
		if key.OrgID != orgID || key.BoardID != boardID {
			continue
		}
		for _, id := range ids {
			found = append(found, m.runs[id])
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.After(found[j].CreatedAt)
		}
		return found[i].ID > found[j].ID
	})

	if limit > 0 && limit < len(found) {
		found = found[:limit]
	}
	return found, nil
}

// =============================================================================
// THRESHOLDS
// =============================================================================

func (m *Memory) GetThresholds(_ context.Context, orgID string) (variance.ThresholdConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.thresholds[orgID]
	if !ok {
		return variance.DefaultThresholds(), nil
	}
	return cfg, nil
}

func (m *Memory) SaveThresholds(_ context.Context, orgID string, cfg variance.ThresholdConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[orgID] = cfg
	return nil
}

var (
	_ variance.ResultStore    = (*Memory)(nil)
	_ variance.ThresholdStore = (*Memory)(nil)
)
