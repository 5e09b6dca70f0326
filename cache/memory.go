/*
Package cache provides an in-memory TTL cache for serialized analysis runs.

PURPOSE:
  Repeated analyses of the same org/board/period within a short window are
  served from memory instead of re-fetching both sources. The cache is an
  explicitly constructed value injected into reconcile.Service; there is no
  package-level instance.

DESIGN:
  - Entries carry an absolute expiry; Get treats expired entries as misses
  - A background janitor sweeps expired entries every CleanupInterval
  - Start/Stop follow a ticker + stop channel + WaitGroup lifecycle

USAGE:
  c := cache.NewMemory(log)
  c.Start()
  defer c.Stop()

  _ = c.Set(ctx, key, payload, 5*time.Minute)
  data, err := c.Get(ctx, key) // variance.ErrCacheMiss when absent/expired

SEE ALSO:
  - variance/store.go: Cache interface
  - store/sqlite/sqlite.go: SQLite-backed cache table (shared across processes)
*/
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/variance-engine/variance"
)

// DefaultCleanupInterval is used when CleanupInterval is not positive.
const DefaultCleanupInterval = time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a mutex-guarded map with TTL expiry.
type Memory struct {
	CleanupInterval time.Duration

	// now is replaceable in tests.
	now func() time.Time
	log zerolog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	lifecycle sync.Mutex
	ticker    *time.Ticker
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewMemory creates a cache with a one-minute janitor interval.
// The janitor does not run until Start is called.
func NewMemory(log zerolog.Logger) *Memory {
	return &Memory{
		CleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		log:             log.With().Str("component", "cache").Logger(),
		entries:         make(map[string]entry),
	}
}

// WithClock replaces the time source. Test helper.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		return nil, variance.ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value. A non-positive ttl deletes the key.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return m.Delete(ctx, key)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.entries[key] = entry{value: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// =============================================================================
// JANITOR
// =============================================================================

// Start launches the background sweep. Calling Start twice is a no-op.
// A non-positive CleanupInterval falls back to DefaultCleanupInterval.
func (m *Memory) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.ticker != nil {
		return
	}
	if m.CleanupInterval <= 0 {
		m.log.Warn().Dur("interval", m.CleanupInterval).Msg("invalid cache cleanup interval, using default")
		m.CleanupInterval = DefaultCleanupInterval
	}
	m.ticker = time.NewTicker(m.CleanupInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.log.Info().Dur("interval", m.CleanupInterval).Msg("cache janitor started")
}

// Stop halts the janitor and waits for it to exit.
func (m *Memory) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.wg.Wait()
	m.ticker = nil
	m.log.Info().Msg("cache janitor stopped")
}

func (m *Memory) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep removes expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.log.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed
}

var _ variance.Cache = (*Memory)(nil)
