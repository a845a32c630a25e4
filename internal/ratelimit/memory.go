package ratelimit

import (
	"context"
	"sync"
	"time"
)

// counter is the live window of one key. Older windows are never kept: the
// first hit in a newer window resets the counter in place.
type counter struct {
	index    int64
	windowMs int64
	count    int64
	resetAt  time.Time
}

// MemoryStore is the process-local Store shared by all policies. A single
// mutex guards the map; every operation is O(1). Counters are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
	}
}

// Increment records a hit for key in the window containing now. It only fails
// for an invalid window.
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (Hit, error) {
	if err := ValidateWindow(window); err != nil {
		return Hit{}, err
	}
	index, resetAt := windowBounds(now, window)
	windowMs := window.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.counters[key]
	if !exists {
		c = &counter{}
		m.counters[key] = c
	}
	if c.index != index || c.windowMs != windowMs {
		// stale or fresh entry: start the new window
		c.index = index
		c.windowMs = windowMs
		c.count = 0
		c.resetAt = resetAt
	}
	c.count++

	return Hit{TotalHits: c.count, ResetTime: c.resetAt}, nil
}

// Len returns the number of keys currently holding a counter.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Sweep removes counters whose window ended at or before now and returns how
// many were removed. Keys that are never requested again are otherwise kept
// until the process exits.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, c := range m.counters {
		if !now.Before(c.resetAt) {
			delete(m.counters, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired counters every interval until ctx is done.
// A non-positive interval disables it.
func (m *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}
