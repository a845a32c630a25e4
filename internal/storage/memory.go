package storage

import (
	"context"
	"fmt"
	"sync"

	"trustguard/internal/models"
)

const defaultMaxEntries = 1000

// MemoryStorage keeps the most recent rejections in a fixed-size ring. It is
// the default backend: nothing survives a restart and nothing grows without
// bound.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []*models.Rejection
	next    int
	full    bool
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	size := config.MaxEntries
	if size <= 0 {
		size = defaultMaxEntries
	}
	return &MemoryStorage{
		entries: make([]*models.Rejection, size),
	}, nil
}

func (m *MemoryStorage) RecordRejection(ctx context.Context, r *models.Rejection) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rejection: %w", err)
	}

	// Store a copy to prevent external modification
	rCopy := *r

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = &rCopy
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryStorage) Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.EffectiveLimit()
	result := make([]*models.Rejection, 0, min(limit, m.lenLocked()))

	// walk backwards from the newest entry
	for i := 0; i < m.lenLocked() && len(result) < limit; i++ {
		idx := (m.next - 1 - i + len(m.entries)) % len(m.entries)
		r := m.entries[idx]
		if !filter.Matches(r) {
			continue
		}
		rCopy := *r
		result = append(result, &rCopy)
	}
	return result, nil
}

// Len returns the number of rejections currently held.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lenLocked()
}

func (m *MemoryStorage) lenLocked() int {
	if m.full {
		return len(m.entries)
	}
	return m.next
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
