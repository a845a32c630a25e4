package stats

import (
	"context"
	"sync"

	"trustguard/internal/models"
)

// MemoryRecorder keeps decision counters in memory. Nothing expires; per-key
// tracking is off unless requested because key cardinality is unbounded.
type MemoryRecorder struct {
	mu       sync.Mutex
	total    models.DecisionCounters
	byPolicy map[string]models.DecisionCounters
	byKey    map[string]models.DecisionCounters

	trackKeys bool
}

type MemoryOption func(*MemoryRecorder)

// WithTrackKeys enables per-key counters.
func WithTrackKeys(track bool) MemoryOption {
	return func(m *MemoryRecorder) { m.trackKeys = track }
}

func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	m := &MemoryRecorder{
		byPolicy: make(map[string]models.DecisionCounters),
		byKey:    make(map[string]models.DecisionCounters),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bump(&m.total, ev)

	c := m.byPolicy[ev.Policy]
	bump(&c, ev)
	m.byPolicy[ev.Policy] = c

	if m.trackKeys && ev.Key != "" {
		k := m.byKey[ev.Key]
		bump(&k, ev)
		m.byKey[ev.Key] = k
	}
	return nil
}

// Snapshot returns a copy of the current counters.
func (m *MemoryRecorder) Snapshot() models.StatsResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := models.StatsResponse{
		Total:    m.total,
		ByPolicy: make(map[string]models.DecisionCounters, len(m.byPolicy)),
	}
	for k, v := range m.byPolicy {
		out.ByPolicy[k] = v
	}
	if m.trackKeys {
		out.ByKey = make(map[string]models.DecisionCounters, len(m.byKey))
		for k, v := range m.byKey {
			out.ByKey[k] = v
		}
	}
	return out
}

func bump(c *models.DecisionCounters, ev Event) {
	switch Outcome(ev) {
	case "failed_open":
		c.FailedOpen++
		c.Admitted++
	case "admitted":
		c.Admitted++
	default:
		c.Rejected++
	}
}
