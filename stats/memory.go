package stats

import (
	"context"
	"sync"
)

var (
	_ Recorder = &MemoryRecorder{}
	_ Reader   = &MemoryRecorder{}
)

// MemoryRecorder keeps decision counters in memory for the lifetime of the process.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byUser  map[string]Counters

	trackUsers bool
}

type MemoryOption func(*MemoryRecorder)

// WithTrackUsers enables per-user counters. Beware of cardinality.
func WithTrackUsers(track bool) MemoryOption {
	return func(m *MemoryRecorder) { m.trackUsers = track }
}

func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	m := &MemoryRecorder{
		byRoute: make(map[string]Counters),
		byUser:  make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.add(ev.Outcome, 1)

	r := route(ev)
	c := m.byRoute[r]
	c.add(ev.Outcome, 1)
	m.byRoute[r] = c

	if m.trackUsers && ev.User != "" {
		u := m.byUser[ev.User]
		u.add(ev.Outcome, 1)
		m.byUser[ev.User] = u
	}
	return nil
}

func (m *MemoryRecorder) Totals(_ context.Context) (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

func (m *MemoryRecorder) ByRoute() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counters, len(m.byRoute))
	for k, v := range m.byRoute {
		out[k] = v
	}
	return out
}

func (m *MemoryRecorder) ByUser() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counters, len(m.byUser))
	for k, v := range m.byUser {
		out[k] = v
	}
	return out
}
