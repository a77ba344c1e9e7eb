package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. It backs tests and local runs
// without a database.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Store(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) Query(_ context.Context, c Criteria) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0, len(m.events))
	for _, e := range slices.Backward(m.events) {
		if c.UserID != "" && e.UserID != c.UserID {
			continue
		}
		if c.Action != "" && e.Action != c.Action {
			continue
		}
		if c.Resource != "" && e.Resource != c.Resource {
			continue
		}
		if !c.Since.IsZero() && e.CreatedAt.Before(c.Since) {
			continue
		}
		out = append(out, e)
	}

	if c.Offset >= len(out) {
		return []Event{}, nil
	}
	out = out[c.Offset:]
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out, nil
}
