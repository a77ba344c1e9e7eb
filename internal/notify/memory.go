package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryLedger) HasRecent(_ context.Context, userID string, kind subscription.NotificationKind, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.ContainsFunc(m.entries, func(e LogEntry) bool {
		return e.UserID == userID && e.Type == kind && e.CreatedAt.After(since)
	}), nil
}

// Entries returns a copy of all entries in insertion order.
func (m *MemoryLedger) Entries() []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}
