package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucketState struct {
	tokens     int
	lastRefill time.Time
}

// MemoryStore keeps buckets in process memory. Buckets that have refilled
// completely are dropped on the next sweep.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]*bucketState
	lastSweep  time.Time
	sweepEvery time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucketState), sweepEvery: 5 * time.Minute}
}

func (m *MemoryStore) Take(_ context.Context, key string, n int, cfg Config, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now, cfg)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucketState{tokens: cfg.Capacity, lastRefill: now}
		m.buckets[key] = b
	}
	b.tokens, b.lastRefill = refill(b.tokens, b.lastRefill, now, cfg)

	remaining := b.tokens - n
	if remaining >= 0 {
		b.tokens = remaining
	}
	return remaining, b.lastRefill.Add(cfg.RefillInterval), nil
}

func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

func (m *MemoryStore) sweep(now time.Time, cfg Config) {
	if now.Sub(m.lastSweep) < m.sweepEvery {
		return
	}
	m.lastSweep = now
	full := time.Duration(cfg.Capacity/cfg.RefillRate+1) * cfg.RefillInterval
	for key, b := range m.buckets {
		if now.Sub(b.lastRefill) > full {
			delete(m.buckets, key)
		}
	}
}
