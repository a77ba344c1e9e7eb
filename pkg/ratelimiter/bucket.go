package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config describes a token bucket.
type Config struct {
	Capacity       int // burst size
	RefillRate     int // tokens added every RefillInterval
	RefillInterval time.Duration
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Result is the outcome of a single check. Remaining is negative when the
// request was denied.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (r Result) Allowed() bool { return r.Remaining >= 0 }

// RetryAfter is zero for allowed requests.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state. Take consumes n tokens only when that many are
// available and reports what is left.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config, now time.Time) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

type Bucket struct {
	store  Store
	config Config
	now    func() time.Time
}

type BucketOption func(*Bucket)

func WithClock(now func() time.Time) BucketOption {
	return func(b *Bucket) { b.now = now }
}

func NewBucket(store Store, cfg Config, opts ...BucketOption) (*Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Bucket{store: store, config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if n <= 0 {
		return Result{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	remaining, resetAt, err := b.store.Take(ctx, key, n, b.config, b.now())
	if err != nil {
		return Result{}, err
	}
	return Result{Limit: b.config.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}

// refill advances a bucket to now. It returns the new token count and the
// new refill reference time.
func refill(tokens int, last, now time.Time, cfg Config) (int, time.Time) {
	if now.Before(last) {
		return tokens, last
	}
	intervals := int64(now.Sub(last) / cfg.RefillInterval)
	if intervals <= 0 {
		return tokens, last
	}
	// beyond this many intervals the bucket is full anyway
	capIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	added := int(min(intervals, capIntervals)) * cfg.RefillRate
	return min(tokens+added, cfg.Capacity), last.Add(time.Duration(intervals) * cfg.RefillInterval)
}
