// Package rediscache provides a read-through Redis cache in front of the
// subscription lookup used by the access gate.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/psikit/internal/metrics"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

const (
	DefaultTTL = 5 * time.Minute
	keyPrefix  = "psikit:subscription:"
	genPrefix  = "psikit:subscription:gen:"
	// genTTL outlives any database read that could race an invalidation.
	genTTL = time.Hour
	// absent marks users without a subscription so repeated lookups for
	// free users stay off the database.
	absent = "none"
)

// SubscriptionCache implements subscription.Reader. Redis failures fall
// back to the wrapped reader.
type SubscriptionCache struct {
	client redis.UniversalClient
	next   subscription.Reader
	ttl    time.Duration
	log    *slog.Logger
}

type Option func(*SubscriptionCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *SubscriptionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *SubscriptionCache) {
		if l != nil {
			c.log = l
		}
	}
}

func New(client redis.UniversalClient, next subscription.Reader, opts ...Option) *SubscriptionCache {
	c := &SubscriptionCache{client: client, next: next, ttl: DefaultTTL, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(userID string) string { return keyPrefix + userID }
func genKey(userID string) string { return genPrefix + userID }

// fillScript stores a value only if no invalidation happened since the
// generation in ARGV[1] was read, so a slow database read cannot put back
// state that a webhook already replaced.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (c *SubscriptionCache) Current(ctx context.Context, userID string) (*subscription.Subscription, error) {
	val, err := c.client.Get(ctx, key(userID)).Result()
	switch {
	case err == nil:
		if val == absent {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return nil, subscription.ErrSubscriptionNotFound
		}
		var sub subscription.Subscription
		if jerr := json.Unmarshal([]byte(val), &sub); jerr == nil {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return &sub, nil
		}
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		c.log.WarnContext(ctx, "subscription cache unavailable", logger.UserID(userID), logger.Error(err))
	}

	gen, genErr := c.generation(ctx, userID)

	sub, err := c.next.Current(ctx, userID)
	switch {
	case err != nil && !errors.Is(err, subscription.ErrSubscriptionNotFound):
		return nil, err
	case genErr != nil:
		return sub, err
	case err != nil:
		c.fill(ctx, userID, gen, absent)
		return nil, err
	}

	if data, jerr := json.Marshal(sub); jerr == nil {
		c.fill(ctx, userID, gen, string(data))
	}
	return sub, nil
}

func (c *SubscriptionCache) generation(ctx context.Context, userID string) (string, error) {
	gen, err := c.client.Get(ctx, genKey(userID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", nil
	case err != nil:
		return "", err
	}
	return gen, nil
}

func (c *SubscriptionCache) fill(ctx context.Context, userID, gen, value string) {
	err := fillScript.Run(ctx, c.client, []string{key(userID), genKey(userID)}, gen, value, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.log.WarnContext(ctx, "failed to fill subscription cache", logger.UserID(userID), logger.Error(err))
	}
}

// Invalidate drops the cached entry for userID and bumps its generation so
// in-flight fills started before the change are discarded.
func (c *SubscriptionCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(userID))
		pipe.Expire(ctx, genKey(userID), genTTL)
		pipe.Del(ctx, key(userID))
		return nil
	})
	return err
}
