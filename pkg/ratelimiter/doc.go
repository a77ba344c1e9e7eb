// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis backed stores, plus an HTTP middleware.
//
//	store := ratelimiter.NewRedisStore(client)
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       5,
//		RefillRate:     5,
//		RefillInterval: time.Hour,
//	})
//	r.With(ratelimiter.Middleware(bucket, keyFn, log)).Get("/export", h)
//
// A denied request consumes nothing, so a client that keeps retrying is
// admitted as soon as the next refill lands.
package ratelimiter
