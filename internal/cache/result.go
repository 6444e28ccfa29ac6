package cache

import (
	"context"
	"time"

	"nudge/pkg/logx"
)

// ResultCache memoizes expensive store scans. Backend failures are logged
// and degrade to calling the compute function directly; the caller never
// sees a cache error.
type ResultCache struct {
	backend Backend
	log     logx.Logger
}

func NewResultCache(backend Backend, log logx.Logger) *ResultCache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ResultCache{backend: backend, log: log}
}

// GetOrCompute returns the cached value for key if present and unexpired;
// otherwise it invokes compute, stores the result with ttl, and returns it.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (string, error)) (string, error) {
	v, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed, computing directly", logx.String("key", key), logx.Err(err))
		return compute(ctx)
	}
	if ok {
		c.log.Debug("cache hit", logx.String("key", key))
		return v, nil
	}

	v, err = compute(ctx)
	if err != nil {
		return "", err
	}
	if err := c.backend.SetTTL(ctx, key, v, ttl); err != nil {
		// A missed store only costs a recompute next cycle.
		c.log.Warn("cache write failed", logx.String("key", key), logx.Err(err))
	}
	return v, nil
}

// Invalidate deletes every entry whose key starts with prefix and returns
// how many were removed. It is called synchronously from mutation hooks so
// the next scan cannot read a stale window.
func (c *ResultCache) Invalidate(ctx context.Context, prefix string) (int, error) {
	keys, err := c.backend.Keys(ctx, prefix)
	if err != nil {
		c.log.Warn("cache invalidate scan failed", logx.String("prefix", prefix), logx.Err(err))
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.log.Warn("cache invalidate delete failed", logx.String("prefix", prefix), logx.Err(err))
		return 0, err
	}
	c.log.Debug("cache invalidated", logx.String("prefix", prefix), logx.Int("keys", len(keys)))
	return len(keys), nil
}
