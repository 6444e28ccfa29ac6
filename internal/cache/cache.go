// Package cache provides the shared key-value surface the engine leans on:
// a Backend abstraction over Redis (or an in-memory stand-in) plus a
// ResultCache that memoizes expensive store scans with a short TTL.
//
// Contract: a broken cache must never break the caller. Every read error
// degrades to a recompute or a permissive answer.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend is the minimal KV surface the engine needs: atomic get/set with
// per-key expiry plus prefix enumeration for wholesale invalidation.
type Backend interface {
	// Get returns the value and whether the key exists (and is unexpired).
	Get(ctx context.Context, key string) (string, bool, error)
	// SetTTL stores value under key, expiring after ttl. ttl <= 0 means no expiry.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Keys returns all live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}

// QueryKey builds a cache key for a time-window query. The time argument is
// quantized to the scan interval so repeated scans within one cycle share a
// key, while distinct (now, horizon) windows never collide.
func QueryKey(prefix string, now time.Time, horizon, quantum time.Duration) string {
	if quantum <= 0 {
		quantum = time.Minute
	}
	return fmt.Sprintf("%s:%d:%d", prefix, now.Truncate(quantum).Unix(), int64(horizon/time.Second))
}
