package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Backend with per-key expiry.
//
// It exists for tests and for running without a Redis deployment. It is a
// stand-in for the external store, never an authority of its own: nothing
// in it survives a restart, which the engine's TTL-as-truth design already
// tolerates.
type Memory struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	val     string
	expires time.Time // zero = no expiry
}

func NewMemory() *Memory {
	return &Memory{m: map[string]memEntry{}, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (c *Memory) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.m, key)
		return "", false, nil
	}
	return e.val, true, nil
}

func (c *Memory) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	var exp time.Time
	c.mu.Lock()
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.m[key] = memEntry{val: value, expires: exp}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var out []string
	for k, e := range c.m {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.m, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Memory) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
	return nil
}

// Len reports the number of live entries. Test helper.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.m {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.m, k)
			continue
		}
		n++
	}
	return n
}
