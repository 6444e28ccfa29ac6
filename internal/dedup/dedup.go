// Package dedup records "last notified at" per (task, kind) in a TTL
// key-value store and answers cooldown queries against it.
//
// The store is the single source of truth: no in-process set participates
// in dedup decisions, so restarts and interleaved cycles cannot cause
// re-notification storms beyond what the TTLs already tolerate.
package dedup

import (
	"context"
	"strconv"
	"time"

	"nudge/internal/cache"
	"nudge/internal/model"
	"nudge/pkg/logx"
)

const DefaultKeyPrefix = "cron:last_notif:"

// Store answers "was this recently notified" with per-kind cooldowns.
//
// Error policy (deliberate asymmetry): read failures answer "not recently
// notified" so a transient backend outage never silences a legitimate
// notification; write failures are logged only, risking at worst one
// duplicate next cycle.
type Store struct {
	backend   cache.Backend
	prefix    string
	retention time.Duration
	log       logx.Logger
	now       func() time.Time
}

// Config for the dedup store. Retention must exceed the largest cooldown in
// use; it bounds how long a record exists, independent of cooldown checks.
type Config struct {
	KeyPrefix string
	Retention time.Duration
}

func New(backend cache.Backend, cfg Config, log logx.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		backend:   backend,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) key(taskID string, kind model.Kind) string {
	return s.prefix + string(kind) + ":" + taskID
}

// WasRecentlyNotified reports whether (taskID, kind) was notified less than
// cooldown ago.
func (s *Store) WasRecentlyNotified(ctx context.Context, taskID string, kind model.Kind, cooldown time.Duration) bool {
	v, ok, err := s.backend.Get(ctx, s.key(taskID, kind))
	if err != nil {
		s.log.Warn("dedup read failed, allowing notification",
			logx.String("task", taskID), logx.String("kind", string(kind)), logx.Err(err))
		return false
	}
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Garbage entry; treat as absent, the sweep will collect it.
		return false
	}
	return s.now().Sub(time.UnixMilli(ms)) < cooldown
}

// MarkNotified records now() for (taskID, kind) with the retention TTL.
func (s *Store) MarkNotified(ctx context.Context, taskID string, kind model.Kind) {
	ms := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.backend.SetTTL(ctx, s.key(taskID, kind), ms, s.retention); err != nil {
		s.log.Warn("dedup write failed",
			logx.String("task", taskID), logx.String("kind", string(kind)), logx.Err(err))
	}
}

// MarkBoth records both kinds for a task. Used by the completion hook so a
// stale reminder cannot fire for a task the user just finished.
func (s *Store) MarkBoth(ctx context.Context, taskID string) {
	s.MarkNotified(ctx, taskID, model.KindReminder)
	s.MarkNotified(ctx, taskID, model.KindOverdue)
}

// SweepExpired removes entries older than the retention window, plus any
// that fail to parse. Store hygiene only: the per-key TTL already bounds
// correctness, so this is best-effort and safe to run concurrently with
// reads and writes.
func (s *Store) SweepExpired(ctx context.Context) (removed int, err error) {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var stale []string
	for _, k := range keys {
		v, ok, err := s.backend.Get(ctx, k)
		if err != nil {
			continue
		}
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || now.Sub(time.UnixMilli(ms)) > s.retention {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.backend.Del(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
