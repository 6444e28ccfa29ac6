// Package engine is the dispatch orchestrator: cron-driven cycles that
// scan for due-soon and overdue tasks, filter them through the dedup
// store, consolidate per user, and dispatch one push event plus one email
// per user. A third low-frequency cycle sweeps stale dedup entries.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nudge/internal/cache"
	"nudge/internal/consolidate"
	"nudge/internal/dedup"
	"nudge/internal/eventbus"
	"nudge/internal/model"
	"nudge/internal/store"
	"nudge/internal/transport/mail"
	"nudge/internal/transport/push"
	"nudge/pkg/logx"
)

// Realtime event names, fixed by the web client.
const (
	EventReminder = "task-reminder"
	EventOverdue  = "task-overdue"
)

// Policy is the enumerated scheduling/cooldown table, passed in at
// construction instead of living in package-level maps.
type Policy struct {
	// Cron specs (robfig/cron, seconds field optional).
	ReminderSpec string
	OverdueSpec  string
	SweepSpec    string

	ReminderHorizon  time.Duration
	ReminderCooldown time.Duration
	OverdueCooldown  time.Duration

	CacheTTL time.Duration
	// CacheQuantum quantizes query-key timestamps; it should match the
	// shortest cycle period so scans within one cycle share a key.
	CacheQuantum time.Duration

	DueKeyPrefix     string
	OverdueKeyPrefix string
}

// DefaultPolicy mirrors the production cadence: reminders every 5 minutes
// over a 30-minute horizon with a 25-minute cooldown, overdue alerts every
// 2 minutes with a 1-hour cooldown, sweep hourly.
func DefaultPolicy() Policy {
	return Policy{
		ReminderSpec:     "*/5 * * * *",
		OverdueSpec:      "*/2 * * * *",
		SweepSpec:        "0 * * * *",
		ReminderHorizon:  30 * time.Minute,
		ReminderCooldown: 25 * time.Minute,
		OverdueCooldown:  time.Hour,
		CacheTTL:         5 * time.Minute,
		CacheQuantum:     2 * time.Minute,
		DueKeyPrefix:     "cron:due_tasks",
		OverdueKeyPrefix: "cron:overdue_tasks",
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ReminderSpec == "" {
		p.ReminderSpec = d.ReminderSpec
	}
	if p.OverdueSpec == "" {
		p.OverdueSpec = d.OverdueSpec
	}
	if p.SweepSpec == "" {
		p.SweepSpec = d.SweepSpec
	}
	if p.ReminderHorizon <= 0 {
		p.ReminderHorizon = d.ReminderHorizon
	}
	if p.ReminderCooldown <= 0 {
		p.ReminderCooldown = d.ReminderCooldown
	}
	if p.OverdueCooldown <= 0 {
		p.OverdueCooldown = d.OverdueCooldown
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = d.CacheTTL
	}
	if p.CacheQuantum <= 0 {
		p.CacheQuantum = d.CacheQuantum
	}
	if p.DueKeyPrefix == "" {
		p.DueKeyPrefix = d.DueKeyPrefix
	}
	if p.OverdueKeyPrefix == "" {
		p.OverdueKeyPrefix = d.OverdueKeyPrefix
	}
	return p
}

// Deps are the engine's collaborators. Tasks, Results and Dedup are
// required; nil transports degrade to no-ops, a nil locale means Arabic.
type Deps struct {
	Tasks  store.TaskStore
	Users  store.UserStore
	Result *cache.ResultCache
	Dedup  *dedup.Store
	Pusher push.Pusher
	Mailer mail.Mailer
	Locale consolidate.Locale
	Bus    eventbus.Bus
	Log    logx.Logger
}

type Engine struct {
	tasks  store.TaskStore
	users  store.UserStore
	result *cache.ResultCache
	dedup  *dedup.Store
	pusher push.Pusher
	mailer mail.Mailer
	loc    consolidate.Locale
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu  sync.Mutex
	pol Policy

	cron    *cron.Cron
	unsub   func()
	busWG   sync.WaitGroup
	runCtx  context.Context
	runStop context.CancelFunc
	started bool
}

func New(deps Deps, pol Policy) (*Engine, error) {
	if deps.Tasks == nil || deps.Result == nil || deps.Dedup == nil {
		return nil, fmt.Errorf("engine: task store, result cache and dedup store are required")
	}
	if deps.Pusher == nil {
		deps.Pusher = push.Nop{}
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.Nop{}
	}
	if deps.Locale == nil {
		deps.Locale = consolidate.Arabic{}
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Engine{
		tasks:  deps.Tasks,
		users:  deps.Users,
		result: deps.Result,
		dedup:  deps.Dedup,
		pusher: deps.Pusher,
		mailer: deps.Mailer,
		loc:    deps.Locale,
		bus:    deps.Bus,
		log:    deps.Log,
		now:    time.Now,
		pol:    pol.withDefaults(),
	}, nil
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Apply updates the live policy. Cooldowns, horizon and cache TTL take
// effect on the next cycle; cron spec changes need a restart.
func (e *Engine) Apply(pol Policy) {
	e.mu.Lock()
	e.pol = pol.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pol
}

// Start registers the three cycles and begins firing them on schedule.
// Each cycle runs to completion inside the cron goroutine; dedup
// correctness rests on the external store's TTLs, not on serialization
// here, so an overlapping slow cycle cannot corrupt state.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	pol := e.pol

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	e.runCtx, e.runStop = context.WithCancel(ctx)
	runCtx := e.runCtx

	if _, err := c.AddFunc(pol.ReminderSpec, func() { e.RunReminderCycle(runCtx) }); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: reminder spec %q: %w", pol.ReminderSpec, err)
	}
	if _, err := c.AddFunc(pol.OverdueSpec, func() { e.RunOverdueCycle(runCtx) }); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: overdue spec %q: %w", pol.OverdueSpec, err)
	}
	if _, err := c.AddFunc(pol.SweepSpec, func() { e.RunSweep(runCtx) }); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: sweep spec %q: %w", pol.SweepSpec, err)
	}

	e.cron = c
	e.started = true
	e.mu.Unlock()

	if e.bus != nil {
		ch, unsub := e.bus.Subscribe(32)
		e.unsub = unsub
		e.busWG.Add(1)
		go func() {
			defer e.busWG.Done()
			e.consumeMutations(runCtx, ch)
		}()
	}

	c.Start()
	e.log.Info("engine started",
		logx.String("reminder_spec", pol.ReminderSpec),
		logx.String("overdue_spec", pol.OverdueSpec),
		logx.String("sweep_spec", pol.SweepSpec),
		logx.Duration("horizon", pol.ReminderHorizon))
	return nil
}

// Stop halts the schedule and waits for in-flight cycles, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	c := e.cron
	stop := e.runStop
	unsub := e.unsub
	e.cron = nil
	e.runStop = nil
	e.unsub = nil
	e.started = false
	e.mu.Unlock()

	if c == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	if stop != nil {
		stop()
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("engine stop deadline reached with cycles still running")
	}
	e.busWG.Wait()
	e.log.Info("engine stopped")
}

// RunReminderCycle executes one due-soon pass. Exported for tests and for
// manual triggering; the cron schedule calls exactly this.
func (e *Engine) RunReminderCycle(ctx context.Context) {
	e.runCycle(ctx, model.KindReminder)
}

// RunOverdueCycle executes one overdue pass.
func (e *Engine) RunOverdueCycle(ctx context.Context) {
	e.runCycle(ctx, model.KindOverdue)
}

// RunSweep removes stale dedup entries. Hygiene only; TTLs already bound
// correctness.
func (e *Engine) RunSweep(ctx context.Context) {
	defer e.recoverCycle("sweep")
	removed, err := e.dedup.SweepExpired(ctx)
	if err != nil {
		e.log.Warn("dedup sweep failed", logx.Err(err))
		return
	}
	if removed > 0 {
		e.log.Info("dedup sweep", logx.Int("removed", removed))
	}
}

func (e *Engine) recoverCycle(name string) {
	if r := recover(); r != nil {
		e.log.Error("panic in cycle",
			logx.String("cycle", name),
			logx.Any("panic", r),
			logx.Stack(string(debug.Stack())))
	}
}

func (e *Engine) runCycle(ctx context.Context, kind model.Kind) {
	name := string(kind)
	defer e.recoverCycle(name)

	pol := e.policy()
	now := e.now()
	start := time.Now()
	log := e.log.With(logx.String("cycle", name))

	candidates, err := e.scan(ctx, kind, pol, now)
	if err != nil {
		log.Error("scan failed, aborting cycle", logx.Err(err))
		return
	}
	if len(candidates) == 0 {
		log.Debug("no candidate tasks")
		return
	}

	cooldown := pol.ReminderCooldown
	if kind == model.KindOverdue {
		cooldown = pol.OverdueCooldown
	}

	// Filter through the dedup store and bucket per user. The buckets are
	// a per-cycle accumulator only; the store stays the source of truth.
	byUser := map[string][]consolidate.Entry{}
	for _, t := range candidates {
		if !t.Eligible() || t.UserID == "" {
			continue
		}
		if e.dedup.WasRecentlyNotified(ctx, t.ID, kind, cooldown) {
			continue
		}
		byUser[t.UserID] = append(byUser[t.UserID], consolidate.NewEntry(t, now))
	}
	if len(byUser) == 0 {
		log.Debug("all candidates within cooldown", logx.Int("candidates", len(candidates)))
		return
	}

	// Deterministic order keeps logs and tests stable.
	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	dispatched := 0
	for _, userID := range userIDs {
		// Each user's batch is isolated: a failure here must not starve
		// the remaining users.
		if e.dispatchUser(ctx, kind, userID, byUser[userID], log) {
			dispatched++
		}
	}

	log.Info("cycle complete",
		logx.Int("candidates", len(candidates)),
		logx.Int("users", len(byUser)),
		logx.Int("dispatched", dispatched),
		logx.Duration("took", time.Since(start)))
}

// scan fetches the candidate set through the result cache.
func (e *Engine) scan(ctx context.Context, kind model.Kind, pol Policy, now time.Time) ([]model.Task, error) {
	var (
		key     string
		compute func(ctx context.Context) (string, error)
	)
	if kind == model.KindOverdue {
		key = cache.QueryKey(pol.OverdueKeyPrefix, now, 0, pol.CacheQuantum)
		compute = func(ctx context.Context) (string, error) {
			tasks, err := e.tasks.FindOverdue(ctx, now)
			if err != nil {
				return "", err
			}
			return marshalTasks(tasks)
		}
	} else {
		key = cache.QueryKey(pol.DueKeyPrefix, now, pol.ReminderHorizon, pol.CacheQuantum)
		compute = func(ctx context.Context) (string, error) {
			tasks, err := e.tasks.FindDueSoon(ctx, now, pol.ReminderHorizon)
			if err != nil {
				return "", err
			}
			return marshalTasks(tasks)
		}
	}

	raw, err := e.result.GetOrCompute(ctx, key, pol.CacheTTL, compute)
	if err != nil {
		return nil, err
	}
	tasks, err := unmarshalTasks(raw)
	if err != nil {
		// A corrupt cache entry must not fail the cycle; recompute.
		e.log.Warn("corrupt cached scan, recomputing", logx.String("key", key), logx.Err(err))
		raw, err = compute(ctx)
		if err != nil {
			return nil, err
		}
		return unmarshalTasks(raw)
	}
	return tasks, nil
}

// eventPayload is the wire shape of one push event.
type eventPayload struct {
	Message    string                   `json:"message"`
	TotalTasks int                      `json:"totalTasks"`
	Tasks      []consolidate.TaskDetail `json:"tasks"`
	Priority   model.Priority           `json:"priority"`
}

// dispatchUser builds the consolidated batch, pushes it, attempts the
// email, then marks every task notified. Marking happens after the
// dispatch attempt: at-least-once semantics, a crash in between costs at
// most one duplicate next cycle.
func (e *Engine) dispatchUser(ctx context.Context, kind model.Kind, userID string, entries []consolidate.Entry, log logx.Logger) bool {
	batch := consolidate.Build(kind, entries, e.loc)

	eventName := EventReminder
	if kind == model.KindOverdue {
		eventName = EventOverdue
	}

	if err := e.pusher.SendToUser(ctx, userID, eventName, eventPayload{
		Message:    batch.Message,
		TotalTasks: batch.Total,
		Tasks:      batch.Tasks,
		Priority:   batch.Priority,
	}); err != nil {
		log.Warn("push failed", logx.String("user", userID), logx.Err(err))
	}

	e.sendEmail(ctx, kind, userID, batch, log)

	for _, en := range entries {
		e.dedup.MarkNotified(ctx, en.Task.ID, kind)
	}

	log.Debug("dispatched batch",
		logx.String("user", userID),
		logx.Int("tasks", batch.Total),
		logx.String("priority", string(batch.Priority)))
	return true
}

// sendEmail is best-effort: any failure is logged and swallowed so it can
// block neither the realtime delivery nor the dedup marking.
func (e *Engine) sendEmail(ctx context.Context, kind model.Kind, userID string, batch consolidate.Batch, log logx.Logger) {
	if e.users == nil {
		return
	}
	u, err := e.users.GetUser(ctx, userID)
	if err != nil {
		log.Warn("user lookup failed, skipping email", logx.String("user", userID), logx.Err(err))
		return
	}
	if u.Email == "" {
		log.Debug("user has no email", logx.String("user", userID))
		return
	}

	subject := e.loc.ReminderSubject(batch.Total)
	if kind == model.KindOverdue {
		subject = e.loc.OverdueSubject(batch.Total)
	}
	text := e.loc.EmailText(u.FullName(), batch.Message, batch.Tasks)
	html := e.loc.EmailHTML(u.FullName(), batch.Message, batch.Tasks)

	if err := e.mailer.Send(ctx, u.Email, subject, text, html); err != nil {
		log.Warn("email send failed", logx.String("user", userID), logx.Err(err))
		return
	}
	log.Debug("email sent", logx.String("user", userID))
}

func marshalTasks(tasks []model.Task) (string, error) {
	b, err := json.Marshal(tasks)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalTasks(raw string) ([]model.Task, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var tasks []model.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
