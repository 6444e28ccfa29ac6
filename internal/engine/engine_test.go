package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"nudge/internal/cache"
	"nudge/internal/consolidate"
	"nudge/internal/dedup"
	"nudge/internal/model"
	"nudge/internal/store"
	"nudge/pkg/logx"
)

type fakeTasks struct {
	tasks []model.Task
	calls int
	err   error
}

func (f *fakeTasks) FindDueSoon(_ context.Context, now time.Time, horizon time.Duration) ([]model.Task, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Task
	for _, t := range f.tasks {
		if !t.Eligible() {
			continue
		}
		if t.DueAt.After(now) && !t.DueAt.After(now.Add(horizon)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) FindOverdue(_ context.Context, now time.Time) ([]model.Task, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.Eligible() && !t.DueAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeUsers struct{ users map[string]model.User }

func (f *fakeUsers) GetUser(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

type pushCall struct {
	userID  string
	event   string
	payload eventPayload
}

type fakePusher struct {
	calls   []pushCall
	failFor map[string]error
}

func (f *fakePusher) SendToUser(_ context.Context, userID, event string, payload any) error {
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.calls = append(f.calls, pushCall{userID, event, payload.(eventPayload)})
	return nil
}

type mailCall struct{ to, subject string }

type fakeMailer struct {
	calls []mailCall
	err   error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, mailCall{to, subject})
	return nil
}

type harness struct {
	eng    *Engine
	tasks  *fakeTasks
	pusher *fakePusher
	mailer *fakeMailer
	mem    *cache.Memory
	now    time.Time
}

func newHarness(t *testing.T, tasks []model.Task, users map[string]model.User) *harness {
	t.Helper()
	h := &harness{
		tasks:  &fakeTasks{tasks: tasks},
		pusher: &fakePusher{},
		mailer: &fakeMailer{},
		now:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	mem := cache.NewMemory()
	mem.SetClock(func() time.Time { return h.now })
	h.mem = mem
	dd := dedup.New(mem, dedup.Config{}, logx.Nop())
	dd.SetClock(func() time.Time { return h.now })

	eng, err := New(Deps{
		Tasks:  h.tasks,
		Users:  &fakeUsers{users: users},
		Result: cache.NewResultCache(mem, logx.Nop()),
		Dedup:  dd,
		Pusher: h.pusher,
		Mailer: h.mailer,
		Locale: consolidate.Arabic{},
	}, Policy{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.SetClock(func() time.Time { return h.now })
	h.eng = eng
	return h
}

func dueTask(id, user string, in time.Duration, base time.Time) model.Task {
	return model.Task{
		ID:        id,
		Title:     "task " + id,
		ListID:    "l1",
		ListTitle: "list",
		UserID:    user,
		DueAt:     base.Add(in),
	}
}

func TestReminderCycleDispatchesPerUser(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{
		dueTask("a1", "alice", 2*time.Minute, base),
		dueTask("a2", "alice", 8*time.Minute, base),
		dueTask("b1", "bob", 10*time.Minute, base),
		dueTask("far", "alice", 2*time.Hour, base), // outside horizon
	}, map[string]model.User{
		"alice": {ID: "alice", Email: "alice@example.com", FirstName: "أحمد"},
	})

	h.eng.RunReminderCycle(context.Background())

	if len(h.pusher.calls) != 2 {
		t.Fatalf("pushes = %d, want 2 (one per user)", len(h.pusher.calls))
	}
	// Users dispatch in sorted order.
	alice, bob := h.pusher.calls[0], h.pusher.calls[1]
	if alice.userID != "alice" || bob.userID != "bob" {
		t.Fatalf("dispatch order = %s, %s", alice.userID, bob.userID)
	}
	if alice.event != EventReminder {
		t.Fatalf("event = %q, want %q", alice.event, EventReminder)
	}
	if alice.payload.TotalTasks != 2 {
		t.Fatalf("alice totalTasks = %d, want 2", alice.payload.TotalTasks)
	}
	if alice.payload.Priority != model.PriorityUrgent {
		t.Fatalf("alice priority = %s, want urgent", alice.payload.Priority)
	}
	if alice.payload.Tasks[0].TaskID != "a1" {
		t.Fatalf("soonest task first, got %s", alice.payload.Tasks[0].TaskID)
	}
	if bob.payload.Priority != model.PriorityHigh {
		t.Fatalf("bob priority = %s, want high", bob.payload.Priority)
	}

	// Only alice has an email on file.
	if len(h.mailer.calls) != 1 || h.mailer.calls[0].to != "alice@example.com" {
		t.Fatalf("mail calls = %+v, want one to alice", h.mailer.calls)
	}
}

func TestCooldownSuppressesSecondCycle(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{dueTask("a1", "alice", 20*time.Minute, base)}, nil)

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatalf("first cycle pushes = %d, want 1", len(h.pusher.calls))
	}

	// Five minutes later the task is still in the window but inside cooldown.
	h.now = h.now.Add(5 * time.Minute)
	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatalf("cooldown violated: pushes = %d", len(h.pusher.calls))
	}

	// Past the 25-minute cooldown the task may fire again if still due.
	h.now = base.Add(26 * time.Minute)
	h.tasks.tasks[0].DueAt = h.now.Add(10 * time.Minute)
	h.eng.OnTaskUpdated(context.Background(), "", false) // drop the cached scan
	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 2 {
		t.Fatalf("post-cooldown pushes = %d, want 2", len(h.pusher.calls))
	}
}

func TestEmailFailureStillPushesAndMarks(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{dueTask("a1", "alice", 5*time.Minute, base)},
		map[string]model.User{"alice": {ID: "alice", Email: "alice@example.com"}})
	h.mailer.err = errors.New("smtp down")

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatalf("pushes = %d, want 1 despite mail failure", len(h.pusher.calls))
	}

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatal("task re-dispatched: mail failure must not skip dedup marking")
	}
}

func TestPushFailureIsolatedPerUser(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{
		dueTask("a1", "alice", 5*time.Minute, base),
		dueTask("b1", "bob", 5*time.Minute, base),
	}, nil)
	h.pusher.failFor = map[string]error{"alice": errors.New("socket gone")}

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 || h.pusher.calls[0].userID != "bob" {
		t.Fatalf("bob must still be dispatched, calls = %+v", h.pusher.calls)
	}
}

func TestOverdueCycle(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{
		dueTask("late", "alice", -90*time.Minute, base),
	}, nil)

	h.eng.RunOverdueCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatalf("pushes = %d, want 1", len(h.pusher.calls))
	}
	call := h.pusher.calls[0]
	if call.event != EventOverdue {
		t.Fatalf("event = %q, want %q", call.event, EventOverdue)
	}
	if call.payload.Priority != model.PriorityCritical {
		t.Fatalf("priority = %s, want critical", call.payload.Priority)
	}
	if d := call.payload.Tasks[0]; d.OverdueHours != 1 || d.OverdueMinutes != 30 {
		t.Fatalf("overdue split = %dh %dm, want 1h 30m", d.OverdueHours, d.OverdueMinutes)
	}
}

func TestCompletionSuppressesNotification(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, []model.Task{
		dueTask("done", "alice", 5*time.Minute, base),
		dueTask("open", "alice", 10*time.Minute, base),
	}, nil)

	// The task row still shows incomplete (stale scan), but the completion
	// hook already marked both kinds.
	h.eng.OnTaskUpdated(context.Background(), "done", true)

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 1 {
		t.Fatalf("pushes = %d, want 1", len(h.pusher.calls))
	}
	p := h.pusher.calls[0].payload
	if p.TotalTasks != 1 || p.Tasks[0].TaskID != "open" {
		t.Fatalf("completed task leaked into batch: %+v", p)
	}
}

func TestMutationHookInvalidatesScanCache(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, nil, nil)

	h.eng.RunReminderCycle(context.Background())
	if h.tasks.calls != 1 {
		t.Fatalf("store queries = %d, want 1", h.tasks.calls)
	}

	// Same window, cached: no second store query.
	h.eng.RunReminderCycle(context.Background())
	if h.tasks.calls != 1 {
		t.Fatalf("store queries = %d, want 1 (cached)", h.tasks.calls)
	}

	// A new task plus the create hook must be visible immediately.
	h.tasks.tasks = append(h.tasks.tasks, dueTask("new", "alice", 5*time.Minute, base))
	h.eng.OnTaskCreated(context.Background())
	h.eng.RunReminderCycle(context.Background())
	if h.tasks.calls != 2 {
		t.Fatalf("store queries = %d, want 2 after invalidation", h.tasks.calls)
	}
	if len(h.pusher.calls) != 1 {
		t.Fatalf("new task not dispatched, pushes = %d", len(h.pusher.calls))
	}
}

func TestScanFailureAbortsCycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.tasks.err = errors.New("db locked")

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 0 {
		t.Fatalf("pushes = %d, want 0 on scan failure", len(h.pusher.calls))
	}
}

func TestRunSweepCollectsGarbageEntries(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if err := h.mem.SetTTL(ctx, "cron:last_notif:reminder:junk", "garbage", 24*time.Hour); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	h.eng.RunSweep(ctx)

	if _, ok, _ := h.mem.Get(ctx, "cron:last_notif:reminder:junk"); ok {
		t.Fatal("sweep left the unparseable entry in place")
	}
}

func TestIneligibleTasksFiltered(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := dueTask("c", "alice", 5*time.Minute, base)
	completed.Completed = true
	deleted := dueTask("d", "alice", 5*time.Minute, base)
	deleted.Deleted = true
	h := newHarness(t, []model.Task{completed, deleted}, nil)

	h.eng.RunReminderCycle(context.Background())
	if len(h.pusher.calls) != 0 {
		t.Fatalf("pushes = %d, want 0", len(h.pusher.calls))
	}
}
