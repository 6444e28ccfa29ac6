package consolidate

import (
	"strings"
	"testing"
	"time"

	"nudge/internal/model"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func entryDueIn(title string, d time.Duration) Entry {
	return NewEntry(model.Task{
		ID:        strings.ToLower(title),
		Title:     title,
		ListTitle: "قائمتي",
		DueAt:     testNow.Add(d),
	}, testNow)
}

func TestBuildSortsByUrgency(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		entryDueIn("b", 2*time.Minute),
		entryDueIn("c", 45*time.Minute),
		entryDueIn("a", 10*time.Minute),
	}
	b := Build(model.KindReminder, entries, Arabic{})

	got := make([]int, len(b.Tasks))
	for i, d := range b.Tasks {
		got[i] = d.TimeRemainingMinutes
	}
	want := []int{2, 10, 45}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBuildPriorityThresholds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		minutes int
		want    model.Priority
	}{
		{0, model.PriorityCritical},
		{3, model.PriorityUrgent},
		{5, model.PriorityUrgent},
		{12, model.PriorityHigh},
		{15, model.PriorityHigh},
		{30, model.PriorityNormal},
	}
	for _, tt := range tests {
		b := Build(model.KindReminder, []Entry{entryDueIn("x", time.Duration(tt.minutes)*time.Minute)}, Arabic{})
		if b.Priority != tt.want {
			t.Errorf("%d minutes: priority = %s, want %s", tt.minutes, b.Priority, tt.want)
		}
	}
}

func TestBuildPriorityFollowsMostUrgent(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		entryDueIn("far", 25*time.Minute),
		entryDueIn("near", 4*time.Minute),
	}
	b := Build(model.KindReminder, entries, Arabic{})
	if b.Priority != model.PriorityUrgent {
		t.Fatalf("priority = %s, want %s", b.Priority, model.PriorityUrgent)
	}
}

func TestBuildOverdueAlwaysCritical(t *testing.T) {
	t.Parallel()
	b := Build(model.KindOverdue, []Entry{entryDueIn("late", -36*time.Hour)}, Arabic{})
	if b.Priority != model.PriorityCritical {
		t.Fatalf("priority = %s, want %s", b.Priority, model.PriorityCritical)
	}
	d := b.Tasks[0]
	if d.OverdueHours != 36 || d.OverdueMinutes != 0 {
		t.Fatalf("overdue split = %dh %dm, want 36h 0m", d.OverdueHours, d.OverdueMinutes)
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()
	b := Build(model.KindReminder, nil, Arabic{})
	if b.Total != 0 || b.Message != "" || b.Priority != model.PriorityNormal {
		t.Fatalf("empty batch = %+v", b)
	}
}

func TestBuildSummaryListsAtMostThree(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		entryDueIn("t1", 1*time.Minute),
		entryDueIn("t2", 2*time.Minute),
		entryDueIn("t3", 3*time.Minute),
		entryDueIn("t4", 4*time.Minute),
		entryDueIn("t5", 5*time.Minute),
	}
	b := Build(model.KindReminder, entries, Arabic{})
	if b.Total != 5 {
		t.Fatalf("total = %d, want 5", b.Total)
	}
	for _, title := range []string{"t1", "t2", "t3"} {
		if !strings.Contains(b.Message, title) {
			t.Errorf("message missing %q: %s", title, b.Message)
		}
	}
	if strings.Contains(b.Message, "t4") {
		t.Errorf("message should list at most three titles: %s", b.Message)
	}
	if !strings.Contains(b.Message, "و 2 مهام أخرى") {
		t.Errorf("message missing remainder suffix: %s", b.Message)
	}
	// Details still carry every task even when the message truncates.
	if len(b.Tasks) != 5 {
		t.Fatalf("details = %d tasks, want 5", len(b.Tasks))
	}
}

func TestBuildExactlyThreeHasNoRemainder(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		entryDueIn("t1", 1*time.Minute),
		entryDueIn("t2", 2*time.Minute),
		entryDueIn("t3", 3*time.Minute),
	}
	b := Build(model.KindReminder, entries, Arabic{})
	if strings.Contains(b.Message, "أخرى") {
		t.Fatalf("no remainder suffix wanted at exactly three tasks: %s", b.Message)
	}
}

func TestRemainingMinutesRoundsUp(t *testing.T) {
	t.Parallel()
	b := Build(model.KindReminder, []Entry{entryDueIn("x", 90*time.Second)}, Arabic{})
	if b.Tasks[0].TimeRemainingMinutes != 2 {
		t.Fatalf("90s lead = %d minutes, want 2", b.Tasks[0].TimeRemainingMinutes)
	}
}

// Mirrors the reminder-cycle scenario end to end: four tasks due in 2, 8, 20
// and 90 minutes with a 30 minute horizon admitting the first three.
func TestReminderScenario(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		entryDueIn("مراجعة التقرير", 2*time.Minute),
		entryDueIn("اجتماع الفريق", 8*time.Minute),
		entryDueIn("إرسال البريد", 20*time.Minute),
	}
	b := Build(model.KindReminder, entries, Arabic{})

	if b.Total != 3 {
		t.Fatalf("total = %d, want 3", b.Total)
	}
	if b.Priority != model.PriorityUrgent {
		t.Fatalf("priority = %s, want %s", b.Priority, model.PriorityUrgent)
	}
	for _, frag := range []string{"2 دقيقة", "8 دقيقة", "مراجعة التقرير"} {
		if !strings.Contains(b.Message, frag) {
			t.Errorf("message missing %q: %s", frag, b.Message)
		}
	}
	if strings.Contains(b.Message, "أخرى") {
		t.Errorf("unexpected remainder suffix: %s", b.Message)
	}
}
