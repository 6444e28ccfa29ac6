// Package consolidate turns one user's qualifying tasks into a single
// notification: a headline message, a priority level, and a structured
// task-detail payload. Everything here is pure; time enters only as the
// precomputed lead of each entry.
package consolidate

import (
	"math"
	"sort"
	"time"

	"nudge/internal/model"
)

// Entry is one qualifying task with its urgency metric. Until is
// DueAt - now: positive for upcoming tasks, negative for overdue ones.
type Entry struct {
	Task  model.Task
	Until time.Duration
}

// NewEntry computes the urgency metric for a task at the given instant.
func NewEntry(t model.Task, now time.Time) Entry {
	return Entry{Task: t, Until: t.DueAt.Sub(now)}
}

// TaskDetail is the structured per-task payload shipped with a notification.
// Field names follow the wire format consumed by the web client.
type TaskDetail struct {
	TaskID        string    `json:"taskId"`
	TaskTitle     string    `json:"taskTitle"`
	DueDate       time.Time `json:"dueDate"`
	TodoListTitle string    `json:"todoListTitle"`

	// Reminder batches only.
	TimeRemainingMinutes int `json:"timeRemainingMinutes,omitempty"`
	// Overdue batches only.
	OverdueHours   int `json:"overdueHours,omitempty"`
	OverdueMinutes int `json:"overdueMinutes,omitempty"`
}

// Batch is the consolidated result for one user.
type Batch struct {
	Message  string
	Priority model.Priority
	Tasks    []TaskDetail
	Total    int
}

// maxListed caps how many task titles appear in a summary message.
const maxListed = 3

// Build sorts entries by urgency (soonest-due first; for overdue batches
// that means longest-overdue first), then produces either a single-task
// message or a summary naming at most three titles.
func Build(kind model.Kind, entries []Entry, loc Locale) Batch {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Until < sorted[j].Until })

	details := make([]TaskDetail, 0, len(sorted))
	for _, e := range sorted {
		d := TaskDetail{
			TaskID:        e.Task.ID,
			TaskTitle:     e.Task.Title,
			DueDate:       e.Task.DueAt,
			TodoListTitle: e.Task.ListTitle,
		}
		if kind == model.KindOverdue {
			elapsed := elapsedMinutes(e)
			d.OverdueHours = elapsed / 60
			d.OverdueMinutes = elapsed % 60
		} else {
			d.TimeRemainingMinutes = remainingMinutes(e)
		}
		details = append(details, d)
	}

	b := Batch{Tasks: details, Total: len(sorted)}
	if len(sorted) == 0 {
		b.Priority = model.PriorityNormal
		return b
	}

	if kind == model.KindOverdue {
		// An overdue batch is always critical, however stale.
		b.Priority = model.PriorityCritical
	} else {
		b.Priority = model.PriorityFor(remainingMinutes(sorted[0]))
	}

	if len(sorted) == 1 {
		e := sorted[0]
		if kind == model.KindOverdue {
			b.Message = loc.SingleOverdue(e.Task.Title, elapsedMinutes(e))
		} else {
			b.Message = loc.SingleReminder(e.Task.Title, remainingMinutes(e))
		}
		return b
	}

	listed := make([]Listed, 0, maxListed)
	for _, e := range sorted[:min(maxListed, len(sorted))] {
		if kind == model.KindOverdue {
			listed = append(listed, Listed{Title: e.Task.Title, Minutes: elapsedMinutes(e)})
		} else {
			listed = append(listed, Listed{Title: e.Task.Title, Minutes: remainingMinutes(e)})
		}
	}
	if kind == model.KindOverdue {
		b.Message = loc.MultiOverdue(len(sorted), listed)
	} else {
		b.Message = loc.MultiReminder(len(sorted), listed)
	}
	return b
}

// remainingMinutes rounds up so a task due in 90 seconds reads "2 minutes",
// never "1" with the deadline already closer than advertised.
func remainingMinutes(e Entry) int {
	return int(math.Ceil(e.Until.Minutes()))
}

// elapsedMinutes truncates: an hour-and-change overdue reads as 1h Nm.
func elapsedMinutes(e Entry) int {
	if e.Until >= 0 {
		return 0
	}
	return int((-e.Until) / time.Minute)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
