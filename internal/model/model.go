// Package model holds the read-only projections the notification engine
// consumes. The engine never mutates tasks; it only reads snapshots and
// reports notification-worthiness.
package model

import "time"

// Kind distinguishes the two notification pipelines.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindOverdue  Kind = "overdue"
)

// Priority is the urgency attached to a dispatched notification.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// PriorityFor maps remaining minutes until due to a priority level.
// Non-positive remaining time means the task is already due.
func PriorityFor(minutesRemaining int) Priority {
	switch {
	case minutesRemaining <= 0:
		return PriorityCritical
	case minutesRemaining <= 5:
		return PriorityUrgent
	case minutesRemaining <= 15:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Task is a snapshot of a to-do item joined with its owning list.
// ListTitle and UserID come from the join; a task whose list is deleted or
// missing never reaches the engine.
type Task struct {
	ID        string
	Title     string
	ListID    string
	ListTitle string
	UserID    string
	DueAt     time.Time
	Completed bool
	Deleted   bool
}

// Eligible reports whether the task may be notified about at all.
func (t Task) Eligible() bool {
	return !t.Completed && !t.Deleted
}

// User is the slice of the user record the engine needs for email dispatch.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// FullName joins the name parts; either may be empty.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
