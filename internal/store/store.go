// Package store exposes the task/user read surface the engine scans.
// Tasks are owned by the surrounding CRUD application; the engine only
// reads snapshots. The SQLite implementation here is the deployment
// backend wired by cmd/nudged and the integration tests.
package store

import (
	"context"
	"errors"
	"time"

	"nudge/internal/model"
)

var ErrNotFound = errors.New("not found")

// TaskStore answers the two time-window queries. Both return only eligible
// tasks (not completed, not deleted) joined with a live owning list; a task
// whose list is deleted or missing is excluded, never an error.
type TaskStore interface {
	// FindDueSoon returns tasks with a due timestamp in [now, now+horizon].
	FindDueSoon(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Task, error)
	// FindOverdue returns tasks with a due timestamp strictly before now.
	FindOverdue(ctx context.Context, now time.Time) ([]model.Task, error)
}

// UserStore resolves the owning user for email dispatch.
type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Config configures the SQLite backend.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}
