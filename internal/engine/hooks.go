package engine

import (
	"context"

	"nudge/internal/eventbus"
	"nudge/pkg/logx"
)

// Mutation hooks. The CRUD layer must call these synchronously before its
// mutating call returns, so the next scan cannot serve a stale window.
// They are also reachable asynchronously through the event bus for callers
// that prefer decoupling; the bus path trades the synchronous guarantee
// for isolation and is bounded by the cache TTL either way.

func (e *Engine) OnTaskCreated(ctx context.Context) {
	e.invalidateQueryCaches(ctx)
}

// OnTaskUpdated invalidates the query caches; when the update completed the
// task, both notification kinds are marked sent so a stale reminder cannot
// fire for a task the user just finished.
func (e *Engine) OnTaskUpdated(ctx context.Context, taskID string, completedNow bool) {
	e.invalidateQueryCaches(ctx)
	if completedNow && taskID != "" {
		e.dedup.MarkBoth(ctx, taskID)
	}
}

func (e *Engine) OnTaskDeleted(ctx context.Context) {
	e.invalidateQueryCaches(ctx)
}

// OnListChanged covers list-level mutations (rename, delete); both query
// kinds join against lists, so both caches go.
func (e *Engine) OnListChanged(ctx context.Context) {
	e.invalidateQueryCaches(ctx)
}

func (e *Engine) invalidateQueryCaches(ctx context.Context) {
	pol := e.policy()
	// Wholesale by prefix, no targeted invalidation: correctness over hit
	// rate. Errors are already logged by the cache; a failed invalidation
	// is bounded by the entry TTL.
	_, _ = e.result.Invalidate(ctx, pol.DueKeyPrefix)
	_, _ = e.result.Invalidate(ctx, pol.OverdueKeyPrefix)
}

func (e *Engine) consumeMutations(ctx context.Context, ch <-chan eventbus.Mutation) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			e.log.Debug("mutation received",
				logx.String("type", string(m.Type)), logx.String("task", m.TaskID))
			switch m.Type {
			case eventbus.TaskCreated:
				e.OnTaskCreated(ctx)
			case eventbus.TaskUpdated:
				e.OnTaskUpdated(ctx, m.TaskID, m.CompletedNow)
			case eventbus.TaskDeleted:
				e.OnTaskDeleted(ctx)
			case eventbus.ListUpdated, eventbus.ListDeleted:
				e.OnListChanged(ctx)
			}
		}
	}
}
