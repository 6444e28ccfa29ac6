// Package eventbus carries task/list mutation signals from the CRUD layer
// into the engine's cache-invalidation hooks without a compile-time
// dependency between the two.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type MutationType string

const (
	TaskCreated MutationType = "task.created"
	TaskUpdated MutationType = "task.updated"
	TaskDeleted MutationType = "task.deleted"
	ListUpdated MutationType = "list.updated"
	ListDeleted MutationType = "list.deleted"
)

// Mutation is a lightweight, in-memory signal about a store change.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure). A dropped
//     event only costs one stale cache window, bounded by the cache TTL.
type Mutation struct {
	Type   MutationType
	Time   time.Time
	TaskID string
	// CompletedNow is set on TaskUpdated when the completed flag
	// transitioned to true in this mutation.
	CompletedNow bool
}

type Bus interface {
	Publish(m Mutation)
	Subscribe(buffer int) (ch <-chan Mutation, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Mutation{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Mutation
	seq  atomic.Uint64
}

func (b *memBus) Publish(m Mutation) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Mutation, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If a subscriber unsubscribes concurrently
		// and the channel closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- m:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Mutation, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Mutation, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
