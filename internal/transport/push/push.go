// Package push delivers realtime notification events to connected users.
//
// Delivery is fire-and-forget: the engine hands over an event and moves on;
// an offline user simply misses it (the next cycle, bounded by cooldowns,
// will try again).
package push

import "context"

// Pusher is the engine-facing contract.
type Pusher interface {
	SendToUser(ctx context.Context, userID, event string, payload any) error
}

// Nop discards all events. Used when no realtime channel is configured.
type Nop struct{}

func (Nop) SendToUser(context.Context, string, string, any) error { return nil }
