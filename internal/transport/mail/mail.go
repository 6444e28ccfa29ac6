// Package mail sends the email half of a notification. Sends are rate
// limited (SMTP is the slow transport) and guarded by a circuit breaker so
// a dead relay fails fast instead of stalling dispatch cycles.
package mail

import "context"

// Mailer is the engine-facing contract. Failures are expected and absorbed
// by the caller: an email that doesn't go out is logged, never propagated.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Nop discards all mail. Used when email delivery is disabled.
type Nop struct{}

func (Nop) Send(context.Context, string, string, string, string) error { return nil }
