// Package notify delivers best-effort operator notifications. Failures are
// logged by callers and never abort signal processing.
package notify

import "context"

// Notifier sends a human-readable message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Noop discards every message.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, string) error { return nil }
