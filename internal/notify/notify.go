// Package notify delivers notification-job payloads to an external
// transport. The executor's notification handler is its only consumer.
package notify

import "context"

// Sender delivers one message. Implementations must be safe for
// concurrent use; job handlers run on the scheduler's worker pool.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// Nop discards every message. Used when no transport is configured so
// notification jobs still complete successfully.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }
