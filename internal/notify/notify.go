// Package notify delivers best-effort turn notifications to the opponent's
// push pipeline. Failures are reported to the caller for logging only; they
// must never block or reverse a committed move.
package notify

import "context"

type Notifier interface {
	SendTurnNotification(ctx context.Context, opponentID string) error
}

// Nop discards notifications. Used when no function URL is configured.
type Nop struct{}

func (Nop) SendTurnNotification(context.Context, string) error { return nil }
