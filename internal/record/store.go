package record

import (
	"context"
	"errors"

	"github.com/kapu/duochess/internal/domain"
)

// Action is the kind of change a store notification carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Event is a change notification. It names the changed record and the action
// only; subscribers must re-fetch the record. Delivery is at-least-once.
type Event struct {
	Action Action `json:"action"`
	ID     string `json:"id"`
}

var (
	// ErrNotFound is returned when an update targets a missing record.
	ErrNotFound = errors.New("game record not found")
	// ErrConflict is returned by checked updates when a concurrent write
	// invalidated the read-modify-write cycle.
	ErrConflict = errors.New("game record modified concurrently")
)

// Store is the durable home of GameRecords.
//
// Plain Update is last-writer-wins: the apply callback mutates a freshly read
// copy and the result is written back unconditionally. UpdateChecked runs the
// same cycle but fails with ErrConflict if the record changed underneath it;
// it exists for seat claims, which must never silently reassign a seat.
type Store interface {
	// Latest returns the most recently created record, or nil when none exists.
	Latest(ctx context.Context) (*domain.GameRecord, error)
	Get(ctx context.Context, id string) (*domain.GameRecord, error)
	Create(ctx context.Context, rec *domain.GameRecord) (*domain.GameRecord, error)
	Update(ctx context.Context, id string, apply func(*domain.GameRecord) error) (*domain.GameRecord, error)
	UpdateChecked(ctx context.Context, id string, apply func(*domain.GameRecord) error) (*domain.GameRecord, error)
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Subscription is an open change feed. Close releases it; Events is closed
// once the feed shuts down.
type Subscription struct {
	events chan Event
	close  func() error
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}
