package gamesync

import (
	"errors"
	"fmt"
)

// Validation errors are resolved locally, before any store round-trip.
var (
	ErrNoGame       = errors.New("no game loaded")
	ErrGameOver     = errors.New("game already concluded")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrSeatTaken    = errors.New("seat already claimed")
	ErrMoveInFlight = errors.New("a move is already in flight")

	// ErrStoreUnavailable wraps network or backend failures. The operation
	// may simply be retried by the user; the next successful fetch or change
	// notification re-syncs the client.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
