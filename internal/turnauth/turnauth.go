// Package turnauth derives who may act on a game record. It holds no state:
// every function is a pure read over the record's seat fields.
package turnauth

import (
	"strings"

	"github.com/kapu/duochess/internal/domain"
)

// PlayerColor returns the seat held by userID, or NoColor.
func PlayerColor(rec *domain.GameRecord, userID string) domain.Color {
	if rec == nil {
		return domain.NoColor
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.NoColor
	}
	if rec.WhitePlayer == userID {
		return domain.White
	}
	if rec.BlackPlayer == userID {
		return domain.Black
	}
	return domain.NoColor
}

// IsMyTurn reports whether userID holds the seat matching the simulation's
// side to move.
func IsMyTurn(rec *domain.GameRecord, sideToMove domain.Color, userID string) bool {
	c := PlayerColor(rec, userID)
	return c != domain.NoColor && c == sideToMove
}

// IsSpectator reports whether userID is watching a game it cannot act on.
// Viewers of a not-yet-started game are not spectators: they may still claim
// a seat.
func IsSpectator(rec *domain.GameRecord, userID string) bool {
	if rec == nil {
		return false
	}
	if PlayerColor(rec, userID) != domain.NoColor {
		return false
	}
	return rec.Status != domain.StatusNew
}

// OpponentOf returns the other seat's occupant, or "" when userID holds
// neither seat or the other seat is open.
func OpponentOf(rec *domain.GameRecord, userID string) string {
	switch PlayerColor(rec, userID).Other() {
	case domain.White:
		return rec.WhitePlayer
	case domain.Black:
		return rec.BlackPlayer
	default:
		return ""
	}
}
