package domain

import "time"

// Color identifies chess side.
type Color string

const (
	White   Color = "white"
	Black   Color = "black"
	NoColor Color = ""
)

// Other returns the opposing side, or NoColor for NoColor.
func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// Status represents the lifecycle state stored on a GameRecord.
type Status string

const (
	StatusNew         Status = "New"
	StatusWhiteToMove Status = "WhiteToMove"
	StatusBlackToMove Status = "BlackToMove"
	StatusInCheck     Status = "InCheck"
	StatusCheckmate   Status = "Checkmate"
	StatusStalemate   Status = "Stalemate"
	StatusDraw        Status = "Draw"
)

// Terminal reports whether no further moves are accepted in this status.
func (s Status) Terminal() bool {
	return s == StatusCheckmate || s == StatusStalemate || s == StatusDraw
}

// GameRecord is the shared, replicated state of the single game.
//
// MovesUCI is the authoritative move log: replaying it from StartFEN
// (standard initial position when empty) must reproduce FEN. FEN is a cached
// derivative kept for direct loading when the log cannot be replayed.
type GameRecord struct {
	ID          string    `json:"id"`
	FEN         string    `json:"fen"`
	StartFEN    string    `json:"start_fen,omitempty"`
	MovesUCI    []string  `json:"moves_uci"`
	MovesSAN    []string  `json:"moves_san"`
	WhitePlayer string    `json:"white_player"`
	BlackPlayer string    `json:"black_player"`
	Status      Status    `json:"status"`
	LastFrom    string    `json:"last_from,omitempty"`
	LastTo      string    `json:"last_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate.
func (g *GameRecord) Clone() *GameRecord {
	if g == nil {
		return nil
	}
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}

// EndStatus classifies a concluded game in the audit log.
type EndStatus string

const (
	EndCheckmate EndStatus = "Checkmate"
	EndStalemate EndStatus = "Stalemate"
	EndOther     EndStatus = "Other"
)

// HistoryRecord is an immutable audit entry, one per concluded game.
// Winner and Loser are empty for drawn games.
type HistoryRecord struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Winner    string    `json:"winner,omitempty"`
	Loser     string    `json:"loser,omitempty"`
	EndStatus EndStatus `json:"end_status"`
	PGN       string    `json:"pgn,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
