package gamesync

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/duochess/internal/domain"
)

// simulation is the client-local rules state. It is rebuilt as a fresh value
// on every reconcile and replaced wholesale, never mutated in place.
type simulation struct {
	game *nchess.Game

	// fromFEN marks that the move log could not be replayed and the game was
	// loaded from the raw position instead.
	fromFEN bool
}

func (s simulation) sideToMove() domain.Color {
	if s.game == nil {
		return domain.NoColor
	}
	return colorFrom(s.game.Position().Turn())
}

// rebuild reconstructs the simulation from a record. Replaying the move log
// is preferred; a record whose log cannot be replayed is loaded from its raw
// position, sacrificing history fidelity but keeping the game playable. A
// non-nil error alongside a usable simulation reports that recovered replay
// failure; a nil game means the record is unusable.
func rebuild(rec *domain.GameRecord) (simulation, error) {
	game, replayErr := replayLog(rec.StartFEN, rec.MovesUCI)
	if replayErr == nil {
		return simulation{game: game}, nil
	}
	if strings.TrimSpace(rec.FEN) != "" {
		if fenOpt, err := nchess.FEN(rec.FEN); err == nil {
			return simulation{game: nchess.NewGame(fenOpt), fromFEN: true}, replayErr
		}
	}
	return simulation{}, fmt.Errorf("record %s unusable: %w", rec.ID, replayErr)
}

// replayLog applies UCI moves in order from startFEN, or from the standard
// initial position when startFEN is empty.
func replayLog(startFEN string, moves []string) (*nchess.Game, error) {
	var game *nchess.Game
	if strings.TrimSpace(startFEN) != "" {
		fenOpt, err := nchess.FEN(startFEN)
		if err != nil {
			return nil, fmt.Errorf("load start position: %w", err)
		}
		game = nchess.NewGame(fenOpt)
	} else {
		game = nchess.NewGame()
	}
	notation := nchess.UCINotation{}
	for _, mv := range moves {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}

// decodeMove resolves a from/to pair (plus optional promotion piece) against
// a position. Promotion defaults to queen when the move requires one and none
// was given.
func decodeMove(pos *nchess.Position, from, to, promotion string) (*nchess.Move, string, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if from == "" || to == "" {
		return nil, "", fmt.Errorf("missing square")
	}
	notation := nchess.UCINotation{}
	uci := from + to
	if move, err := notation.Decode(pos, uci); err == nil {
		return move, uci, nil
	}
	if promotion == "" {
		promotion = "q"
	}
	uci = from + to + promotion
	move, err := notation.Decode(pos, uci)
	if err != nil {
		return nil, "", err
	}
	return move, uci, nil
}

// statusFrom derives the stored status from a post-move game. Terminal
// outcomes win over check, check over the plain side-to-move statuses. Check
// is read off the applied move's engine tags, not its notation.
func statusFrom(game *nchess.Game) domain.Status {
	if game.Outcome() != nchess.NoOutcome {
		switch game.Method() {
		case nchess.Checkmate:
			return domain.StatusCheckmate
		case nchess.Stalemate:
			return domain.StatusStalemate
		default:
			return domain.StatusDraw
		}
	}
	moves := game.Moves()
	if n := len(moves); n > 0 && moves[n-1].HasTag(nchess.Check) {
		return domain.StatusInCheck
	}
	if game.Position().Turn() == nchess.White {
		return domain.StatusWhiteToMove
	}
	return domain.StatusBlackToMove
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}
