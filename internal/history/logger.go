// Package history records one immutable audit entry per concluded game.
// The entry is a projection of the already-committed game record: a failed
// write is logged and reported but never rolls the game back.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/duochess/internal/domain"
	"github.com/kapu/duochess/internal/obslog"
)

type Logger struct {
	repo Repository
}

func NewLogger(repo Repository) *Logger {
	return &Logger{repo: repo}
}

// LogConclusion derives winner, loser and end status from a terminal record
// and persists the audit entry. Duplicate conclusions for the same game are
// treated as success.
func (l *Logger) LogConclusion(ctx context.Context, rec *domain.GameRecord) (*domain.HistoryRecord, error) {
	if l == nil || l.repo == nil || rec == nil {
		return nil, nil
	}
	if !rec.Status.Terminal() {
		return nil, fmt.Errorf("game %s is not concluded (status %s)", rec.ID, rec.Status)
	}

	hr := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		GameID:    rec.ID,
		EndStatus: endStatusFor(rec.Status),
		PGN:       buildPGN(rec),
		CreatedAt: time.Now(),
	}
	if rec.Status == domain.StatusCheckmate {
		// The side to move in the final position is the mated side.
		switch matedSide(rec.FEN) {
		case domain.White:
			hr.Winner, hr.Loser = rec.BlackPlayer, rec.WhitePlayer
		case domain.Black:
			hr.Winner, hr.Loser = rec.WhitePlayer, rec.BlackPlayer
		}
	}

	if err := l.repo.Insert(ctx, hr); err != nil {
		if errors.Is(err, ErrDuplicateConclusion) {
			return hr, nil
		}
		obslog.L().Error("history_write_error",
			zap.String("game_id", rec.ID),
			zap.String("end_status", string(hr.EndStatus)),
			zap.Error(err),
		)
		return nil, err
	}
	obslog.L().Info("history_write",
		zap.String("game_id", rec.ID),
		zap.String("end_status", string(hr.EndStatus)),
		zap.String("winner", hr.Winner),
	)
	return hr, nil
}

// Recent returns the newest audit entries, most recent first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	return l.repo.Recent(ctx, limit)
}

func endStatusFor(s domain.Status) domain.EndStatus {
	switch s {
	case domain.StatusCheckmate:
		return domain.EndCheckmate
	case domain.StatusStalemate:
		return domain.EndStalemate
	default:
		return domain.EndOther
	}
}

// matedSide reads the side-to-move field of a FEN string.
func matedSide(fen string) domain.Color {
	parts := strings.Fields(strings.TrimSpace(fen))
	if len(parts) < 2 {
		return domain.NoColor
	}
	switch parts[1] {
	case "w":
		return domain.White
	case "b":
		return domain.Black
	}
	return domain.NoColor
}

func buildPGN(rec *domain.GameRecord) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	date := rec.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"duochess\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.WhitePlayer)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.BlackPlayer)))
	if strings.TrimSpace(rec.StartFEN) != "" {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(rec.StartFEN)))
	}
	result := pgnResult(rec)
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(rec.MovesSAN[i])))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func pgnResult(rec *domain.GameRecord) string {
	switch rec.Status {
	case domain.StatusCheckmate:
		if matedSide(rec.FEN) == domain.White {
			return "0-1"
		}
		return "1-0"
	case domain.StatusStalemate, domain.StatusDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
