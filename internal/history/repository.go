package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/duochess/internal/domain"
)

// ErrDuplicateConclusion marks a second conclusion write for the same game.
var ErrDuplicateConclusion = errors.New("game conclusion already recorded")

// Repository stores concluded-game audit entries. Entries are immutable:
// Insert is the only write.
type Repository interface {
	Insert(ctx context.Context, rec *domain.HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error)
}

type pgRepository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgRepository{db: db}, nil
}

func (r *pgRepository) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec == nil {
		return fmt.Errorf("nil history record")
	}
	const q = `
		INSERT INTO game_history (
			id, game_id, winner, loser, end_status, pgn, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id) DO NOTHING
		RETURNING id`

	var id sql.NullString
	err := r.db.QueryRowContext(ctx, q,
		rec.ID, rec.GameID, rec.Winner, rec.Loser, string(rec.EndStatus), rec.PGN, rec.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateConclusion
	}
	if err != nil {
		return fmt.Errorf("insert game history: %w", err)
	}
	return nil
}

func (r *pgRepository) Recent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, game_id, winner, loser, end_status, pgn, created_at
		FROM game_history
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select game history: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.HistoryRecord, 0, limit)
	for rows.Next() {
		var rec domain.HistoryRecord
		var endStatus string
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Winner, &rec.Loser, &endStatus, &rec.PGN, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game history: %w", err)
		}
		rec.EndStatus = domain.EndStatus(endStatus)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
