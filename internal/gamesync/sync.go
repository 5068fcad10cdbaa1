// Package gamesync keeps a client's view of the shared game converged with
// the record store. Local moves are validated against a replayed simulation,
// written back last-writer-wins, and truth is always re-derived from the
// store's next snapshot rather than from locally mutated state.
package gamesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/kapu/duochess/internal/domain"
	"github.com/kapu/duochess/internal/history"
	"github.com/kapu/duochess/internal/notify"
	"github.com/kapu/duochess/internal/obslog"
	"github.com/kapu/duochess/internal/record"
	"github.com/kapu/duochess/internal/turnauth"
	"github.com/kapu/duochess/pkg/gamedto"
)

type Synchronizer struct {
	store    record.Store
	hist     *history.Logger
	notifier notify.Notifier
	userID   string

	mu      sync.Mutex
	rec     *domain.GameRecord
	sim     simulation
	pending bool
}

func New(store record.Store, hist *history.Logger, notifier notify.Notifier, userID string) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Synchronizer{
		store:    store,
		hist:     hist,
		notifier: notifier,
		userID:   strings.TrimSpace(userID),
	}
}

func newRecord() *domain.GameRecord {
	return &domain.GameRecord{
		FEN:      nchess.NewGame().FEN(),
		MovesUCI: []string{},
		MovesSAN: []string{},
		Status:   domain.StatusNew,
	}
}

// LoadOrCreate fetches the most recently created record, creating a fresh one
// when the store is empty. A concurrent create race is tolerated: the store's
// latest-by-creation read is the tie-break and every client converges on
// whichever record the next read returns.
func (s *Synchronizer) LoadOrCreate(ctx context.Context) (*domain.GameRecord, error) {
	rec, err := s.store.Latest(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	if rec == nil {
		rec, err = s.store.Create(ctx, newRecord())
		if err != nil {
			return nil, wrapStore(err)
		}
		obslog.L().Info("sync_game_create", zap.String("game_id", rec.ID))
	}
	if err := s.Reconcile(rec); err != nil {
		return nil, err
	}
	return s.Record(), nil
}

// Reconcile rebuilds the local simulation from a store snapshot. The snapshot
// is ground truth: a locally applied move that lost a write race simply
// disappears here, it is never merged.
func (s *Synchronizer) Reconcile(rec *domain.GameRecord) error {
	if rec == nil {
		return ErrNoGame
	}
	sim, replayErr := rebuild(rec)
	if sim.game == nil {
		obslog.L().Error("sync_reconcile_failed", zap.String("game_id", rec.ID), zap.Error(replayErr))
		return replayErr
	}
	s.mu.Lock()
	s.rec = rec.Clone()
	s.sim = sim
	s.mu.Unlock()

	if replayErr != nil {
		obslog.L().Warn("sync_replay_fallback", zap.String("game_id", rec.ID), zap.Error(replayErr))
	}
	obslog.L().Debug("sync_reconcile",
		zap.String("game_id", rec.ID),
		zap.Int("moves", len(rec.MovesUCI)),
		zap.String("status", string(rec.Status)),
	)
	return nil
}

// Refresh re-fetches the latest record and reconciles against it.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	rec, err := s.store.Latest(ctx)
	if err != nil {
		return wrapStore(err)
	}
	if rec == nil {
		return nil
	}
	return s.Reconcile(rec)
}

// Run consumes the store's change feed until ctx is done. The feed is the
// single ordering authority: every notification, including the echo of this
// client's own writes, triggers a fresh fetch and reconcile. Notifications
// carry only the action and record id, so the record is always re-fetched.
func (s *Synchronizer) Run(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx)
	if err != nil {
		return wrapStore(err)
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := s.Refresh(ctx); err != nil {
				obslog.L().Warn("sync_refresh_error", zap.String("action", string(ev.Action)), zap.Error(err))
			}
		}
	}
}

// ProposeMove validates a move for this client's user against the local
// simulation, writes the resulting state back, and re-derives local state
// from the record the store accepted. At most one move may be in flight per
// client; concurrent attempts are rejected.
func (s *Synchronizer) ProposeMove(ctx context.Context, from, to, promotion string) (*domain.GameRecord, error) {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return nil, ErrNoGame
	}
	if s.pending {
		s.mu.Unlock()
		return nil, ErrMoveInFlight
	}
	rec := s.rec.Clone()
	s.mu.Unlock()

	if rec.Status.Terminal() {
		return nil, ErrGameOver
	}

	// Validate on a scratch replay so the working simulation stays untouched
	// until the store confirms the write.
	scratch, _ := rebuild(rec)
	if scratch.game == nil {
		return nil, ErrNoGame
	}
	if !turnauth.IsMyTurn(rec, scratch.sideToMove(), s.userID) {
		return nil, ErrNotYourTurn
	}

	pos := scratch.game.Position()
	move, uci, err := decodeMove(pos, from, to, promotion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	if err := scratch.game.Move(move, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, move)
	newFEN := scratch.game.FEN()
	newStatus := statusFrom(scratch.game)
	lastFrom, lastTo := move.S1().String(), move.S2().String()

	startFEN := rec.StartFEN
	movesUCI := append(append([]string(nil), rec.MovesUCI...), uci)
	movesSAN := append(append([]string(nil), rec.MovesSAN...), san)
	if scratch.fromFEN {
		// History fidelity was lost on reconcile; the log restarts from the
		// position we fell back to.
		startFEN = rec.FEN
		movesUCI = []string{uci}
		movesSAN = []string{san}
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, ErrMoveInFlight
	}
	s.pending = true
	s.mu.Unlock()

	updated, err := s.store.Update(ctx, rec.ID, func(r *domain.GameRecord) error {
		r.FEN = newFEN
		r.StartFEN = startFEN
		r.MovesUCI = movesUCI
		r.MovesSAN = movesSAN
		r.Status = newStatus
		r.LastFrom = lastFrom
		r.LastTo = lastTo
		return nil
	})

	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()

	if err != nil {
		// Nothing was committed locally; the next snapshot re-syncs us.
		return nil, wrapStore(err)
	}

	obslog.L().Info("sync_move",
		zap.String("game_id", updated.ID),
		zap.String("user_id", s.userID),
		zap.String("uci", uci),
		zap.String("status", string(updated.Status)),
	)

	// The record the store returned is the durable snapshot; adopt it.
	if rerr := s.Reconcile(updated); rerr != nil {
		obslog.L().Warn("sync_reconcile_after_move", zap.String("game_id", updated.ID), zap.Error(rerr))
	}

	if updated.Status.Terminal() && s.hist != nil {
		if _, herr := s.hist.LogConclusion(ctx, updated); herr != nil {
			obslog.L().Warn("sync_history_skipped", zap.String("game_id", updated.ID), zap.Error(herr))
		}
	}
	if opponent := turnauth.OpponentOf(updated, s.userID); opponent != "" {
		if nerr := s.notifier.SendTurnNotification(ctx, opponent); nerr != nil {
			obslog.L().Warn("sync_notify_error", zap.String("opponent", opponent), zap.Error(nerr))
		}
	}
	return updated, nil
}

// ResetGame returns the shared record to a fresh state: initial position,
// both seats open, status New. Calling it again before any move is a no-op in
// effect.
func (s *Synchronizer) ResetGame(ctx context.Context) (*domain.GameRecord, error) {
	s.mu.Lock()
	cur := s.rec
	s.mu.Unlock()

	fresh := newRecord()
	var (
		updated *domain.GameRecord
		err     error
	)
	if cur != nil {
		updated, err = s.store.Update(ctx, cur.ID, func(r *domain.GameRecord) error {
			r.FEN = fresh.FEN
			r.StartFEN = ""
			r.MovesUCI = []string{}
			r.MovesSAN = []string{}
			r.WhitePlayer = ""
			r.BlackPlayer = ""
			r.Status = domain.StatusNew
			r.LastFrom, r.LastTo = "", ""
			return nil
		})
	} else {
		updated, err = s.store.Create(ctx, fresh)
	}
	if err != nil {
		return nil, wrapStore(err)
	}
	obslog.L().Info("sync_reset", zap.String("game_id", updated.ID))
	if err := s.Reconcile(updated); err != nil {
		return nil, err
	}
	return s.Record(), nil
}

// JoinSeat claims an open seat for this client's user. A claimed seat is
// never overridden; concurrent claims lose with ErrSeatTaken.
func (s *Synchronizer) JoinSeat(ctx context.Context, color domain.Color) (*domain.GameRecord, error) {
	if s.userID == "" {
		return nil, fmt.Errorf("user identity required to claim a seat")
	}
	if color != domain.White && color != domain.Black {
		return nil, fmt.Errorf("invalid seat color %q", color)
	}
	s.mu.Lock()
	cur := s.rec
	s.mu.Unlock()
	if cur == nil {
		return nil, ErrNoGame
	}

	var (
		updated *domain.GameRecord
		err     error
	)
	for attempt := 0; attempt < 3; attempt++ {
		updated, err = s.store.UpdateChecked(ctx, cur.ID, func(r *domain.GameRecord) error {
			switch color {
			case domain.White:
				if r.WhitePlayer != "" {
					return ErrSeatTaken
				}
				r.WhitePlayer = s.userID
			case domain.Black:
				if r.BlackPlayer != "" {
					return ErrSeatTaken
				}
				r.BlackPlayer = s.userID
			}
			return nil
		})
		if !errors.Is(err, record.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrSeatTaken) {
			return nil, ErrSeatTaken
		}
		return nil, wrapStore(err)
	}
	obslog.L().Info("sync_join_seat",
		zap.String("game_id", updated.ID),
		zap.String("user_id", s.userID),
		zap.String("color", string(color)),
	)
	if err := s.Reconcile(updated); err != nil {
		return nil, err
	}
	return s.Record(), nil
}

// Record returns a copy of the last reconciled record, or nil before the
// first load.
func (s *Synchronizer) Record() *domain.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Clone()
}

// Snapshot renders the current state for a presentation layer.
func (s *Synchronizer) Snapshot() *gamedto.Snapshot {
	s.mu.Lock()
	rec := s.rec.Clone()
	sim := s.sim
	s.mu.Unlock()
	if rec == nil {
		return nil
	}
	side := sim.sideToMove()
	return &gamedto.Snapshot{
		GameID:      rec.ID,
		FEN:         rec.FEN,
		MovesUCI:    append([]string(nil), rec.MovesUCI...),
		MovesSAN:    append([]string(nil), rec.MovesSAN...),
		Status:      string(rec.Status),
		SideToMove:  string(side),
		WhitePlayer: rec.WhitePlayer,
		BlackPlayer: rec.BlackPlayer,
		LastFrom:    rec.LastFrom,
		LastTo:      rec.LastTo,
		MyColor:     string(turnauth.PlayerColor(rec, s.userID)),
		MyTurn:      turnauth.IsMyTurn(rec, side, s.userID),
		Spectator:   turnauth.IsSpectator(rec, s.userID),
		HistoryLost: sim.fromFEN,
	}
}

// ValidMoves returns legal destination squares for a piece on the given
// square. Meant for UI move hints; purely a read on the local simulation.
func (s *Synchronizer) ValidMoves(square string) []string {
	square = strings.ToLower(strings.TrimSpace(square))
	s.mu.Lock()
	sim := s.sim
	s.mu.Unlock()
	if sim.game == nil || square == "" {
		return nil
	}
	var out []string
	for _, mv := range sim.game.ValidMoves() {
		if mv.S1().String() == square {
			out = append(out, mv.S2().String())
		}
	}
	return out
}
