package gamesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/kapu/duochess/internal/domain"
	"github.com/kapu/duochess/internal/history"
	"github.com/kapu/duochess/internal/obslog"
	"github.com/kapu/duochess/internal/record"
)

// scholarsMate ends with white delivering Qxf7#.
var scholarsMate = []string{"e2e4", "e7e5", "f1c4", "f8c5", "d1h5", "g8f6", "h5f7"}

// loydStalemate is the shortest known stalemate, reached with black to move.
var loydStalemate = []string{
	"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "a5c7", "a6h6",
	"h2h4", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
	"b8c8", "f7g6", "c8e6",
}

type fixture struct {
	store record.Store
	repo  history.Repository
	white *Synchronizer
	black *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(obslog.SetForTest(zap.NewNop()))
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	store, err := record.NewRedisStore(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo := history.NewMemoryRepository()
	hist := history.NewLogger(repo)
	f := &fixture{
		store: store,
		repo:  repo,
		white: New(store, hist, nil, "alice"),
		black: New(store, hist, nil, "bob"),
	}
	ctx := context.Background()
	if _, err := f.white.LoadOrCreate(ctx); err != nil {
		t.Fatalf("white LoadOrCreate: %v", err)
	}
	if _, err := f.black.LoadOrCreate(ctx); err != nil {
		t.Fatalf("black LoadOrCreate: %v", err)
	}
	return f
}

func (f *fixture) joinSeats(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.white.JoinSeat(ctx, domain.White); err != nil {
		t.Fatalf("alice JoinSeat: %v", err)
	}
	if _, err := f.black.JoinSeat(ctx, domain.Black); err != nil {
		t.Fatalf("bob JoinSeat: %v", err)
	}
}

// playMoves alternates moves between the two clients, refreshing the mover
// beforehand the way the change feed would.
func (f *fixture) playMoves(t *testing.T, moves []string) *domain.GameRecord {
	t.Helper()
	ctx := context.Background()
	var last *domain.GameRecord
	for i, mv := range moves {
		mover := f.white
		if i%2 == 1 {
			mover = f.black
		}
		if err := mover.Refresh(ctx); err != nil {
			t.Fatalf("refresh before move %d (%s): %v", i, mv, err)
		}
		rec, err := mover.ProposeMove(ctx, mv[:2], mv[2:4], "")
		if err != nil {
			t.Fatalf("move %d (%s): %v", i, mv, err)
		}
		last = rec
	}
	return last
}

func TestLoadOrCreateConverges(t *testing.T) {
	f := newFixture(t)
	a, b := f.white.Record(), f.black.Record()
	if a == nil || b == nil {
		t.Fatalf("expected both clients to hold a record")
	}
	if a.ID != b.ID {
		t.Fatalf("clients diverged: %q vs %q", a.ID, b.ID)
	}
	if a.Status != domain.StatusNew {
		t.Fatalf("expected fresh game, got status %s", a.Status)
	}
}

func TestJoinSeatClaimAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.white.JoinSeat(ctx, domain.White)
	if err != nil {
		t.Fatalf("JoinSeat: %v", err)
	}
	if rec.WhitePlayer != "alice" {
		t.Fatalf("seat not recorded: %+v", rec)
	}

	// A claimed seat is never reassigned, not even to the same user.
	if _, err := f.black.JoinSeat(ctx, domain.White); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken for bob, got %v", err)
	}
	if _, err := f.white.JoinSeat(ctx, domain.White); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("expected ErrSeatTaken for repeat claim, got %v", err)
	}
	stored, err := f.store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if stored.WhitePlayer != "alice" {
		t.Fatalf("rejected claim must not touch the seat: %+v", stored)
	}

	if _, err := f.black.JoinSeat(ctx, domain.Black); err != nil {
		t.Fatalf("bob JoinSeat black: %v", err)
	}
}

func TestProposeMoveTurnOrder(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()

	if _, err := f.black.ProposeMove(ctx, "e7", "e5", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for black on move one, got %v", err)
	}

	rec, err := f.white.ProposeMove(ctx, "e2", "e4", "")
	if err != nil {
		t.Fatalf("white e2e4: %v", err)
	}
	if rec.Status != domain.StatusBlackToMove {
		t.Fatalf("expected BlackToMove, got %s", rec.Status)
	}
	if len(rec.MovesUCI) != 1 || rec.MovesUCI[0] != "e2e4" {
		t.Fatalf("unexpected move log: %v", rec.MovesUCI)
	}
	if rec.LastFrom != "e2" || rec.LastTo != "e4" {
		t.Fatalf("unexpected move highlight: %s-%s", rec.LastFrom, rec.LastTo)
	}

	// White again without waiting: rejected even after a refresh.
	if err := f.white.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.white.ProposeMove(ctx, "d2", "d4", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for white moving twice, got %v", err)
	}
}

func TestRunReconcilesOnChangeFeed(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.black.Run(ctx)
	}()
	// Let the feed subscription establish before the write it must observe.
	time.Sleep(100 * time.Millisecond)

	if _, err := f.white.ProposeMove(context.Background(), "e2", "e4", ""); err != nil {
		t.Fatalf("white e2e4: %v", err)
	}

	// Black converges through the feed alone, with no manual refresh.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := f.black.Record()
		if rec != nil && len(rec.MovesUCI) == 1 && rec.Status == domain.StatusBlackToMove {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("black did not converge via the change feed: %+v", rec)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on context cancel")
	}
}

func TestProposeMoveSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()

	f.white.mu.Lock()
	f.white.pending = true
	f.white.mu.Unlock()

	if _, err := f.white.ProposeMove(ctx, "e2", "e4", ""); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("expected ErrMoveInFlight while a move is outstanding, got %v", err)
	}

	f.white.mu.Lock()
	f.white.pending = false
	f.white.mu.Unlock()

	if _, err := f.white.ProposeMove(ctx, "e2", "e4", ""); err != nil {
		t.Fatalf("move after the outstanding write settled: %v", err)
	}
}

func TestProposeMoveIllegal(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()

	if _, err := f.white.ProposeMove(ctx, "e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	// The failed proposal must leave no trace in the shared record.
	rec, err := f.store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(rec.MovesUCI) != 0 || rec.Status != domain.StatusNew {
		t.Fatalf("rejected move leaked into record: %+v", rec)
	}
}

func TestSpectatorCannotMove(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()
	f.playMoves(t, []string{"e2e4"})

	carol := New(f.store, nil, nil, "carol")
	if _, err := carol.LoadOrCreate(ctx); err != nil {
		t.Fatalf("carol LoadOrCreate: %v", err)
	}
	snap := carol.Snapshot()
	if !snap.Spectator || snap.MyColor != "" || snap.MyTurn {
		t.Fatalf("expected spectator view, got %+v", snap)
	}
	if _, err := carol.ProposeMove(ctx, "e7", "e5", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn for spectator, got %v", err)
	}
}

func TestCheckmateConcludesAndLogsHistory(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()

	rec := f.playMoves(t, scholarsMate)
	if rec.Status != domain.StatusCheckmate {
		t.Fatalf("expected Checkmate, got %s", rec.Status)
	}
	if got := rec.MovesSAN[len(rec.MovesSAN)-1]; got != "Qxf7#" {
		t.Fatalf("unexpected mating SAN: %q", got)
	}

	// Terminal records accept no further moves from either seat.
	if err := f.black.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.black.ProposeMove(ctx, "e8", "e7", ""); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}

	entries, err := f.repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(entries))
	}
	hr := entries[0]
	if hr.GameID != rec.ID || hr.EndStatus != domain.EndCheckmate {
		t.Fatalf("unexpected history entry: %+v", hr)
	}
	if hr.Winner != "alice" || hr.Loser != "bob" {
		t.Fatalf("unexpected result attribution: winner=%q loser=%q", hr.Winner, hr.Loser)
	}
	if hr.PGN == "" {
		t.Fatalf("expected PGN in history entry")
	}
}

func TestStalemateConcludesWithoutWinner(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()

	rec := f.playMoves(t, loydStalemate)
	if rec.Status != domain.StatusStalemate {
		t.Fatalf("expected Stalemate, got %s", rec.Status)
	}

	entries, err := f.repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if entries[0].EndStatus != domain.EndStalemate {
		t.Fatalf("unexpected end status: %s", entries[0].EndStatus)
	}
	if entries[0].Winner != "" || entries[0].Loser != "" {
		t.Fatalf("stalemate must not name winner/loser: %+v", entries[0])
	}
}

func TestReplayDeterminism(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()
	played := f.playMoves(t, []string{"e2e4", "e7e5", "g1f3", "b8c6"})

	late := New(f.store, nil, nil, "carol")
	if _, err := late.LoadOrCreate(ctx); err != nil {
		t.Fatalf("late LoadOrCreate: %v", err)
	}
	snap := late.Snapshot()
	if snap.FEN != played.FEN {
		t.Fatalf("replayed position diverged:\n got %s\nwant %s", snap.FEN, played.FEN)
	}
	if snap.HistoryLost {
		t.Fatalf("clean log must not report lost history")
	}
	if snap.SideToMove != string(domain.White) {
		t.Fatalf("expected white to move, got %s", snap.SideToMove)
	}
}

func TestCorruptLogFallsBackToPosition(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()
	played := f.playMoves(t, []string{"e2e4", "e7e5"})

	if _, err := f.store.Update(ctx, played.ID, func(r *domain.GameRecord) error {
		r.MovesUCI = []string{"zzzz"}
		return nil
	}); err != nil {
		t.Fatalf("corrupt update: %v", err)
	}

	if err := f.white.Refresh(ctx); err != nil {
		t.Fatalf("refresh over corrupt log: %v", err)
	}
	snap := f.white.Snapshot()
	if !snap.HistoryLost {
		t.Fatalf("expected HistoryLost after replay failure")
	}
	if snap.FEN != played.FEN {
		t.Fatalf("fallback must keep the raw position: %s", snap.FEN)
	}

	// The next move restarts the log from the recovered position.
	rec, err := f.white.ProposeMove(ctx, "g1", "f3", "")
	if err != nil {
		t.Fatalf("move after fallback: %v", err)
	}
	if rec.StartFEN != played.FEN {
		t.Fatalf("expected StartFEN anchored at fallback position, got %q", rec.StartFEN)
	}
	if len(rec.MovesUCI) != 1 || rec.MovesUCI[0] != "g1f3" {
		t.Fatalf("expected restarted log, got %v", rec.MovesUCI)
	}

	// A third client replays the restarted log without loss.
	late := New(f.store, nil, nil, "carol")
	if _, err := late.LoadOrCreate(ctx); err != nil {
		t.Fatalf("late LoadOrCreate: %v", err)
	}
	if late.Snapshot().HistoryLost {
		t.Fatalf("restarted log should replay cleanly")
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fen := "4k3/P7/8/8/8/8/8/4K3 w - - 0 1"
	created, err := f.store.Create(ctx, &domain.GameRecord{
		FEN:         fen,
		StartFEN:    fen,
		MovesUCI:    []string{},
		MovesSAN:    []string{},
		WhitePlayer: "alice",
		BlackPlayer: "bob",
		Status:      domain.StatusWhiteToMove,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.white.Reconcile(created); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	rec, err := f.white.ProposeMove(ctx, "a7", "a8", "")
	if err != nil {
		t.Fatalf("promotion move: %v", err)
	}
	if rec.MovesUCI[len(rec.MovesUCI)-1] != "a7a8q" {
		t.Fatalf("expected queen promotion, got %v", rec.MovesUCI)
	}
	if rec.Status != domain.StatusInCheck {
		t.Fatalf("expected InCheck after promotion, got %s", rec.Status)
	}
}

func TestResetGameClearsSeatsAndLog(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	ctx := context.Background()
	concluded := f.playMoves(t, scholarsMate)

	rec, err := f.black.ResetGame(ctx)
	if err != nil {
		t.Fatalf("ResetGame: %v", err)
	}
	if rec.ID != concluded.ID {
		t.Fatalf("reset must reuse the record, got new id %q", rec.ID)
	}
	if rec.Status != domain.StatusNew {
		t.Fatalf("expected StatusNew, got %s", rec.Status)
	}
	if rec.WhitePlayer != "" || rec.BlackPlayer != "" {
		t.Fatalf("seats not cleared: %+v", rec)
	}
	if len(rec.MovesUCI) != 0 || rec.StartFEN != "" || rec.LastFrom != "" {
		t.Fatalf("log not cleared: %+v", rec)
	}

	// The fresh game is playable again once seats are re-claimed.
	if err := f.white.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	f.joinSeats(t)
	if _, err := f.white.ProposeMove(ctx, "d2", "d4", ""); err != nil {
		t.Fatalf("move after reset: %v", err)
	}
}

func TestValidMovesHints(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)

	moves := f.white.ValidMoves("e2")
	if len(moves) != 2 {
		t.Fatalf("expected pawn single and double push, got %v", moves)
	}
	if f.white.ValidMoves("e5") != nil {
		t.Fatalf("expected no moves from an empty square")
	}
}

func TestSnapshotViewerFields(t *testing.T) {
	f := newFixture(t)
	f.joinSeats(t)
	f.playMoves(t, []string{"e2e4"})

	ctx := context.Background()
	if err := f.black.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := f.black.Snapshot()
	if snap.MyColor != string(domain.Black) || !snap.MyTurn || snap.Spectator {
		t.Fatalf("unexpected viewer fields: %+v", snap)
	}
	wsnap := f.white.Snapshot()
	if wsnap.MyTurn {
		t.Fatalf("white must not be on turn: %+v", wsnap)
	}
}
