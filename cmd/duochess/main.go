package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appcfg "github.com/kapu/duochess/internal/config"
	"github.com/kapu/duochess/internal/domain"
	"github.com/kapu/duochess/internal/gamesync"
	"github.com/kapu/duochess/internal/history"
	"github.com/kapu/duochess/internal/notify"
	"github.com/kapu/duochess/internal/obslog"
	"github.com/kapu/duochess/internal/record"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer obslog.Sync()

	store, err := record.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("record store init error: %v", err)
	}
	defer store.Close()

	var repo history.Repository
	if cfg.DatabaseURL != "" {
		repo, err = history.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("history repo init error: %v", err)
		}
	} else {
		obslog.L().Warn("history_memory_fallback")
		repo = history.NewMemoryRepository()
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyFunctionURL != "" {
		fc, err := notify.NewFunctionClient(cfg.NotifyFunctionURL)
		if err != nil {
			log.Fatalf("notifier init error: %v", err)
		}
		notifier = fc
	}

	hist := history.NewLogger(repo)
	syncer := gamesync.New(store, hist, notifier, cfg.UserID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := syncer.LoadOrCreate(ctx); err != nil {
		log.Fatalf("load game error: %v", err)
	}

	go func() {
		if err := syncer.Run(ctx); err != nil && ctx.Err() == nil {
			obslog.L().Error("sync_loop_exit", zap.Error(err))
		}
	}()

	fmt.Println("duochess — shared game ready. Type 'help' for commands.")
	printSnapshot(syncer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		commandLoop(ctx, syncer, hist, cfg.HistoryLimit)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}
	cancel()
}

func commandLoop(ctx context.Context, syncer *gamesync.Synchronizer, hist *history.Logger, historyLimit int) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		parts := strings.Fields(strings.TrimSpace(sc.Text()))
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println(helpText())
		case "status":
			if err := syncer.Refresh(ctx); err != nil {
				fmt.Println("refresh failed:", err)
			}
			printSnapshot(syncer)
		case "join":
			handleJoin(ctx, syncer, args)
		case "move":
			handleMove(ctx, syncer, args)
		case "hints":
			handleHints(syncer, args)
		case "reset":
			if _, err := syncer.ResetGame(ctx); err != nil {
				fmt.Println("reset failed:", err)
				continue
			}
			fmt.Println("game reset")
			printSnapshot(syncer)
		case "history":
			handleHistory(ctx, hist, historyLimit, args)
		case "quit", "exit":
			return
		default:
			fmt.Println("Unknown command. Try 'help'.")
		}
	}
}

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"  join white|black     claim a seat",
		"  move e2e4 [promo]    play a move (promo: q r b n)",
		"  hints e2             legal destinations from a square",
		"  status               refresh and print the board state",
		"  reset                start a fresh game",
		"  history [n]          recent concluded games",
		"  quit                 exit",
	}, "\n")
}

func handleJoin(ctx context.Context, syncer *gamesync.Synchronizer, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: join white|black")
		return
	}
	var color domain.Color
	switch strings.ToLower(args[0]) {
	case "white", "w":
		color = domain.White
	case "black", "b":
		color = domain.Black
	default:
		fmt.Println("Usage: join white|black")
		return
	}
	if _, err := syncer.JoinSeat(ctx, color); err != nil {
		fmt.Println("join failed:", err)
		return
	}
	fmt.Printf("joined as %s\n", color)
}

func handleMove(ctx context.Context, syncer *gamesync.Synchronizer, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: move e2e4 [promo]")
		return
	}
	from, to, promo, err := parseMoveArgs(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	rec, err := syncer.ProposeMove(ctx, from, to, promo)
	if err != nil {
		fmt.Println("move rejected:", err)
		return
	}
	if n := len(rec.MovesSAN); n > 0 {
		fmt.Printf("played %s\n", rec.MovesSAN[n-1])
	}
	printSnapshot(syncer)
}

// parseMoveArgs accepts "e2e4", "e2 e4" and an optional trailing promotion
// piece letter.
func parseMoveArgs(args []string) (from, to, promo string, err error) {
	first := strings.ToLower(args[0])
	switch {
	case len(first) >= 4:
		from, to = first[:2], first[2:4]
		if len(first) > 4 {
			promo = first[4:]
		} else if len(args) >= 2 {
			promo = strings.ToLower(args[1])
		}
	case len(args) >= 2:
		from = first
		to = strings.ToLower(args[1])
		if len(args) >= 3 {
			promo = strings.ToLower(args[2])
		}
	default:
		return "", "", "", fmt.Errorf("cannot parse move %q", strings.Join(args, " "))
	}
	return from, to, promo, nil
}

func handleHints(syncer *gamesync.Synchronizer, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: hints e2")
		return
	}
	moves := syncer.ValidMoves(strings.ToLower(args[0]))
	if len(moves) == 0 {
		fmt.Println("no legal moves from", args[0])
		return
	}
	fmt.Println(strings.Join(moves, " "))
}

func handleHistory(ctx context.Context, hist *history.Logger, limit int, args []string) {
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := hist.Recent(ctx, limit)
	if err != nil {
		fmt.Println("history lookup failed:", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("no concluded games yet")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %s", r.CreatedAt.Format("2006-01-02 15:04"), r.EndStatus)
		if r.Winner != "" {
			line += fmt.Sprintf("  winner=%s loser=%s", r.Winner, r.Loser)
		}
		fmt.Println(line)
	}
}

func printSnapshot(syncer *gamesync.Synchronizer) {
	snap := syncer.Snapshot()
	if snap == nil {
		fmt.Println("no game loaded")
		return
	}
	fmt.Printf("game %s  status=%s  to-move=%s\n", shortID(snap.GameID), snap.Status, snap.SideToMove)
	fmt.Printf("  fen: %s\n", snap.FEN)
	fmt.Printf("  white=%s black=%s\n", seatLabel(snap.WhitePlayer), seatLabel(snap.BlackPlayer))
	switch {
	case snap.Spectator:
		fmt.Println("  you are spectating")
	case snap.MyTurn:
		fmt.Printf("  your move (%s)\n", snap.MyColor)
	case snap.MyColor != "":
		fmt.Printf("  waiting for opponent (you are %s)\n", snap.MyColor)
	}
	if snap.HistoryLost {
		fmt.Println("  note: move history was unreadable; play continues from the raw position")
	}
	if len(snap.MovesSAN) > 0 {
		fmt.Printf("  moves: %s\n", strings.Join(snap.MovesSAN, " "))
	}
}

func seatLabel(id string) string {
	if strings.TrimSpace(id) == "" {
		return "(open)"
	}
	return id
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
