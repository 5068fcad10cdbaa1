package turnauth

import (
	"testing"

	"github.com/kapu/duochess/internal/domain"
)

func seatedRecord() *domain.GameRecord {
	return &domain.GameRecord{
		ID:          "g1",
		WhitePlayer: "alice",
		BlackPlayer: "bob",
		Status:      domain.StatusWhiteToMove,
	}
}

func TestPlayerColor(t *testing.T) {
	rec := seatedRecord()
	cases := []struct {
		user string
		want domain.Color
	}{
		{"alice", domain.White},
		{"bob", domain.Black},
		{"carol", domain.NoColor},
		{"", domain.NoColor},
		{"  alice  ", domain.White},
	}
	for _, c := range cases {
		if got := PlayerColor(rec, c.user); got != c.want {
			t.Fatalf("PlayerColor(%q) = %q, want %q", c.user, got, c.want)
		}
	}
	if got := PlayerColor(nil, "alice"); got != domain.NoColor {
		t.Fatalf("nil record must yield NoColor, got %q", got)
	}
}

func TestIsMyTurn(t *testing.T) {
	rec := seatedRecord()
	if !IsMyTurn(rec, domain.White, "alice") {
		t.Fatalf("alice should be on turn when white is to move")
	}
	if IsMyTurn(rec, domain.White, "bob") {
		t.Fatalf("bob must not be on turn when white is to move")
	}
	if IsMyTurn(rec, domain.Black, "alice") {
		t.Fatalf("alice must not be on turn when black is to move")
	}
	if IsMyTurn(rec, domain.NoColor, "alice") {
		t.Fatalf("no side to move means nobody is on turn")
	}
	if IsMyTurn(rec, domain.White, "carol") {
		t.Fatalf("seatless user is never on turn")
	}
}

func TestIsSpectator(t *testing.T) {
	rec := seatedRecord()
	if IsSpectator(rec, "alice") || IsSpectator(rec, "bob") {
		t.Fatalf("seated players are not spectators")
	}
	if !IsSpectator(rec, "carol") {
		t.Fatalf("seatless viewer of a running game is a spectator")
	}

	// Before the game starts anyone may still claim a seat.
	fresh := &domain.GameRecord{ID: "g2", Status: domain.StatusNew}
	if IsSpectator(fresh, "carol") {
		t.Fatalf("viewer of a new game is not a spectator")
	}
}

func TestOpponentOf(t *testing.T) {
	rec := seatedRecord()
	if got := OpponentOf(rec, "alice"); got != "bob" {
		t.Fatalf("OpponentOf(alice) = %q", got)
	}
	if got := OpponentOf(rec, "bob"); got != "alice" {
		t.Fatalf("OpponentOf(bob) = %q", got)
	}
	if got := OpponentOf(rec, "carol"); got != "" {
		t.Fatalf("OpponentOf(carol) = %q, want empty", got)
	}

	half := &domain.GameRecord{WhitePlayer: "alice", Status: domain.StatusNew}
	if got := OpponentOf(half, "alice"); got != "" {
		t.Fatalf("open opposing seat must yield empty, got %q", got)
	}
}
