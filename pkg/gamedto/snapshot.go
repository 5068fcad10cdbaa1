package gamedto

// Snapshot is a self-contained view of the synchronized game for presentation
// layers. All fields are plain values; mutating a Snapshot never touches the
// synchronizer's state.
type Snapshot struct {
	GameID      string
	FEN         string
	MovesUCI    []string
	MovesSAN    []string
	Status      string
	SideToMove  string
	WhitePlayer string
	BlackPlayer string
	LastFrom    string
	LastTo      string

	// Viewer-relative fields.
	MyColor   string
	MyTurn    bool
	Spectator bool

	// HistoryLost flags that the move log could not be replayed and play
	// continues from the raw position.
	HistoryLost bool
}
