package entity

const (
	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""

	DefaultPlayer1 = "Player 1"
	DefaultPlayer2 = "Player 2"
)

// WinCombos - the 8 winning triples of the 3x3 board.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Players - display names for the two sides; player1 always plays X.
type Players struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

// WinCount - cumulative win tally per side. Survives resets, never cleared
// for the lifetime of the game ID.
type WinCount struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

// GameState - the authoritative state of one game. Owned by the store and
// replaced wholesale on every accepted write, never patched in place.
type GameState struct {
	ID            string    `json:"id,omitempty"`
	Board         [9]string `json:"board"`
	MoveHistory   []int     `json:"moveHistory"`
	CurrentPlayer string    `json:"currentPlayer"`
	PlayerTurn    string    `json:"playerTurn"`
	Winner        string    `json:"winner,omitempty"`
	Players       Players   `json:"players"`
	PlayerCount   int       `json:"playerCount"`
	WinCount      *WinCount `json:"winCount,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`

	// Revision grows by one on every accepted write. Watchers compare
	// revisions instead of serialized bytes, so a write that restores a
	// previously seen board is still republished.
	Revision int64 `json:"revision"`
}

// NewGameState - a fresh game: empty board, X to open, zero tallies,
// no sides claimed yet.
func NewGameState(id string) *GameState {
	return &GameState{
		ID:            id,
		MoveHistory:   []int{},
		CurrentPlayer: PlayerX,
		PlayerTurn:    PlayerX,
		WinCount:      &WinCount{},
	}
}

func (that *GameState) IsFinished() bool {
	return that.Winner != EmptyCell
}

// OccupiedCells - number of non-empty cells; always equals len(MoveHistory).
func (that *GameState) OccupiedCells() int {
	count := 0
	for _, cell := range that.Board {
		if cell != EmptyCell {
			count++
		}
	}

	return count
}

// EnsureWinCount - back-fills the tally for records written without one.
func (that *GameState) EnsureWinCount() {
	if that.WinCount == nil {
		that.WinCount = &WinCount{}
	}
}

// OpponentMark - the other side's symbol.
func OpponentMark(mark string) string {
	if mark == PlayerX {
		return PlayerO
	}

	return PlayerX
}

// IsValidMark - reports whether mark names one of the two sides.
func IsValidMark(mark string) bool {
	return mark == PlayerX || mark == PlayerO
}
