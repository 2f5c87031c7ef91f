package entity

// MaxSavedGames - how many recent games a client keeps locally.
const MaxSavedGames = 10

// SavedGame - a client-local record of a recently played game. Convenience
// only, never authoritative: it lets a returning client resume the symbol it
// held and render a shortcut list.
type SavedGame struct {
	ID         string   `json:"id"`
	Players    Players  `json:"players"`
	Mark       string   `json:"mark,omitempty"`
	LastPlayed int64    `json:"lastPlayed"`
	WinCount   WinCount `json:"winCount"`
}
