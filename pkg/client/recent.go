package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// import the SQLite driver to register it with the database/sql package.
	_ "modernc.org/sqlite"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

// RecentStore - the client-local list of recently played games, kept in a
// small SQLite file. Convenience only: it feeds the "recent games" shortcut
// and remembers which symbol this client held per game, never the game
// state itself.
type RecentStore struct {
	db *sql.DB
}

func OpenRecentStore(path string) (*RecentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("can't open recent-games database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("can't connect to recent-games database: %w", err)
	}

	query := `CREATE TABLE IF NOT EXISTS saved_games (
		id          TEXT PRIMARY KEY,
		player1     TEXT NOT NULL,
		player2     TEXT NOT NULL,
		mark        TEXT NOT NULL,
		last_played INTEGER NOT NULL,
		win1        INTEGER NOT NULL,
		win2        INTEGER NOT NULL
	)`
	if _, err = db.Exec(query); err != nil {
		return nil, fmt.Errorf("can't create saved_games table: %w", err)
	}

	return &RecentStore{db: db}, nil
}

func (that *RecentStore) Close() error {
	if err := that.db.Close(); err != nil {
		return fmt.Errorf("can't close recent-games database: %w", err)
	}

	return nil
}

// Touch - records a game as just played, then prunes the list back to the
// cap. An existing row for the same game is replaced in place.
func (that *RecentStore) Touch(ctx context.Context, saved entity.SavedGame) error {
	query := `INSERT INTO saved_games (id, player1, player2, mark, last_played, win1, win2)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			player1 = excluded.player1,
			player2 = excluded.player2,
			mark = excluded.mark,
			last_played = excluded.last_played,
			win1 = excluded.win1,
			win2 = excluded.win2`

	_, err := that.db.ExecContext(ctx, query,
		saved.ID,
		saved.Players.Player1,
		saved.Players.Player2,
		saved.Mark,
		saved.LastPlayed,
		saved.WinCount.Player1,
		saved.WinCount.Player2,
	)
	if err != nil {
		return fmt.Errorf("can't save recent game: %w", err)
	}

	prune := `DELETE FROM saved_games WHERE id NOT IN (
		SELECT id FROM saved_games ORDER BY last_played DESC LIMIT ?
	)`
	if _, err = that.db.ExecContext(ctx, prune, entity.MaxSavedGames); err != nil {
		return fmt.Errorf("can't prune recent games: %w", err)
	}

	return nil
}

// List - the saved games, most recently played first.
func (that *RecentStore) List(ctx context.Context) ([]entity.SavedGame, error) {
	query := `SELECT id, player1, player2, mark, last_played, win1, win2
		FROM saved_games ORDER BY last_played DESC`

	rows, err := that.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("can't list recent games: %w", err)
	}
	defer rows.Close()

	var games []entity.SavedGame
	for rows.Next() {
		var saved entity.SavedGame
		if err = rows.Scan(
			&saved.ID,
			&saved.Players.Player1,
			&saved.Players.Player2,
			&saved.Mark,
			&saved.LastPlayed,
			&saved.WinCount.Player1,
			&saved.WinCount.Player2,
		); err != nil {
			return nil, fmt.Errorf("can't scan recent game: %w", err)
		}
		games = append(games, saved)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read recent games: %w", err)
	}

	return games, nil
}

// Mark - the symbol this client held the last time it played the game, or
// the empty string when the game is not remembered.
func (that *RecentStore) Mark(ctx context.Context, id string) (string, error) {
	var mark string
	err := that.db.QueryRowContext(ctx, `SELECT mark FROM saved_games WHERE id = ?`, id).Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("can't look up remembered mark: %w", err)
	}

	return mark, nil
}
