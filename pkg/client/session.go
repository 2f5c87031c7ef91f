package client

import (
	"context"
	"fmt"
	"time"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

// JoinGame - the client half of the session protocol. A symbol remembered
// in the recent store is offered as the preferred mark, the server's claim
// decides, and the granted session is recorded locally so the next join of
// the same game resumes the same side.
func (that *Client) JoinGame(ctx context.Context, store *RecentStore, id string, req JoinRequest) (*Session, error) {
	if store != nil && req.PreferredMark == "" {
		mark, err := store.Mark(ctx, id)
		if err != nil {
			// local memory is a convenience; joining must not fail on it
			mark = ""
		}
		req.PreferredMark = mark
	}

	session, err := that.Join(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("failed to join game: %w", err)
	}

	that.remember(ctx, store, id, session.Game, session.Mark)

	return session, nil
}

// CreateGame - mints a game, joins it as the creator (always X) and records
// it locally.
func (that *Client) CreateGame(ctx context.Context, store *RecentStore, player1, player2 string) (*Session, error) {
	id, err := that.NewGame(ctx, player1, player2)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	game, err := that.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load created game: %w", err)
	}

	that.remember(ctx, store, id, game, entity.PlayerX)

	return &Session{Game: game, Mark: entity.PlayerX}, nil
}

// LeaveGame - snapshots the tally into the recent store, then detaches. The
// server keeps the game rejoinable afterwards.
func (that *Client) LeaveGame(ctx context.Context, store *RecentStore, id, mark string) error {
	game, err := that.Leave(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to leave game: %w", err)
	}

	that.remember(ctx, store, id, game, mark)

	return nil
}

func (that *Client) remember(ctx context.Context, store *RecentStore, id string, game *entity.GameState, mark string) {
	if store == nil || game == nil {
		return
	}

	saved := entity.SavedGame{
		ID:         id,
		Players:    game.Players,
		Mark:       mark,
		LastPlayed: time.Now().UnixMilli(),
	}
	if game.WinCount != nil {
		saved.WinCount = *game.WinCount
	}

	// best effort: a failed local save never breaks the session
	_ = store.Touch(ctx, saved)
}
