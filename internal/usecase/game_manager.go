package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
	"github.com/vanishbox/tictactoe-backend/internal/repository"
	"github.com/vanishbox/tictactoe-backend/internal/tictactoe"
)

type gameRepo interface {
	Save(ctx context.Context, game *entity.GameState) error
	GetByID(ctx context.Context, id string) (*entity.GameState, error)
	UpdateWithin(ctx context.Context, id string, apply func(*entity.GameState) error) (*entity.GameState, error)
}

// JoinRequest - what a joining client supplies: optional display names and
// the symbol it held the last time it played this game, if it remembers one.
type JoinRequest struct {
	Player1       string `json:"player1,omitempty"`
	Player2       string `json:"player2,omitempty"`
	PreferredMark string `json:"preferredMark,omitempty"`
}

// GameManager - orchestrates the transition engine against the store. All
// mutating operations run inside the repository's optimistic transaction, so
// two clients racing on one game serialize instead of losing writes.
type GameManager struct {
	logger   *slog.Logger
	gameRepo gameRepo
}

func NewGameManager(logger *slog.Logger, gameRepo gameRepo) *GameManager {
	return &GameManager{
		logger:   logger.With("component", "game_manager"),
		gameRepo: gameRepo,
	}
}

// CreateGame - mints a fresh game. The creator claims the first seat and
// always plays X.
func (that *GameManager) CreateGame(ctx context.Context, player1, player2 string) (*entity.GameState, error) {
	game := entity.NewGameState(uuid.NewString())
	game.PlayerCount = 1

	game.Players.Player1 = player1
	if game.Players.Player1 == "" {
		game.Players.Player1 = entity.DefaultPlayer1
	}
	game.Players.Player2 = player2

	if err := that.gameRepo.Save(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to save new game: %w", err)
	}

	that.logger.Info("created game", "gameID", game.ID)

	return game, nil
}

func (that *GameManager) GetGame(ctx context.Context, id string) (*entity.GameState, error) {
	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	game.ID = id

	return game, nil
}

// JoinGame - attaches a client to a game as one atomic seat claim. Missing
// names are filled in (supplied names never overwrite existing ones) and the
// seat count is forced to 2: once a second join happens the game is assumed
// full, with no hard capacity check beyond that.
//
// The granted mark comes back alongside the state: a returning client gets
// its remembered symbol, otherwise the first joiner of an unclaimed game
// gets X and everyone after gets O. Running the claim inside the store
// transaction is what keeps two racing joiners from both becoming X.
func (that *GameManager) JoinGame(ctx context.Context, id string, req JoinRequest) (*entity.GameState, string, error) {
	var mark string

	game, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		if game.Deleted {
			return repository.ErrGameNotFound
		}

		claimedSeats := game.PlayerCount

		if game.Players.Player1 == "" {
			game.Players.Player1 = req.Player1
		}
		if game.Players.Player2 == "" {
			game.Players.Player2 = req.Player2
		}
		if game.Players.Player1 == "" {
			game.Players.Player1 = entity.DefaultPlayer1
		}
		if game.Players.Player2 == "" {
			game.Players.Player2 = entity.DefaultPlayer2
		}

		game.PlayerCount = 2

		switch {
		case entity.IsValidMark(req.PreferredMark):
			mark = req.PreferredMark
		case claimedSeats == 0:
			mark = entity.PlayerX
		default:
			mark = entity.PlayerO
		}

		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to join game: %w", err)
	}

	that.logger.Info("player joined game", "gameID", id, "mark", mark)

	return game, mark, nil
}

// LeaveGame - detaches a client. The seat count drops back toward 1, never
// 0, so the game stays easily rejoinable. The returned snapshot is what the
// leaving client records locally.
func (that *GameManager) LeaveGame(ctx context.Context, id string) (*entity.GameState, error) {
	game, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		if game.PlayerCount > 1 {
			game.PlayerCount = 1
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to leave game: %w", err)
	}

	return game, nil
}

// MakeMove - validates turn ownership and applies the transition engine.
// Rejections come back as the engine's sentinel errors so callers can tell
// an illegal move from an accepted one.
func (that *GameManager) MakeMove(ctx context.Context, id, mark string, cell int) (*entity.GameState, error) {
	game, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		if game.Deleted {
			return repository.ErrGameNotFound
		}

		return tictactoe.ApplyMove(game, mark, cell)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to make move: %w", err)
	}

	that.logger.Debug("move accepted", "gameID", id, "mark", mark, "cell", cell)

	return game, nil
}

// ResetGame - starts the next round; the side that lost the previous one
// opens, tallies and names survive.
func (that *GameManager) ResetGame(ctx context.Context, id string) (*entity.GameState, error) {
	game, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		if game.Deleted {
			return repository.ErrGameNotFound
		}

		tictactoe.Reset(game)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset game: %w", err)
	}

	return game, nil
}

// ReplaceGame - wholesale state replacement, the compatibility path behind
// POST /game/{id}. A missing winCount in the incoming state is back-filled
// from the stored record; an unknown ID creates the record.
func (that *GameManager) ReplaceGame(ctx context.Context, id string, incoming *entity.GameState) (*entity.GameState, error) {
	game, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		replacement := *incoming
		replacement.ID = id
		if replacement.WinCount == nil {
			replacement.WinCount = game.WinCount
		}
		replacement.Revision = game.Revision

		*game = replacement
		game.EnsureWinCount()

		return nil
	})

	if errors.Is(err, repository.ErrGameNotFound) {
		incoming.ID = id
		incoming.EnsureWinCount()
		if saveErr := that.gameRepo.Save(ctx, incoming); saveErr != nil {
			return nil, fmt.Errorf("failed to create replaced game: %w", saveErr)
		}
		return incoming, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to replace game: %w", err)
	}

	return game, nil
}

// DeleteGame - tombstones the record. Watchers observe the flag and close;
// the record itself is never purged here.
func (that *GameManager) DeleteGame(ctx context.Context, id string) error {
	_, err := that.gameRepo.UpdateWithin(ctx, id, func(game *entity.GameState) error {
		game.Deleted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	that.logger.Info("game tombstoned", "gameID", id)

	return nil
}
