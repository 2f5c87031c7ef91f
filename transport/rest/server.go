package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
	"github.com/vanishbox/tictactoe-backend/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

type gameUseCase interface {
	CreateGame(ctx context.Context, player1, player2 string) (*entity.GameState, error)
	GetGame(ctx context.Context, id string) (*entity.GameState, error)
	ReplaceGame(ctx context.Context, id string, incoming *entity.GameState) (*entity.GameState, error)
	DeleteGame(ctx context.Context, id string) error

	JoinGame(ctx context.Context, id string, req usecase.JoinRequest) (*entity.GameState, string, error)
	LeaveGame(ctx context.Context, id string) (*entity.GameState, error)

	MakeMove(ctx context.Context, id, mark string, cell int) (*entity.GameState, error)
	ResetGame(ctx context.Context, id string) (*entity.GameState, error)
}

type Server struct {
	logger *slog.Logger
	uGame  gameUseCase

	pollInterval time.Duration
	maxBackoff   time.Duration
}

func New(logger *slog.Logger, uGame gameUseCase, pollInterval, maxBackoff time.Duration) *Server {
	return &Server{
		logger: logger,
		uGame:  uGame,

		pollInterval: pollInterval,
		maxBackoff:   maxBackoff,
	}
}

// Start - starts the HTTP server and blocks until it fails or ctx is
// canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Routes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
		// no WriteTimeout: the updates stream stays open for the whole game
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Routes - the full HTTP surface.
func (that *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", that.handlePing)
	mux.HandleFunc("GET /new-game", that.handleNewGame)

	mux.HandleFunc("GET /game/{gameId}", that.handleGetGame)
	mux.HandleFunc("POST /game/{gameId}", that.handleReplaceGame)
	mux.HandleFunc("DELETE /game/{gameId}", that.handleDeleteGame)

	mux.HandleFunc("POST /game/{gameId}/join", that.handleJoinGame)
	mux.HandleFunc("POST /game/{gameId}/leave", that.handleLeaveGame)
	mux.HandleFunc("POST /game/{gameId}/move", that.handleMakeMove)
	mux.HandleFunc("POST /game/{gameId}/reset", that.handleResetGame)

	mux.HandleFunc("GET /game/{gameId}/updates", that.handleUpdates)

	return mux
}
