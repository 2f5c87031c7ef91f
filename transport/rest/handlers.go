package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vanishbox/tictactoe-backend/internal/apperror"
	"github.com/vanishbox/tictactoe-backend/internal/entity"
	"github.com/vanishbox/tictactoe-backend/internal/repository"
	"github.com/vanishbox/tictactoe-backend/internal/usecase"
)

const msgGameNotFound = "Game not found"

type newGameResponse struct {
	GameID string `json:"gameId"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	Game *entity.GameState `json:"game"`
	Mark string            `json:"mark,omitempty"`
}

type moveRequest struct {
	Mark string `json:"mark"`
	Cell int    `json:"cell"`
}

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleNewGame")

	query := r.URL.Query()
	game, err := that.uGame.CreateGame(r.Context(), query.Get("player1"), query.Get("player2"))
	if err != nil {
		log.Error("failed to create game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create game"})
		return
	}

	that.writeJSON(w, http.StatusOK, newGameResponse{GameID: game.ID})
}

func (that *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleGetGame")

	game, err := that.uGame.GetGame(r.Context(), r.PathValue("gameId"))
	if errors.Is(err, repository.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
		return
	}
	if err != nil {
		log.Error("failed to get game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get game"})
		return
	}

	that.writeJSON(w, http.StatusOK, game)
}

// handleReplaceGame - wholesale state replacement. Kept soft on purpose: the
// response is a bare success flag regardless of what the state contained.
func (that *Server) handleReplaceGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleReplaceGame")

	incoming := &entity.GameState{}
	if err := json.NewDecoder(r.Body).Decode(incoming); err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid game state body"})
		return
	}

	if _, err := that.uGame.ReplaceGame(r.Context(), r.PathValue("gameId"), incoming); err != nil {
		log.Error("failed to replace game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to replace game"})
		return
	}

	that.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (that *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleDeleteGame")

	err := that.uGame.DeleteGame(r.Context(), r.PathValue("gameId"))
	if errors.Is(err, repository.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
		return
	}
	if err != nil {
		log.Error("failed to delete game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete game"})
		return
	}

	that.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (that *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleJoinGame")

	var req usecase.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid join body"})
		return
	}

	game, mark, err := that.uGame.JoinGame(r.Context(), r.PathValue("gameId"), req)
	if errors.Is(err, repository.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
		return
	}
	if err != nil {
		log.Error("failed to join game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to join game"})
		return
	}

	that.writeJSON(w, http.StatusOK, sessionResponse{Game: game, Mark: mark})
}

func (that *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleLeaveGame")

	game, err := that.uGame.LeaveGame(r.Context(), r.PathValue("gameId"))
	if errors.Is(err, repository.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
		return
	}
	if err != nil {
		log.Error("failed to leave game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to leave game"})
		return
	}

	that.writeJSON(w, http.StatusOK, sessionResponse{Game: game})
}

// handleMakeMove - applies a move and reports rejections explicitly, so a
// client can tell an accepted move from an illegal one instead of guessing
// from the next stream event.
func (that *Server) handleMakeMove(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleMakeMove")

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid move body"})
		return
	}

	game, err := that.uGame.MakeMove(r.Context(), r.PathValue("gameId"), req.Mark, req.Cell)
	if err != nil {
		that.writeMoveError(w, log, err)
		return
	}

	that.writeJSON(w, http.StatusOK, sessionResponse{Game: game})
}

func (that *Server) handleResetGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleResetGame")

	game, err := that.uGame.ResetGame(r.Context(), r.PathValue("gameId"))
	if errors.Is(err, repository.ErrGameNotFound) {
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
		return
	}
	if err != nil {
		log.Error("failed to reset game", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to reset game"})
		return
	}

	that.writeJSON(w, http.StatusOK, sessionResponse{Game: game})
}

func (that *Server) writeMoveError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrGameNotFound):
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgGameNotFound})
	case errors.Is(err, apperror.ErrNotYourTurn):
		that.writeJSON(w, http.StatusForbidden, errorResponse{Error: apperror.ErrNotYourTurn.Error()})
	case errors.Is(err, apperror.ErrCellOccupied):
		that.writeJSON(w, http.StatusConflict, errorResponse{Error: apperror.ErrCellOccupied.Error()})
	case errors.Is(err, apperror.ErrGameFinished):
		that.writeJSON(w, http.StatusConflict, errorResponse{Error: apperror.ErrGameFinished.Error()})
	case errors.Is(err, apperror.ErrInvalidCell), errors.Is(err, apperror.ErrInvalidMark):
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.Error("failed to make move", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to make move"})
	}
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}
