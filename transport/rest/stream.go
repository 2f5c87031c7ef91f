package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vanishbox/tictactoe-backend/internal/repository"
)

type deletedNotice struct {
	Deleted bool `json:"deleted"`
}

// handleUpdates - the per-game push stream. A server-sent-events response
// that re-reads the stored state on a fixed cadence and republishes it
// whenever its revision moved. Staleness is bounded by one poll interval;
// in exchange no per-client server state survives the connection.
//
// The stream ends with a deletion notice when the record disappears or is
// tombstoned, and silently when the client goes away (the request context
// is the cancellation signal, so no poll loop outlives its watcher).
func (that *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleUpdates")

	id := r.PathValue("gameId")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	state, err := that.uGame.GetGame(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrGameNotFound) {
			log.Error("failed to read game state", "gameID", id, "error", err)
		}
		that.sendEvent(w, flusher, errorResponse{Error: msgGameNotFound})
		return
	}
	if state.Deleted {
		that.sendEvent(w, flusher, deletedNotice{Deleted: true})
		return
	}

	that.sendEvent(w, flusher, state)
	lastRevision := state.Revision

	ticker := time.NewTicker(that.pollInterval)
	defer ticker.Stop()

	retry := that.newBackOff()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err = that.uGame.GetGame(ctx, id)
		if errors.Is(err, repository.ErrGameNotFound) {
			that.sendEvent(w, flusher, deletedNotice{Deleted: true})
			return
		}
		if err != nil {
			// transient store trouble: back off instead of hammering a
			// store that is already struggling
			wait := retry.NextBackOff()
			log.Error("failed to re-read game state", "gameID", id, "error", err, "retryIn", wait)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		if state.Deleted {
			that.sendEvent(w, flusher, deletedNotice{Deleted: true})
			return
		}

		if state.Revision != lastRevision {
			that.sendEvent(w, flusher, state)
			lastRevision = state.Revision
		}
	}
}

func (that *Server) newBackOff() *backoff.ExponentialBackOff {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = that.pollInterval
	retry.MaxInterval = that.maxBackoff
	retry.MaxElapsedTime = 0 // the stream itself decides when to stop

	return retry
}

func (that *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal stream event", "error", err)
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
