package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

func TestClient_NewGameAndGetGame(t *testing.T) {
	// Given: a server minting one game
	mux := http.NewServeMux()
	mux.HandleFunc("GET /new-game", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ann", r.URL.Query().Get("player1"))
		_ = json.NewEncoder(w).Encode(map[string]string{"gameId": "g1"})
	})
	mux.HandleFunc("GET /game/{gameId}", func(w http.ResponseWriter, r *http.Request) {
		game := entity.NewGameState(r.PathValue("gameId"))
		game.Players.Player1 = "ann"
		game.PlayerCount = 1
		_ = json.NewEncoder(w).Encode(game)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(ts.URL)
	ctx := context.Background()

	// When: creating and fetching
	id, err := c.NewGame(ctx, "ann", "")
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	game, err := c.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ann", game.Players.Player1)
}

func TestClient_GetGame_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /game/{gameId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Game not found"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := New(ts.URL).GetGame(context.Background(), "missing")

	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestClient_Move_Rejected(t *testing.T) {
	// Given: a server rejecting the move as occupied
	mux := http.NewServeMux()
	mux.HandleFunc("POST /game/{gameId}/move", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cell is already occupied"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// When: moving
	_, err := New(ts.URL).Move(context.Background(), "g1", entity.PlayerX, 4)

	// Then: the rejection is explicit and carries the reason
	require.ErrorIs(t, err, ErrMoveRejected)
	assert.Contains(t, err.Error(), "occupied")
}

func TestClient_Updates(t *testing.T) {
	// Given: a stream delivering a state, a newer state, then a deletion
	mux := http.NewServeMux()
	mux.HandleFunc("GET /game/{gameId}/updates", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		for rev := int64(1); rev <= 2; rev++ {
			game := entity.NewGameState(r.PathValue("gameId"))
			game.Revision = rev
			raw, _ := json.Marshal(game)
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		}

		fmt.Fprint(w, "data: {\"deleted\":true}\n\n")
		flusher.Flush()
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// When: watching
	updates, err := New(ts.URL).Updates(ctx, "g1")
	require.NoError(t, err)

	var got []Update
	for update := range updates {
		got = append(got, update)
	}

	// Then: two states and the deletion notice, in order, channel closed
	require.Len(t, got, 3)
	require.NotNil(t, got[0].State)
	assert.Equal(t, int64(1), got[0].State.Revision)
	assert.Equal(t, int64(2), got[1].State.Revision)
	assert.True(t, got[2].Deleted)
}

func TestClient_Updates_GameNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /game/{gameId}/updates", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":\"Game not found\"}\n\n")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	updates, err := New(ts.URL).Updates(context.Background(), "missing")
	require.NoError(t, err)

	update, ok := <-updates
	require.True(t, ok)
	require.ErrorIs(t, update.Err, ErrGameNotFound)

	_, ok = <-updates
	assert.False(t, ok)
}

func TestClient_JoinGame_ResumesRememberedMark(t *testing.T) {
	ctx := context.Background()
	store := newRecentStore(t)

	// Given: this client played g1 as O before
	require.NoError(t, store.Touch(ctx, entity.SavedGame{
		ID:         "g1",
		Mark:       entity.PlayerO,
		LastPlayed: 1000,
	}))

	// and a server granting whatever mark is preferred
	var gotPreferred string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /game/{gameId}/join", func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPreferred = req.PreferredMark

		game := entity.NewGameState(r.PathValue("gameId"))
		game.Players = entity.Players{Player1: "ann", Player2: "ben"}
		game.PlayerCount = 2
		_ = json.NewEncoder(w).Encode(Session{Game: game, Mark: req.PreferredMark})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// When: joining with local memory
	session, err := New(ts.URL).JoinGame(ctx, store, "g1", JoinRequest{})

	// Then: the remembered symbol was offered and the session re-recorded
	require.NoError(t, err)
	assert.Equal(t, entity.PlayerO, gotPreferred)
	assert.Equal(t, entity.PlayerO, session.Mark)

	games, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "ben", games[0].Players.Player2)
	assert.Greater(t, games[0].LastPlayed, int64(1000))
}
