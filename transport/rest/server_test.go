package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanishbox/tictactoe-backend/internal/apperror"
	"github.com/vanishbox/tictactoe-backend/internal/entity"
	"github.com/vanishbox/tictactoe-backend/internal/repository"
	"github.com/vanishbox/tictactoe-backend/internal/usecase"
)

type stubUseCase struct {
	createGame  func(ctx context.Context, player1, player2 string) (*entity.GameState, error)
	getGame     func(ctx context.Context, id string) (*entity.GameState, error)
	replaceGame func(ctx context.Context, id string, incoming *entity.GameState) (*entity.GameState, error)
	deleteGame  func(ctx context.Context, id string) error
	joinGame    func(ctx context.Context, id string, req usecase.JoinRequest) (*entity.GameState, string, error)
	leaveGame   func(ctx context.Context, id string) (*entity.GameState, error)
	makeMove    func(ctx context.Context, id, mark string, cell int) (*entity.GameState, error)
	resetGame   func(ctx context.Context, id string) (*entity.GameState, error)
}

func (that *stubUseCase) CreateGame(ctx context.Context, player1, player2 string) (*entity.GameState, error) {
	return that.createGame(ctx, player1, player2)
}

func (that *stubUseCase) GetGame(ctx context.Context, id string) (*entity.GameState, error) {
	return that.getGame(ctx, id)
}

func (that *stubUseCase) ReplaceGame(ctx context.Context, id string, incoming *entity.GameState) (*entity.GameState, error) {
	return that.replaceGame(ctx, id, incoming)
}

func (that *stubUseCase) DeleteGame(ctx context.Context, id string) error {
	return that.deleteGame(ctx, id)
}

func (that *stubUseCase) JoinGame(ctx context.Context, id string, req usecase.JoinRequest) (*entity.GameState, string, error) {
	return that.joinGame(ctx, id, req)
}

func (that *stubUseCase) LeaveGame(ctx context.Context, id string) (*entity.GameState, error) {
	return that.leaveGame(ctx, id)
}

func (that *stubUseCase) MakeMove(ctx context.Context, id, mark string, cell int) (*entity.GameState, error) {
	return that.makeMove(ctx, id, mark, cell)
}

func (that *stubUseCase) ResetGame(ctx context.Context, id string) (*entity.GameState, error) {
	return that.resetGame(ctx, id)
}

func newTestServer(t *testing.T, stub *stubUseCase) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, stub, 10*time.Millisecond, 50*time.Millisecond)
}

func doRequest(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	return rec
}

func TestHandlePing(t *testing.T) {
	srv := newTestServer(t, &stubUseCase{})

	rec := doRequest(t, srv, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHandleNewGame(t *testing.T) {
	// Given: a use case that mints a game with the supplied names
	stub := &stubUseCase{
		createGame: func(_ context.Context, player1, player2 string) (*entity.GameState, error) {
			game := entity.NewGameState("new-id")
			game.Players = entity.Players{Player1: player1, Player2: player2}
			game.PlayerCount = 1
			return game, nil
		},
	}
	srv := newTestServer(t, stub)

	// When: requesting a new game
	rec := doRequest(t, srv, http.MethodGet, "/new-game?player1=ann", nil)

	// Then: the response carries the fresh game ID
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		GameID string `json:"gameId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "new-id", resp.GameID)
}

func TestHandleGetGame(t *testing.T) {
	t.Run("Returns the state", func(t *testing.T) {
		stub := &stubUseCase{
			getGame: func(_ context.Context, id string) (*entity.GameState, error) {
				game := entity.NewGameState(id)
				game.Revision = 4
				return game, nil
			},
		}
		srv := newTestServer(t, stub)

		rec := doRequest(t, srv, http.MethodGet, "/game/g1", nil)

		require.Equal(t, http.StatusOK, rec.Code)

		game := &entity.GameState{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), game))
		assert.Equal(t, "g1", game.ID)
		assert.Equal(t, int64(4), game.Revision)
	})

	t.Run("Unknown game is a 404", func(t *testing.T) {
		stub := &stubUseCase{
			getGame: func(context.Context, string) (*entity.GameState, error) {
				return nil, repository.ErrGameNotFound
			},
		}
		srv := newTestServer(t, stub)

		rec := doRequest(t, srv, http.MethodGet, "/game/missing", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Game not found")
	})
}

func TestHandleReplaceGame(t *testing.T) {
	// Given: a use case recording the replacement
	var gotID string
	stub := &stubUseCase{
		replaceGame: func(_ context.Context, id string, incoming *entity.GameState) (*entity.GameState, error) {
			gotID = id
			return incoming, nil
		},
	}
	srv := newTestServer(t, stub)

	// When: posting a full state
	rec := doRequest(t, srv, http.MethodPost, "/game/g1", entity.NewGameState("g1"))

	// Then: a bare success flag comes back
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "g1", gotID)
}

func TestHandleDeleteGame(t *testing.T) {
	t.Run("Tombstones and reports success", func(t *testing.T) {
		stub := &stubUseCase{
			deleteGame: func(context.Context, string) error { return nil },
		}
		srv := newTestServer(t, stub)

		rec := doRequest(t, srv, http.MethodDelete, "/game/g1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("Unknown game is a 404", func(t *testing.T) {
		stub := &stubUseCase{
			deleteGame: func(context.Context, string) error { return repository.ErrGameNotFound },
		}
		srv := newTestServer(t, stub)

		rec := doRequest(t, srv, http.MethodDelete, "/game/missing", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleJoinGame(t *testing.T) {
	// Given: a join that grants O
	stub := &stubUseCase{
		joinGame: func(_ context.Context, id string, req usecase.JoinRequest) (*entity.GameState, string, error) {
			game := entity.NewGameState(id)
			game.Players = entity.Players{Player1: "ann", Player2: req.Player2}
			game.PlayerCount = 2
			return game, entity.PlayerO, nil
		},
	}
	srv := newTestServer(t, stub)

	// When: joining with a name
	rec := doRequest(t, srv, http.MethodPost, "/game/g1/join", usecase.JoinRequest{Player2: "ben"})

	// Then: the granted mark and updated state come back
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Game *entity.GameState `json:"game"`
		Mark string            `json:"mark"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, entity.PlayerO, resp.Mark)
	assert.Equal(t, "ben", resp.Game.Players.Player2)
}

func TestHandleMakeMove(t *testing.T) {
	moveStub := func(err error) *stubUseCase {
		return &stubUseCase{
			makeMove: func(_ context.Context, id, _ string, _ int) (*entity.GameState, error) {
				if err != nil {
					return nil, err
				}
				return entity.NewGameState(id), nil
			},
		}
	}

	t.Run("Accepted move returns the new state", func(t *testing.T) {
		srv := newTestServer(t, moveStub(nil))

		rec := doRequest(t, srv, http.MethodPost, "/game/g1/move", moveRequest{Mark: entity.PlayerX, Cell: 4})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Occupied cell is a 409", func(t *testing.T) {
		srv := newTestServer(t, moveStub(apperror.ErrCellOccupied))

		rec := doRequest(t, srv, http.MethodPost, "/game/g1/move", moveRequest{Mark: entity.PlayerX, Cell: 4})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Finished game is a 409", func(t *testing.T) {
		srv := newTestServer(t, moveStub(apperror.ErrGameFinished))

		rec := doRequest(t, srv, http.MethodPost, "/game/g1/move", moveRequest{Mark: entity.PlayerX, Cell: 4})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Out of turn is a 403", func(t *testing.T) {
		srv := newTestServer(t, moveStub(apperror.ErrNotYourTurn))

		rec := doRequest(t, srv, http.MethodPost, "/game/g1/move", moveRequest{Mark: entity.PlayerO, Cell: 4})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Bad cell index is a 400", func(t *testing.T) {
		srv := newTestServer(t, moveStub(apperror.ErrInvalidCell))

		rec := doRequest(t, srv, http.MethodPost, "/game/g1/move", moveRequest{Mark: entity.PlayerX, Cell: 11})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func readEvents(t *testing.T, body io.Reader, want int) []string {
	t.Helper()

	var events []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
			if len(events) == want {
				break
			}
		}
	}

	return events
}

func TestHandleUpdates(t *testing.T) {
	t.Run("Streams the state, then revision changes, then deletion", func(t *testing.T) {
		// Given: a game whose state advances a revision per read and is
		// tombstoned after the third
		var reads atomic.Int64
		stub := &stubUseCase{
			getGame: func(_ context.Context, id string) (*entity.GameState, error) {
				n := reads.Add(1)
				game := entity.NewGameState(id)
				game.Revision = n
				if n >= 3 {
					game.Deleted = true
				}
				return game, nil
			},
		}
		srv := newTestServer(t, stub)

		ts := httptest.NewServer(srv.Routes())
		defer ts.Close()

		// When: watching the updates stream
		resp, err := http.Get(ts.URL + "/game/g1/updates")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		events := readEvents(t, resp.Body, 3)

		// Then: initial state, one revision bump, then the deletion notice
		require.Len(t, events, 3)

		first := &entity.GameState{}
		require.NoError(t, json.Unmarshal([]byte(events[0]), first))
		assert.Equal(t, int64(1), first.Revision)

		second := &entity.GameState{}
		require.NoError(t, json.Unmarshal([]byte(events[1]), second))
		assert.Equal(t, int64(2), second.Revision)

		assert.JSONEq(t, `{"deleted":true}`, events[2])
	})

	t.Run("Unchanged revision is not republished", func(t *testing.T) {
		// Given: a state that never changes after the first delivery
		var reads atomic.Int64
		stub := &stubUseCase{
			getGame: func(_ context.Context, id string) (*entity.GameState, error) {
				reads.Add(1)
				game := entity.NewGameState(id)
				game.Revision = 1
				return game, nil
			},
		}
		srv := newTestServer(t, stub)

		ts := httptest.NewServer(srv.Routes())
		defer ts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/game/g1/updates", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		// When: reading until the client context expires
		raw, _ := io.ReadAll(resp.Body)

		// Then: only the initial event was delivered despite many polls
		assert.Equal(t, 1, strings.Count(string(raw), "data: "))
		assert.Greater(t, reads.Load(), int64(2))
	})

	t.Run("Unknown game yields an error event and closes", func(t *testing.T) {
		stub := &stubUseCase{
			getGame: func(context.Context, string) (*entity.GameState, error) {
				return nil, repository.ErrGameNotFound
			},
		}
		srv := newTestServer(t, stub)

		ts := httptest.NewServer(srv.Routes())
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/game/missing/updates")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `{"error":"Game not found"}`)
	})

	t.Run("Tombstoned game yields a deletion notice and closes", func(t *testing.T) {
		stub := &stubUseCase{
			getGame: func(_ context.Context, id string) (*entity.GameState, error) {
				game := entity.NewGameState(id)
				game.Deleted = true
				return game, nil
			},
		}
		srv := newTestServer(t, stub)

		ts := httptest.NewServer(srv.Routes())
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/game/g1/updates")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"deleted":true}`, strings.TrimPrefix(strings.TrimSpace(string(raw)), "data: "))
	})
}
