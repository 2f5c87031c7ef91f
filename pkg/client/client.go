package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrMoveRejected = errors.New("move rejected")
)

// JoinRequest - optional display names plus the symbol this client held the
// last time it played the game, if the recent-games store remembers one.
type JoinRequest struct {
	Player1       string `json:"player1,omitempty"`
	Player2       string `json:"player2,omitempty"`
	PreferredMark string `json:"preferredMark,omitempty"`
}

// Session - the outcome of a join or create: the authoritative state plus
// the symbol the server granted this client.
type Session struct {
	Game *entity.GameState `json:"game"`
	Mark string            `json:"mark,omitempty"`
}

// Update - one event from the updates stream: a fresh state, a deletion
// notice, or a terminal error.
type Update struct {
	State   *entity.GameState
	Deleted bool
	Err     error
}

// Client - a Go client for the game backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// separate client for the updates stream: a long-lived stream must not
	// be cut by the request timeout, cancellation comes from ctx instead
	streamClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// NewGame - mints a game on the server, naming the creator's side.
func (that *Client) NewGame(ctx context.Context, player1, player2 string) (string, error) {
	query := url.Values{}
	if player1 != "" {
		query.Set("player1", player1)
	}
	if player2 != "" {
		query.Set("player2", player2)
	}
	target := that.baseURL + "/new-game?" + query.Encode()

	var resp struct {
		GameID string `json:"gameId"`
	}
	if err := that.doJSON(ctx, http.MethodGet, target, nil, &resp); err != nil {
		return "", err
	}

	return resp.GameID, nil
}

func (that *Client) GetGame(ctx context.Context, id string) (*entity.GameState, error) {
	game := &entity.GameState{}
	if err := that.doJSON(ctx, http.MethodGet, that.gameURL(id), nil, game); err != nil {
		return nil, err
	}

	return game, nil
}

// ReplaceGame - wholesale state replacement.
func (that *Client) ReplaceGame(ctx context.Context, id string, state *entity.GameState) error {
	return that.doJSON(ctx, http.MethodPost, that.gameURL(id), state, nil)
}

// DeleteGame - tombstones the game; watchers see a deletion notice.
func (that *Client) DeleteGame(ctx context.Context, id string) error {
	return that.doJSON(ctx, http.MethodDelete, that.gameURL(id), nil, nil)
}

func (that *Client) Join(ctx context.Context, id string, req JoinRequest) (*Session, error) {
	session := &Session{}
	if err := that.doJSON(ctx, http.MethodPost, that.gameURL(id)+"/join", req, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (that *Client) Leave(ctx context.Context, id string) (*entity.GameState, error) {
	session := &Session{}
	if err := that.doJSON(ctx, http.MethodPost, that.gameURL(id)+"/leave", nil, session); err != nil {
		return nil, err
	}

	return session.Game, nil
}

func (that *Client) Move(ctx context.Context, id, mark string, cell int) (*entity.GameState, error) {
	body := struct {
		Mark string `json:"mark"`
		Cell int    `json:"cell"`
	}{Mark: mark, Cell: cell}

	session := &Session{}
	if err := that.doJSON(ctx, http.MethodPost, that.gameURL(id)+"/move", body, session); err != nil {
		return nil, err
	}

	return session.Game, nil
}

func (that *Client) Reset(ctx context.Context, id string) (*entity.GameState, error) {
	session := &Session{}
	if err := that.doJSON(ctx, http.MethodPost, that.gameURL(id)+"/reset", nil, session); err != nil {
		return nil, err
	}

	return session.Game, nil
}

// Updates - opens the server-sent-events stream and decodes it onto a
// channel. The channel closes after a deletion notice, a terminal error, or
// when ctx is canceled; canceling ctx is how the caller hangs up.
func (that *Client) Updates(ctx context.Context, id string) (<-chan Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, that.gameURL(id)+"/updates", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build updates request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := that.streamClient.Do(req) //nolint:bodyclose // closed by the reader goroutine
	if err != nil {
		return nil, fmt.Errorf("failed to open updates stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected updates stream status: %s", resp.Status)
	}

	updates := make(chan Update)
	go func() {
		defer close(updates)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			update := decodeUpdate([]byte(strings.TrimPrefix(line, "data: ")))

			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}

			if update.Deleted || update.Err != nil {
				return
			}
		}
	}()

	return updates, nil
}

func decodeUpdate(data []byte) Update {
	var envelope struct {
		Error   string `json:"error"`
		Deleted bool   `json:"deleted"`
		Board   *[]any `json:"board"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Update{Err: fmt.Errorf("failed to decode stream event: %w", err)}
	}

	switch {
	case envelope.Error != "":
		return Update{Err: fmt.Errorf("%w: %s", ErrGameNotFound, envelope.Error)}
	case envelope.Board == nil && envelope.Deleted:
		return Update{Deleted: true}
	}

	state := &entity.GameState{}
	if err := json.Unmarshal(data, state); err != nil {
		return Update{Err: fmt.Errorf("failed to decode game state event: %w", err)}
	}

	return Update{State: state}
}

func (that *Client) gameURL(id string) string {
	return that.baseURL + "/game/" + id
}

func (that *Client) doJSON(ctx context.Context, method, target string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrGameNotFound
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrMoveRejected, readErrorMessage(resp))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func readErrorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}

	return body.Error
}
