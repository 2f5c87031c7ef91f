package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrUpdateConflict = errors.New("game record changed under concurrent update")
)

const (
	keyPrefix    = "game:"
	bucketLayout = "2006-01-02"

	// how many times a watched transaction is retried before giving up
	maxTxRetries = 5

	scanBatchSize = 64
)

// GameRepository - the store of authoritative game records. Records live
// under date buckets ("game:<yyyy-mm-dd>:<id>") so old days can be rotated
// out; any write relocates the record forward into today's bucket, so
// lookups try today first and only then scan older buckets.
type GameRepository interface {
	Save(ctx context.Context, game *entity.GameState) error
	GetByID(ctx context.Context, id string) (*entity.GameState, error)

	// UpdateWithin runs apply on the current record and writes the result
	// back in one optimistic transaction. Concurrent writers serialize:
	// whoever loses the race re-reads and re-applies instead of silently
	// overwriting. The revision is bumped on every successful commit.
	UpdateWithin(ctx context.Context, id string, apply func(*entity.GameState) error) (*entity.GameState, error)
}

type dbGame struct {
	client *redis.Client
}

func NewGameRepository(client *redis.Client) GameRepository {
	return &dbGame{
		client: client,
	}
}

// Save - writes the record wholesale into today's bucket, carrying the
// revision forward from any existing record and dropping a stale copy left
// in an older bucket.
func (that *dbGame) Save(ctx context.Context, game *entity.GameState) error {
	oldKey, err := that.findKey(ctx, game.ID)
	if err != nil && !errors.Is(err, ErrGameNotFound) {
		return fmt.Errorf("failed to locate game record: %w", err)
	}

	if oldKey != "" {
		existing, getErr := that.getByKey(ctx, oldKey)
		if getErr == nil {
			game.Revision = existing.Revision
		}
	}
	game.Revision++

	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	gameKey := that.todayKey(game.ID)
	if err = that.client.Set(ctx, gameKey, gameJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}

	if oldKey != "" && oldKey != gameKey {
		if err = that.client.Del(ctx, oldKey).Err(); err != nil {
			return fmt.Errorf("failed to drop relocated game record: %w", err)
		}
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.GameState, error) {
	gameKey, err := that.findKey(ctx, id)
	if err != nil {
		return nil, err
	}

	return that.getByKey(ctx, gameKey)
}

func (that *dbGame) UpdateWithin(ctx context.Context, id string, apply func(*entity.GameState) error) (*entity.GameState, error) {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		gameKey, err := that.findKey(ctx, id)
		if err != nil {
			return nil, err
		}

		var updated *entity.GameState
		relocated := false

		err = that.client.Watch(ctx, func(tx *redis.Tx) error {
			response, getErr := tx.Get(ctx, gameKey).Result()
			if errors.Is(getErr, redis.Nil) {
				// a concurrent write moved the record to a newer bucket
				relocated = true
				return nil
			}
			if getErr != nil {
				return fmt.Errorf("failed to get game: %w", getErr)
			}

			game := &entity.GameState{}
			if unmarshalErr := json.Unmarshal([]byte(response), game); unmarshalErr != nil {
				return fmt.Errorf("failed to unmarshal game: %w", unmarshalErr)
			}
			game.ID = id
			game.EnsureWinCount()

			if applyErr := apply(game); applyErr != nil {
				return applyErr
			}
			game.Revision++

			gameJSON, marshalErr := json.Marshal(game)
			if marshalErr != nil {
				return fmt.Errorf("could not marshal game: %w", marshalErr)
			}

			newKey := that.todayKey(id)
			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, newKey, gameJSON, 0)
				if newKey != gameKey {
					pipe.Del(ctx, gameKey)
				}
				return nil
			})
			if txErr != nil {
				return txErr
			}

			updated = game
			return nil
		}, gameKey)

		if relocated || errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	return nil, ErrUpdateConflict
}

func (that *dbGame) getByKey(ctx context.Context, gameKey string) (*entity.GameState, error) {
	response, err := that.client.Get(ctx, gameKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	game := &entity.GameState{}
	if err = json.Unmarshal([]byte(response), game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	game.EnsureWinCount()

	return game, nil
}

// findKey - resolves the current key of a game: today's bucket first, then a
// scan across older buckets.
func (that *dbGame) findKey(ctx context.Context, id string) (string, error) {
	todayKey := that.todayKey(id)

	exists, err := that.client.Exists(ctx, todayKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check game key: %w", err)
	}
	if exists > 0 {
		return todayKey, nil
	}

	pattern := keyPrefix + "*:" + id
	var cursor uint64
	for {
		keys, next, scanErr := that.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if scanErr != nil {
			return "", fmt.Errorf("failed to scan for game key: %w", scanErr)
		}

		if len(keys) > 0 {
			return keys[0], nil
		}

		cursor = next
		if cursor == 0 {
			return "", ErrGameNotFound
		}
	}
}

func (that *dbGame) todayKey(id string) string {
	return keyPrefix + time.Now().UTC().Format(bucketLayout) + ":" + id
}
