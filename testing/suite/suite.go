package suite

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	"github.com/vanishbox/tictactoe-backend/internal/entity"
)

const (
	containerLifetime = 120 // seconds, a hard kill in case cleanup never runs
	maxWaitDuration   = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

const bucketLayout = "2006-01-02"

// Suite - a test harness around a throwaway Redis container. Besides the raw
// client it knows the game key scheme, so tests can seed records into any
// date bucket without repeating the layout.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
}

func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(func() {
		cancel()
	})

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
		Env:        []string{},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// never returns error
	_ = resource.Expire(containerLifetime)

	redisHost := resource.GetHostPort(redisPort)

	// retry with backoff, the container may not accept connections yet
	pool.MaxWait = maxWaitDuration

	var redisClient *redis.Client
	if err = pool.Retry(func() error {
		redisClient = redis.NewClient(&redis.Options{
			Addr: redisHost,
		})
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}

		t.Fatalf("could not connect to redis: %v", err)
	}

	if err = redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()

		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	return ctx, &Suite{
		T:       t,
		Logger:  logger,
		Storage: redisClient,
	}
}

// GameKey - the storage key of a game in the bucket daysAgo days before
// today. daysAgo 0 is today's bucket.
func (that *Suite) GameKey(id string, daysAgo int) string {
	day := time.Now().UTC().AddDate(0, 0, -daysAgo).Format(bucketLayout)
	return "game:" + day + ":" + id
}

// SeedGame - plants a game record directly into the bucket daysAgo days old,
// bypassing the repository. Used to stage stale or legacy records.
func (that *Suite) SeedGame(ctx context.Context, game *entity.GameState, daysAgo int) {
	that.Helper()

	raw, err := json.Marshal(game)
	if err != nil {
		that.Fatalf("could not marshal seeded game: %v", err)
	}

	if err = that.Storage.Set(ctx, that.GameKey(game.ID, daysAgo), raw, 0).Err(); err != nil {
		that.Fatalf("could not seed game record: %v", err)
	}
}

// KeyExists - reports whether a raw storage key is present.
func (that *Suite) KeyExists(ctx context.Context, key string) bool {
	that.Helper()

	exists, err := that.Storage.Exists(ctx, key).Result()
	if err != nil {
		that.Fatalf("could not check key: %v", err)
	}

	return exists > 0
}
