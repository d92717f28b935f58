// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for finished-game records.
var DefaultQueueName = "duckhub_game_history"

// GameEndRecord holds the minimal info the out-of-process historian needs to
// archive a finished match.
type GameEndRecord struct {
	GameID          uuid.UUID `json:"game_id"`
	Status          string    `json:"status"`
	Winner          string    `json:"winner,omitempty"`
	WhiteUserID     uuid.UUID `json:"white_user_id"`
	BlackUserID     uuid.UUID `json:"black_user_id"`
	WClock          int64     `json:"wclock"`
	BClock          int64     `json:"bclock"`
	Plies           int       `json:"plies"`
	RatingDiffWhite int       `json:"rating_diff_white"`
	RatingDiffBlack int       `json:"rating_diff_black"`
	Timestamp       int64     `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishGameEnd serializes the record to JSON and pushes it to the history
// queue. This does not block game logic beyond a quick network send.
func PublishGameEnd(ctx context.Context, record GameEndRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal GameEndRecord: %w", err)
	}

	queueName := getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
