// cmd/historian/main.go is the asynchronous historian: it pops finished-game
// records off the Redis queue, archives them to PostgreSQL in batches, and
// aborts games orphaned by a crashed server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/cache"
	"github.com/veloce-hq/duckhub/internal/database"
)

type historian struct {
	store      *database.Store
	logger     *logrus.Logger
	queueName  string
	batchSize  int
	flushDelay time.Duration
	staleAfter time.Duration

	batchMu sync.Mutex
	batch   []cache.GameEndRecord
}

func newHistorian(store *database.Store, logger *logrus.Logger) *historian {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	return &historian{
		store:      store,
		logger:     logger,
		queueName:  getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:  batchSize,
		flushDelay: time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		staleAfter: time.Duration(getEnvInt("GAME_STALE_TIMEOUT_SEC", 600)) * time.Second,
		batch:      make([]cache.GameEndRecord, 0, batchSize),
	}
}

// readQueueLoop blocks on the Redis queue, accumulating records and flushing
// on size or on the flush ticker.
func (h *historian) readQueueLoop(ctx context.Context) {
	ticker := time.NewTicker(h.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.flush(context.Background())
			return

		case <-ticker.C:
			h.flush(ctx)

		default:
			// BLPop with a short timeout so cancellation is noticed.
			res, err := cache.Rdb.BLPop(ctx, 3*time.Second, h.queueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					h.logger.Errorf("historian: BLPop: %v", err)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec cache.GameEndRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				h.logger.Warnf("historian: invalid record on queue: %v", err)
				continue
			}
			h.append(ctx, rec)
		}
	}
}

func (h *historian) append(ctx context.Context, rec cache.GameEndRecord) {
	h.batchMu.Lock()
	h.batch = append(h.batch, rec)
	full := len(h.batch) >= h.batchSize
	h.batchMu.Unlock()
	if full {
		h.flush(ctx)
	}
}

func (h *historian) flush(ctx context.Context) {
	h.batchMu.Lock()
	if len(h.batch) == 0 {
		h.batchMu.Unlock()
		return
	}
	batch := h.batch
	h.batch = make([]cache.GameEndRecord, 0, h.batchSize)
	h.batchMu.Unlock()

	if err := h.store.ArchiveGameEnds(ctx, batch); err != nil {
		h.logger.Errorf("historian: %v", err)
		return
	}
	h.logger.Infof("historian: archived %d games", len(batch))
}

// staleGameLoop periodically aborts games that have seen no move for longer
// than the stale threshold.
func (h *historian) staleGameLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.store.AbortStaleGames(ctx, time.Now().Add(-h.staleAfter))
			if err != nil {
				h.logger.Errorf("historian: %v", err)
				continue
			}
			if n > 0 {
				h.logger.Infof("historian: aborted %d stale games", n)
			}
		}
	}
}

func main() {
	logger := logrus.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	if err := cache.ConnectRedis(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	h := newHistorian(store, logger)
	go h.readQueueLoop(ctx)
	go h.staleGameLoop(ctx)

	logger.Info("duckhub historian started")
	<-ctx.Done()
	logger.Info("duckhub historian shutting down")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
