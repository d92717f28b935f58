// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/veloce-hq/duckhub/internal/auth"
	"github.com/veloce-hq/duckhub/internal/cache"
	"github.com/veloce-hq/duckhub/internal/crowd"
	"github.com/veloce-hq/duckhub/internal/database"
	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/game"
	"github.com/veloce-hq/duckhub/internal/handlers"
	"github.com/veloce-hq/duckhub/internal/hub"
	"github.com/veloce-hq/duckhub/internal/middleware"
	"github.com/veloce-hq/duckhub/internal/ws"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	var hist game.HistoryFunc
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, game history disabled: %v", err)
	} else {
		hist = cache.PublishGameEnd
	}

	eng := engine.NewChessEngine()
	broker := ws.NewBroker()
	tracker := crowd.NewTracker()
	games := game.NewStore(store, store, eng, hist, logger)
	h := hub.New(broker, tracker, games, store, eng, logger)

	tracker.StartSweep(ctx, logger, store, time.Second, time.Minute)

	mux := http.NewServeMux()

	// user endpoints
	mux.Handle("/user/create", middleware.LogMiddleware(logger)(handlers.CreateUserHandler(logger, store)))
	mux.Handle("/user/login", middleware.LogMiddleware(logger)(handlers.LoginHandler(logger, store)))
	mux.Handle("/user/claim", middleware.LogMiddleware(logger)(handlers.ClaimGuestHandler(logger, store)))

	// the socket everything else rides on
	mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.WSHandler(logger, store, h)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.Infof("Running on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server exited: %v", err)
	}
}
