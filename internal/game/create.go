// internal/game/create.go
package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/veloce-hq/duckhub/internal/engine"
	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/rating"

	"github.com/google/uuid"
)

// Seat is one paired user together with the rating snapshot for the match's
// perf bucket.
type Seat struct {
	User *models.User
	Perf rating.Rating
}

// Inserter persists a new match atomically: the match row and both player
// rows together.
type Inserter interface {
	InsertGame(ctx context.Context, g *models.Game) error
}

// CreateMatch constructs and persists a new match between two seats with a
// uniform random color assignment and a full clock on both sides.
func CreateMatch(ctx context.Context, repo Inserter, eng engine.Engine, a, b Seat, clock models.TimeControl) (*models.Game, error) {
	if !clock.Valid() {
		return nil, fmt.Errorf("unknown time control %q", clock)
	}

	if rand.Intn(2) == 0 {
		a, b = b, a
	}

	player := func(s Seat, c models.Color) models.Player {
		return models.Player{
			UserID:      s.User.ID,
			Username:    s.User.Username,
			Color:       c,
			Rating:      s.Perf.Floor(),
			Provisional: s.Perf.Provisional(),
		}
	}

	budget := clock.ClockMillis()
	g := &models.Game{
		ID:        uuid.New(),
		Clock:     clock,
		White:     player(a, models.White),
		Black:     player(b, models.Black),
		Status:    models.StatusCreated,
		WClock:    budget,
		BClock:    budget,
		FEN:       eng.Start().FEN(),
		Turn:      models.White,
		CreatedAt: time.Now(),
	}

	if err := repo.InsertGame(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}
