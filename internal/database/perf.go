// internal/database/perf.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veloce-hq/duckhub/internal/models"
	"github.com/veloce-hq/duckhub/internal/rating"
)

// PerfFor loads the user's rating record for one bucket, falling back to the
// default triple for a user who has never played it. Errors only on a missing
// user or a failing query, so lobby seeks can treat errors as fatal.
func (s *Store) PerfFor(ctx context.Context, userID uuid.UUID, key models.PerfKey) (*models.Perf, error) {
	var p models.Perf
	err := s.db.QueryRow(ctx, `
		SELECT user_id, key, rating, deviation, volatility, games
		FROM perfs WHERE user_id = $1 AND key = $2
	`, userID, key).Scan(&p.UserID, &p.Key, &p.Rating, &p.Deviation, &p.Volatility, &p.Games)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.UserByID(ctx, userID); err != nil {
			return nil, err
		}
		def := rating.Default()
		return &models.Perf{
			UserID:     userID,
			Key:        key,
			Rating:     def.Rating,
			Deviation:  def.Deviation,
			Volatility: def.Volatility,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading perf %s/%s: %w", userID, key, err)
	}
	return &p, nil
}

// RatingApplication carries everything one terminal transition writes for the
// rating side: both updated perfs, the display deltas, and the outcome for
// the win/loss/draw counters.
type RatingApplication struct {
	GameID    uuid.UUID
	Key       models.PerfKey
	White     models.Perf
	Black     models.Perf
	DiffWhite int
	DiffBlack int
	// Winner is nil for a draw.
	Winner *models.Color
}

// ApplyRating persists a match's rating outcome in a single transaction:
// perf upserts with bumped game counters, user win/loss/draw counters, and
// the per-player rating diffs on the match record.
func (s *Store) ApplyRating(ctx context.Context, app RatingApplication) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO perfs (user_id, key, rating, deviation, volatility, games)
			VALUES ($1, $2, $3, $4, $5, 1)
			ON CONFLICT (user_id, key) DO UPDATE SET
				rating = $3, deviation = $4, volatility = $5,
				games = perfs.games + 1
		`
		for _, p := range []models.Perf{app.White, app.Black} {
			if _, err := tx.Exec(ctx, upsert, p.UserID, app.Key, p.Rating, p.Deviation, p.Volatility); err != nil {
				return err
			}
		}

		counters := func(userID uuid.UUID, col string) error {
			q := fmt.Sprintf(`UPDATE users SET %s = %s + 1, games = games + 1 WHERE id = $1`, col, col)
			_, err := tx.Exec(ctx, q, userID)
			return err
		}
		switch {
		case app.Winner == nil:
			if err := counters(app.White.UserID, "draws"); err != nil {
				return err
			}
			if err := counters(app.Black.UserID, "draws"); err != nil {
				return err
			}
		case *app.Winner == models.White:
			if err := counters(app.White.UserID, "wins"); err != nil {
				return err
			}
			if err := counters(app.Black.UserID, "losses"); err != nil {
				return err
			}
		default:
			if err := counters(app.White.UserID, "losses"); err != nil {
				return err
			}
			if err := counters(app.Black.UserID, "wins"); err != nil {
				return err
			}
		}

		diffs := `UPDATE game_players SET rating_diff = $1 WHERE game_id = $2 AND color = $3`
		if _, err := tx.Exec(ctx, diffs, app.DiffWhite, app.GameID, models.White); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, diffs, app.DiffBlack, app.GameID, models.Black); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply rating for game %s: %w", app.GameID, err)
	}
	return nil
}
