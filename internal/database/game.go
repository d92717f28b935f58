// internal/database/game.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veloce-hq/duckhub/internal/models"
)

// InsertGame persists a freshly created match: the games row and both player
// rows in one transaction.
func (s *Store) InsertGame(ctx context.Context, g *models.Game) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO games (id, clock, status, wclock, bclock, moves, fen, turn, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, g.ID, g.Clock, g.Status, g.WClock, g.BClock,
			strings.Join(g.Moves, " "), g.FEN, g.Turn, g.CreatedAt)
		if err != nil {
			return err
		}
		for _, p := range []models.Player{g.White, g.Black} {
			_, err := tx.Exec(ctx, `
				INSERT INTO game_players (game_id, user_id, color, rating, provisional)
				VALUES ($1, $2, $3, $4, $5)
			`, g.ID, p.UserID, p.Color, p.Rating, p.Provisional)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert game %s: %w", g.ID, err)
	}
	return nil
}

// GameByID loads a match with both player rows.
func (s *Store) GameByID(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var g models.Game
	var moves string
	var winner *string
	err := s.db.QueryRow(ctx, `
		SELECT id, clock, status, winner, wclock, bclock, moves, fen, turn, created_at, moved_at
		FROM games WHERE id = $1
	`, id).Scan(&g.ID, &g.Clock, &g.Status, &winner, &g.WClock, &g.BClock,
		&moves, &g.FEN, &g.Turn, &g.CreatedAt, &g.MovedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", id, err)
	}
	if moves != "" {
		g.Moves = strings.Fields(moves)
	}
	if winner != nil {
		c := models.Color(*winner)
		g.Winner = &c
	}

	rows, err := s.db.Query(ctx, `
		SELECT gp.user_id, u.username, gp.color, gp.rating, gp.provisional, gp.rating_diff, gp.is_winner
		FROM game_players gp JOIN users u ON u.id = gp.user_id
		WHERE gp.game_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.UserID, &p.Username, &p.Color, &p.Rating, &p.Provisional, &p.RatingDiff, &p.IsWinner); err != nil {
			return nil, err
		}
		if p.Color == models.White {
			g.White = p
		} else {
			g.Black = p
		}
	}
	return &g, rows.Err()
}

// MoveUpdate is what one accepted move writes back.
type MoveUpdate struct {
	ID      uuid.UUID
	Status  models.GameStatus
	Moves   []string
	FEN     string
	Turn    models.Color
	WClock  int64
	BClock  int64
	MovedAt time.Time
}

// SaveMove persists the board encoding, move list, turn and both clocks after
// an accepted move.
func (s *Store) SaveMove(ctx context.Context, u MoveUpdate) error {
	_, err := s.db.Exec(ctx, `
		UPDATE games SET status = $1, moves = $2, fen = $3, turn = $4,
			wclock = $5, bclock = $6, moved_at = $7
		WHERE id = $8
	`, u.Status, strings.Join(u.Moves, " "), u.FEN, u.Turn, u.WClock, u.BClock, u.MovedAt, u.ID)
	if err != nil {
		return fmt.Errorf("failed to save move for game %s: %w", u.ID, err)
	}
	return nil
}

// FinishUpdate is what a terminal transition writes back.
type FinishUpdate struct {
	ID     uuid.UUID
	Status models.GameStatus
	Winner *models.Color
	WClock int64
	BClock int64
}

// FinishGame persists final status, winner and both clocks atomically.
func (s *Store) FinishGame(ctx context.Context, u FinishUpdate) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE games SET status = $1, winner = $2, wclock = $3, bclock = $4
			WHERE id = $5
		`, u.Status, u.Winner, u.WClock, u.BClock, u.ID)
		if err != nil {
			return err
		}
		if u.Winner != nil {
			_, err = tx.Exec(ctx, `
				UPDATE game_players SET is_winner = TRUE
				WHERE game_id = $1 AND color = $2
			`, u.ID, *u.Winner)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to finish game %s: %w", u.ID, err)
	}
	return nil
}
