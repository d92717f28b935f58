// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veloce-hq/duckhub/internal/auth"
	"github.com/veloce-hq/duckhub/internal/models"
)

const userColumns = `id, username, email, password, is_guest, is_bot,
	created_at, seen_at, deactivated_at, wins, losses, draws, games`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Password, &u.IsGuest, &u.IsBot,
		&u.CreatedAt, &u.SeenAt, &u.DeactivatedAt,
		&u.Wins, &u.Losses, &u.Draws, &u.Games,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateGuest provisions a fresh guest identity with a generated username.
// Retries with a random suffix on the rare username collision.
func (s *Store) CreateGuest(ctx context.Context) (*models.User, error) {
	u := &models.User{
		ID:        uuid.New(),
		Username:  auth.GenerateUsername(),
		IsGuest:   true,
		CreatedAt: time.Now(),
		SeenAt:    time.Now(),
	}

	var err error
	for attempt := 0; attempt < 4; attempt++ {
		_, err = s.db.Exec(ctx, `
			INSERT INTO users (id, username, is_guest, created_at, seen_at)
			VALUES ($1, $2, TRUE, $3, $4)
		`, u.ID, u.Username, u.CreatedAt, u.SeenAt)
		if err == nil {
			return u, nil
		}
		u.Username = auth.GenerateUsername()
	}
	return nil, fmt.Errorf("failed to insert guest user: %w", err)
}

// UserByID loads one user.
func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, err
}

// UserByUsername loads one user by username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(s.db.QueryRow(ctx, q, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q not found", username)
	}
	return u, err
}

// Bots lists the automated opponent pool.
func (s *Store) Bots(ctx context.Context) ([]*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE is_bot AND deactivated_at IS NULL`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, u)
	}
	return bots, rows.Err()
}

// TouchSeen bumps the user's seen_at timestamp.
func (s *Store) TouchSeen(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET seen_at = now() WHERE id = $1`, id)
	return err
}

// ClaimGuest upgrades a guest account with credentials.
func (s *Store) ClaimGuest(ctx context.Context, id uuid.UUID, email, password, username string) error {
	hash, err := auth.CreateHash(password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET email = $1, password = $2,
				username = COALESCE(NULLIF($3, ''), username),
				is_guest = FALSE
			WHERE id = $4 AND is_guest
		`, email, hash, username, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s is not a claimable guest", id)
		}
		return nil
	})
}

// Deactivate soft-marks the account inactive. The crowd sweep picks it up
// within the next window.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET deactivated_at = now()
		WHERE id = $1 AND deactivated_at IS NULL
	`, id)
	return err
}

// RecentlyDeactivated lists user ids deactivated at or after the given time.
func (s *Store) RecentlyDeactivated(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM users WHERE deactivated_at IS NOT NULL AND deactivated_at >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
