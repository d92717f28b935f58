// internal/database/schema.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		is_guest BOOLEAN NOT NULL DEFAULT TRUE,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deactivated_at TIMESTAMPTZ,
		wins INT NOT NULL DEFAULT 0,
		losses INT NOT NULL DEFAULT 0,
		draws INT NOT NULL DEFAULT 0,
		games INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS perfs (
		user_id UUID NOT NULL REFERENCES users(id),
		key TEXT NOT NULL,
		rating DOUBLE PRECISION NOT NULL,
		deviation DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		games INT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		clock TEXT NOT NULL,
		status INT NOT NULL,
		winner TEXT,
		wclock BIGINT NOT NULL,
		bclock BIGINT NOT NULL,
		moves TEXT NOT NULL DEFAULT '',
		fen TEXT NOT NULL DEFAULT '',
		turn TEXT NOT NULL DEFAULT 'white',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		moved_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS game_players (
		game_id UUID NOT NULL REFERENCES games(id),
		user_id UUID NOT NULL REFERENCES users(id),
		color TEXT NOT NULL,
		rating INT NOT NULL,
		provisional BOOLEAN NOT NULL DEFAULT FALSE,
		rating_diff INT,
		is_winner BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (game_id, color)
	)`,
	`CREATE TABLE IF NOT EXISTS game_history (
		game_id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		white_user_id UUID NOT NULL,
		black_user_id UUID NOT NULL,
		wclock BIGINT NOT NULL,
		bclock BIGINT NOT NULL,
		plies INT NOT NULL,
		rating_diff_white INT NOT NULL DEFAULT 0,
		rating_diff_black INT NOT NULL DEFAULT 0,
		ended_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_deactivated_at ON users (deactivated_at)
		WHERE deactivated_at IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_game_players_user ON game_players (user_id)`,
}

// BotUsernames is the fixed pool of automated opponents the lobby pairs
// against on an hai request.
var BotUsernames = []string{"quacker", "pond-wasp", "decoy"}

// ensureSchema creates the tables on first run and seeds the bot pool.
func (s *Store) ensureSchema(ctx context.Context) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		for _, name := range BotUsernames {
			if _, err := tx.Exec(ctx, `
				INSERT INTO users (id, username, is_guest, is_bot)
				VALUES (gen_random_uuid(), $1, FALSE, TRUE)
				ON CONFLICT (username) DO NOTHING
			`, name); err != nil {
				return err
			}
		}
		return nil
	})
}
