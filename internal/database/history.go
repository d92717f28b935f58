// internal/database/history.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veloce-hq/duckhub/internal/cache"
	"github.com/veloce-hq/duckhub/internal/models"
)

// ArchiveGameEnds writes a batch of finished-game records to the history
// table in one transaction. Records already archived are skipped, so the
// historian can safely re-process a queue entry.
func (s *Store) ArchiveGameEnds(ctx context.Context, recs []cache.GameEndRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			_, err := tx.Exec(ctx, `
				INSERT INTO game_history (game_id, status, winner, white_user_id, black_user_id,
					wclock, bclock, plies, rating_diff_white, rating_diff_black, ended_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (game_id) DO NOTHING
			`, rec.GameID, rec.Status, rec.Winner, rec.WhiteUserID, rec.BlackUserID,
				rec.WClock, rec.BClock, rec.Plies, rec.RatingDiffWhite, rec.RatingDiffBlack,
				time.UnixMilli(rec.Timestamp))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to archive %d game records: %w", len(recs), err)
	}
	return nil
}

// AbortStaleGames marks non-terminal games with no activity since the cutoff
// as aborted, guarding against rows orphaned by a crashed server. Returns the
// number of games it touched.
func (s *Store) AbortStaleGames(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE games SET status = $1
		WHERE status < $2 AND COALESCE(moved_at, created_at) < $3
	`, models.StatusAborted, models.StatusEnded, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to abort stale games: %w", err)
	}
	return tag.RowsAffected(), nil
}
