package database

import (
	"context"
	"database/sql"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// GetStreakCtx returns the streak row for (venue, type), nil when absent.
func (db *DB) GetStreakCtx(ctx context.Context, venueID, spotType string) (*models.Streak, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var s models.Streak
	err := db.conn.QueryRowContext(ctx,
		`SELECT venue_id, type, name, last_date, streak FROM streaks WHERE venue_id = ? AND type = ?`,
		venueID, spotType).Scan(&s.VenueID, &s.Type, &s.Name, &s.LastDate, &s.Streak)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetStreakCtx", "scan failed", err)
	}
	return &s, nil
}

// UpsertStreakTx writes a streak row inside tx.
func (db *DB) UpsertStreakTx(ctx context.Context, tx *sql.Tx, s *models.Streak) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO streaks (venue_id, type, name, last_date, streak)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), last_date = VALUES(last_date), streak = VALUES(streak)`,
		s.VenueID, s.Type, s.Name, s.LastDate, s.Streak)
	if err != nil {
		return errs.NewDB("database.UpsertStreakTx", "upsert failed", err)
	}
	return nil
}
