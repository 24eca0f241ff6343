package database

import (
	"context"
	"database/sql"
	"fmt"

	"spots-pipeline/internal/models"
)

// Audited convenience operations: each runs the mutation and its audit row
// in one transaction, so the log can never drift from the data.

// SaveSpotAudited inserts (ID == 0) or updates a spot.
func (db *DB) SaveSpotAudited(ctx context.Context, s *models.Spot, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		var before *models.Spot
		action := models.AuditInsert
		if s.ID != 0 {
			prev, err := db.GetSpotCtx(ctx, s.ID)
			if err != nil {
				return err
			}
			before = prev
			action = models.AuditUpdate
		}

		if s.ID == 0 {
			if err := db.InsertSpotTx(ctx, tx, s); err != nil {
				return err
			}
		} else if err := db.UpdateSpotTx(ctx, tx, s); err != nil {
			return err
		}

		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "spots",
			RowKey:    fmt.Sprintf("%d", s.ID),
			Action:    action,
			Actor:     actor,
			Diff:      AuditDiff(before, s),
		})
	})
}

// DeleteSpotAudited removes a spot and records what was deleted.
func (db *DB) DeleteSpotAudited(ctx context.Context, s *models.Spot, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.DeleteSpotTx(ctx, tx, s.ID); err != nil {
			return err
		}
		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "spots",
			RowKey:    fmt.Sprintf("%d", s.ID),
			Action:    models.AuditDelete,
			Actor:     actor,
			Diff:      AuditDiff(s, nil),
		})
	})
}

// UpsertWatchlistAudited writes a watchlist entry under audit.
func (db *DB) UpsertWatchlistAudited(ctx context.Context, w *models.WatchlistEntry, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.UpsertWatchlistTx(ctx, tx, w); err != nil {
			return err
		}
		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "watchlist",
			RowKey:    w.VenueID,
			Action:    models.AuditInsert,
			Actor:     actor,
			Diff:      AuditDiff(nil, w),
		})
	})
}

// UpsertVenueAudited writes one venue under audit; the seeder commits its
// merged map through this, one short transaction per venue.
func (db *DB) UpsertVenueAudited(ctx context.Context, v *models.Venue, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		before, err := db.GetVenueCtx(ctx, v.ID)
		if err != nil {
			return err
		}
		action := models.AuditInsert
		if before != nil {
			action = models.AuditUpdate
		}
		if err := db.UpsertVenueTx(ctx, tx, v); err != nil {
			return err
		}
		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "venues",
			RowKey:    v.ID,
			Action:    action,
			Actor:     actor,
			Diff:      AuditDiff(before, v),
		})
	})
}

// UpsertActivityAudited adds or flips an activity category under audit.
func (db *DB) UpsertActivityAudited(ctx context.Context, name string, deprecated bool, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.UpsertActivityTx(ctx, tx, name, deprecated); err != nil {
			return err
		}
		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "activities",
			RowKey:    name,
			Action:    models.AuditInsert,
			Actor:     actor,
			Diff:      AuditDiff(nil, map[string]any{"name": name, "deprecated": deprecated}),
		})
	})
}

// DeleteActivityAudited drops a proposed activity under audit.
func (db *DB) DeleteActivityAudited(ctx context.Context, name, actor string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.DeleteActivityTx(ctx, tx, name); err != nil {
			return err
		}
		return db.InsertAuditTx(ctx, tx, &models.AuditEntry{
			TableName: "activities",
			RowKey:    name,
			Action:    models.AuditDelete,
			Actor:     actor,
			Diff:      AuditDiff(map[string]any{"name": name}, nil),
		})
	})
}

// SaveStreakCtx writes a streak row in its own short transaction. Streak
// bumps are mechanical, not operator actions, so they are not audited.
func (db *DB) SaveStreakCtx(ctx context.Context, s *models.Streak) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.UpsertStreakTx(ctx, tx, s)
	})
}
