package database

import (
	"context"
	"database/sql"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// IsExcludedCtx reports whether a venue is on the excluded watchlist.
func (db *DB) IsExcludedCtx(ctx context.Context, venueID string) (bool, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var n int
	if err := db.stmts["isExcluded"].QueryRowContext(ctx, venueID).Scan(&n); err != nil {
		return false, errs.NewDB("database.IsExcludedCtx", "scan failed", err)
	}
	return n > 0, nil
}

// ExcludedSetCtx loads all excluded venue ids at once; the materializer
// checks hundreds of gold records per run.
func (db *DB) ExcludedSetCtx(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT venue_id FROM watchlist WHERE status = 'excluded'`)
	if err != nil {
		return nil, errs.NewDB("database.ExcludedSetCtx", "query failed", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.NewDB("database.ExcludedSetCtx", "scan failed", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListWatchlistCtx returns entries, optionally filtered by status.
func (db *DB) ListWatchlistCtx(ctx context.Context, status string) ([]models.WatchlistEntry, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT venue_id, name, area, status, reason, updated_at FROM watchlist`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("database.ListWatchlistCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.WatchlistEntry
	for rows.Next() {
		var w models.WatchlistEntry
		if err := rows.Scan(&w.VenueID, &w.Name, &w.Area, &w.Status, &w.Reason, &w.UpdatedAt); err != nil {
			return nil, errs.NewDB("database.ListWatchlistCtx", "scan failed", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpsertWatchlistTx inserts or refreshes a watchlist entry inside tx.
func (db *DB) UpsertWatchlistTx(ctx context.Context, tx *sql.Tx, w *models.WatchlistEntry) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, `INSERT INTO watchlist
		(venue_id, name, area, status, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), area = VALUES(area), status = VALUES(status),
			reason = VALUES(reason), updated_at = VALUES(updated_at)`,
		w.VenueID, w.Name, w.Area, w.Status, w.Reason, w.UpdatedAt)
	if err != nil {
		return errs.NewDB("database.UpsertWatchlistTx", "upsert failed", err)
	}
	return nil
}
