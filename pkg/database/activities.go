package database

import (
	"context"
	"database/sql"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// ListActivitiesCtx returns all activity categories.
func (db *DB) ListActivitiesCtx(ctx context.Context) ([]models.Activity, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT name, deprecated, created_at FROM activities ORDER BY name`)
	if err != nil {
		return nil, errs.NewDB("database.ListActivitiesCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.Name, &a.Deprecated, &a.CreatedAt); err != nil {
			return nil, errs.NewDB("database.ListActivitiesCtx", "scan failed", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeprecatedTypesCtx returns the set of activity names the materializer must
// skip.
func (db *DB) DeprecatedTypesCtx(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM activities WHERE deprecated = 1`)
	if err != nil {
		return nil, errs.NewDB("database.DeprecatedTypesCtx", "query failed", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errs.NewDB("database.DeprecatedTypesCtx", "scan failed", err)
		}
		out[n] = true
	}
	return out, rows.Err()
}

// UpsertActivityTx adds or reactivates an activity category inside tx.
func (db *DB) UpsertActivityTx(ctx context.Context, tx *sql.Tx, name string, deprecated bool) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activities (name, deprecated, created_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE deprecated = VALUES(deprecated)`,
		name, deprecated, time.Now().UTC())
	if err != nil {
		return errs.NewDB("database.UpsertActivityTx", "upsert failed", err)
	}
	return nil
}

// DeleteActivityTx drops a proposed activity inside tx.
func (db *DB) DeleteActivityTx(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE name = ?`, name); err != nil {
		return errs.NewDB("database.DeleteActivityTx", "delete failed", err)
	}
	return nil
}
