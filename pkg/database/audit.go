package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// InsertAuditTx appends an audit row inside the same transaction as the
// mutation it describes. Diff must be non-empty JSON.
func (db *DB) InsertAuditTx(ctx context.Context, tx *sql.Tx, e *models.AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Diff == "" {
		e.Diff = "{}"
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (table_name, row_key, action, actor, diff, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.TableName, e.RowKey, e.Action, e.Actor, e.Diff, e.At)
	if err != nil {
		return errs.NewDB("database.InsertAuditTx", "insert failed", err)
	}
	return nil
}

// AuditDiff marshals a small before/after payload for the diff column.
func AuditDiff(before, after any) string {
	b, err := json.Marshal(map[string]any{"before": before, "after": after})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ListAuditCtx returns recent audit rows for a table/row, newest first.
func (db *DB) ListAuditCtx(ctx context.Context, tableName, rowKey string, limit int) ([]models.AuditEntry, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, table_name, row_key, action, actor, diff, at FROM audit_log
		 WHERE table_name = ? AND row_key = ? ORDER BY at DESC, id DESC LIMIT ?`,
		tableName, rowKey, limit)
	if err != nil {
		return nil, errs.NewDB("database.ListAuditCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.TableName, &e.RowKey, &e.Action, &e.Actor, &e.Diff, &e.At); err != nil {
			return nil, errs.NewDB("database.ListAuditCtx", "scan failed", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
