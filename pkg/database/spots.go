package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

const selectSpotCols = `SELECT id, venue_id, title, description, type, lat, lng, area,
	source, status, manual_override, pending_edit, pending_delete, photo_url,
	source_url, edited_at, promotion_time, confidence, created_at, updated_at`

func scanSpot(row interface{ Scan(...any) error }) (*models.Spot, error) {
	var s models.Spot
	var venueID, pendingEdit, photo, srcURL, promoTime sql.NullString
	var editedAt sql.NullTime
	if err := row.Scan(&s.ID, &venueID, &s.Title, &s.Description, &s.Type, &s.Lat, &s.Lng,
		&s.Area, &s.Source, &s.Status, &s.ManualOverride, &pendingEdit, &s.PendingDelete,
		&photo, &srcURL, &editedAt, &promoTime, &s.Confidence, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if venueID.Valid {
		s.VenueID = &venueID.String
	}
	if pendingEdit.Valid && pendingEdit.String != "" {
		s.PendingEdit = json.RawMessage(pendingEdit.String)
	}
	if photo.Valid {
		s.PhotoURL = &photo.String
	}
	if srcURL.Valid {
		s.SourceURL = &srcURL.String
	}
	if editedAt.Valid {
		t := editedAt.Time
		s.EditedAt = &t
	}
	if promoTime.Valid {
		s.PromotionTime = &promoTime.String
	}
	return &s, nil
}

// GetSpotCtx returns one spot by id, nil when absent.
func (db *DB) GetSpotCtx(ctx context.Context, id int64) (*models.Spot, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectSpotCols+` FROM spots WHERE id = ?`, id)
	s, err := scanSpot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetSpotCtx", "scan failed", err)
	}
	return s, nil
}

// GetSpotByVenueTypeCtx fetches a spot by its natural key.
func (db *DB) GetSpotByVenueTypeCtx(ctx context.Context, venueID, spotType string) (*models.Spot, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.stmts["getSpotByKey"].QueryRowContext(ctx, venueID, spotType)
	s, err := scanSpot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetSpotByVenueTypeCtx", "scan failed", err)
	}
	return s, nil
}

// ListSpotsCtx returns spots, optionally filtered by status ("" = all).
func (db *DB) ListSpotsCtx(ctx context.Context, status string) ([]models.Spot, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := selectSpotCols + ` FROM spots`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("database.ListSpotsCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, errs.NewDB("database.ListSpotsCtx", "scan failed", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// InsertSpotTx inserts a new spot and backfills its id.
func (db *DB) InsertSpotTx(ctx context.Context, tx *sql.Tx, s *models.Spot) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `INSERT INTO spots
		(venue_id, title, description, type, lat, lng, area, source, status,
		 manual_override, pending_edit, pending_delete, photo_url, source_url,
		 edited_at, promotion_time, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.VenueID, s.Title, s.Description, s.Type, s.Lat, s.Lng, s.Area, s.Source,
		s.Status, s.ManualOverride, rawOrNil(s.PendingEdit), s.PendingDelete,
		s.PhotoURL, s.SourceURL, s.EditedAt, s.PromotionTime, s.Confidence,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return errs.NewDB("database.InsertSpotTx", "insert failed", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.NewDB("database.InsertSpotTx", "last insert id", err)
	}
	s.ID = id
	return nil
}

// UpdateSpotTx rewrites the mutable columns of an existing spot.
func (db *DB) UpdateSpotTx(ctx context.Context, tx *sql.Tx, s *models.Spot) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, `UPDATE spots SET
		title = ?, description = ?, type = ?, lat = ?, lng = ?, area = ?,
		source = ?, status = ?, manual_override = ?, pending_edit = ?,
		pending_delete = ?, photo_url = ?, source_url = ?, edited_at = ?,
		promotion_time = ?, confidence = ?, updated_at = ?
		WHERE id = ?`,
		s.Title, s.Description, s.Type, s.Lat, s.Lng, s.Area, s.Source, s.Status,
		s.ManualOverride, rawOrNil(s.PendingEdit), s.PendingDelete, s.PhotoURL,
		s.SourceURL, s.EditedAt, s.PromotionTime, s.Confidence, s.UpdatedAt, s.ID)
	if err != nil {
		return errs.NewDB("database.UpdateSpotTx", "update failed", err)
	}
	return nil
}

// DeleteSpotTx removes a spot.
func (db *DB) DeleteSpotTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM spots WHERE id = ?`, id); err != nil {
		return errs.NewDB("database.DeleteSpotTx", "delete failed", err)
	}
	return nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
