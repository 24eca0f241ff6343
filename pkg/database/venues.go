package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

const selectVenueCols = `SELECT id, name, lat, lng, area, address, website, zip_codes,
	address_components, operating_hours, created_at, updated_at`

func scanVenue(row interface{ Scan(...any) error }) (*models.Venue, error) {
	var v models.Venue
	var area, address, website, zips, comps, hours sql.NullString
	if err := row.Scan(&v.ID, &v.Name, &v.Lat, &v.Lng, &area, &address, &website,
		&zips, &comps, &hours, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if area.Valid {
		v.Area = &area.String
	}
	if address.Valid {
		v.Address = &address.String
	}
	if website.Valid {
		v.Website = &website.String
	}
	if zips.Valid && zips.String != "" {
		v.ZipCodes = strings.Split(zips.String, ",")
	}
	if comps.Valid {
		v.AddressComponents = json.RawMessage(comps.String)
	}
	if hours.Valid {
		v.OperatingHours = json.RawMessage(hours.String)
	}
	return &v, nil
}

// GetVenueCtx returns one venue or nil when absent.
func (db *DB) GetVenueCtx(ctx context.Context, id string) (*models.Venue, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectVenueCols+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetVenueCtx", "scan failed", err)
	}
	return v, nil
}

// ListVenuesCtx returns venues, optionally filtered to one area.
func (db *DB) ListVenuesCtx(ctx context.Context, areaFilter string) ([]models.Venue, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := selectVenueCols + ` FROM venues`
	args := []any{}
	if areaFilter != "" {
		query += ` WHERE area = ?`
		args = append(args, areaFilter)
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("database.ListVenuesCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, errs.NewDB("database.ListVenuesCtx", "scan failed", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.ListVenuesCtx", "row iteration error", err)
	}
	return out, nil
}

// UpsertVenueTx inserts or refreshes a venue inside tx. Existing rows keep
// their created_at; the seeder never shrinks this table.
func (db *DB) UpsertVenueTx(ctx context.Context, tx *sql.Tx, v *models.Venue) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	var zips any
	if len(v.ZipCodes) > 0 {
		zips = strings.Join(v.ZipCodes, ",")
	}
	var comps, hours any
	if len(v.AddressComponents) > 0 {
		comps = string(v.AddressComponents)
	}
	if len(v.OperatingHours) > 0 {
		hours = string(v.OperatingHours)
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO venues
		(id, name, lat, lng, area, address, website, zip_codes, address_components, operating_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), lat = VALUES(lat), lng = VALUES(lng),
			area = VALUES(area), address = VALUES(address), website = VALUES(website),
			zip_codes = VALUES(zip_codes), address_components = VALUES(address_components),
			operating_hours = VALUES(operating_hours), updated_at = VALUES(updated_at)`,
		v.ID, v.Name, v.Lat, v.Lng, v.Area, v.Address, v.Website, zips, comps, hours,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return errs.NewDB("database.UpsertVenueTx", "upsert failed", err)
	}
	return nil
}

// DistinctAreasCtx returns the set of areas venues have historically been
// assigned to; the seeder warns when the loaded config covers fewer.
func (db *DB) DistinctAreasCtx(ctx context.Context) ([]string, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT area FROM venues WHERE area IS NOT NULL ORDER BY area`)
	if err != nil {
		return nil, errs.NewDB("database.DistinctAreasCtx", "query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, errs.NewDB("database.DistinctAreasCtx", "scan failed", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountVenuesCtx reports the venues table size.
func (db *DB) CountVenuesCtx(ctx context.Context) (int, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n); err != nil {
		return 0, errs.NewDB("database.CountVenuesCtx", "count failed", err)
	}
	return n, nil
}
