package database

import (
	"context"
	"database/sql"
	"strings"

	errs "spots-pipeline/pkg/errors"
)

// AreaRow mirrors one configured area into the store so reports can join on
// it. Config on disk stays the source of truth; this table is refreshed at
// process start.
type AreaRow struct {
	Name        string
	DisplayName string
	South, West float64
	North, East float64
	CenterLat   float64
	CenterLng   float64
	RadiusM     int
	ZipCodes    []string
}

// SyncAreasCtx replaces the areas mirror with the loaded config.
func (db *DB) SyncAreasCtx(ctx context.Context, rows []AreaRow) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM areas`); err != nil {
			return errs.NewDB("database.SyncAreasCtx", "clear failed", err)
		}
		for _, a := range rows {
			_, err := tx.ExecContext(ctx, `INSERT INTO areas
				(name, display_name, south, west, north, east, center_lat, center_lng, radius_m, zip_codes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.Name, a.DisplayName, a.South, a.West, a.North, a.East,
				a.CenterLat, a.CenterLng, a.RadiusM, strings.Join(a.ZipCodes, ","))
			if err != nil {
				return errs.NewDB("database.SyncAreasCtx", "insert "+a.Name, err)
			}
		}
		return nil
	})
}
