package database

import (
	"context"
	"database/sql"
	"time"

	errs "spots-pipeline/pkg/errors"
)

// GoldMeta mirrors the gating fields of an on-disk gold record. The full
// document lives at gold/<venueId>.json; the store keeps what queries need:
// the source hash for skip decisions and the flags the report pivots on.
type GoldMeta struct {
	VenueID          string
	VenueName        string
	SourceHash       string
	SourceModifiedAt string
	ExtractionMethod string
	ExtractedAt      time.Time
	NeedsLLM         bool
	Found            bool
	Confidence       float64
}

// GetGoldHashCtx returns the stored source hash for a venue, "" when the
// venue has never been extracted.
func (db *DB) GetGoldHashCtx(ctx context.Context, venueID string) (string, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var h string
	err := db.stmts["getGoldHash"].QueryRowContext(ctx, venueID).Scan(&h)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errs.NewDB("database.GetGoldHashCtx", "scan failed", err)
	}
	return h, nil
}

// GetGoldMetaCtx returns the full meta row, nil when absent.
func (db *DB) GetGoldMetaCtx(ctx context.Context, venueID string) (*GoldMeta, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var g GoldMeta
	err := db.conn.QueryRowContext(ctx, `SELECT venue_id, venue_name, source_hash,
		source_modified_at, extraction_method, extracted_at, needs_llm, found, confidence
		FROM gold_meta WHERE venue_id = ?`, venueID).
		Scan(&g.VenueID, &g.VenueName, &g.SourceHash, &g.SourceModifiedAt,
			&g.ExtractionMethod, &g.ExtractedAt, &g.NeedsLLM, &g.Found, &g.Confidence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetGoldMetaCtx", "scan failed", err)
	}
	return &g, nil
}

// UpsertGoldMetaCtx records an extraction outcome.
func (db *DB) UpsertGoldMetaCtx(ctx context.Context, g *GoldMeta) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `INSERT INTO gold_meta
		(venue_id, venue_name, source_hash, source_modified_at, extraction_method,
		 extracted_at, needs_llm, found, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			venue_name = VALUES(venue_name), source_hash = VALUES(source_hash),
			source_modified_at = VALUES(source_modified_at),
			extraction_method = VALUES(extraction_method),
			extracted_at = VALUES(extracted_at), needs_llm = VALUES(needs_llm),
			found = VALUES(found), confidence = VALUES(confidence)`,
		g.VenueID, g.VenueName, g.SourceHash, g.SourceModifiedAt, g.ExtractionMethod,
		g.ExtractedAt, g.NeedsLLM, g.Found, g.Confidence)
	if err != nil {
		return errs.NewDB("database.UpsertGoldMetaCtx", "upsert failed", err)
	}
	return nil
}

// ListNeedsLLMCtx returns venue ids whose last extraction failed schema
// validation and is waiting for a retry.
func (db *DB) ListNeedsLLMCtx(ctx context.Context, olderThan time.Time) ([]string, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT venue_id FROM gold_meta WHERE needs_llm = 1 AND extracted_at <= ?`, olderThan)
	if err != nil {
		return nil, errs.NewDB("database.ListNeedsLLMCtx", "query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.NewDB("database.ListNeedsLLMCtx", "scan failed", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
