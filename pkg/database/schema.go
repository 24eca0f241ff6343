package database

import (
	"context"

	errs "spots-pipeline/pkg/errors"
)

// EnsureSchema creates missing tables. The statements are idempotent so a
// fresh deployment and an existing one take the same path.
func (db *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS venues (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			area VARCHAR(64) NULL,
			address VARCHAR(512) NULL,
			website VARCHAR(512) NULL,
			zip_codes TEXT NULL,
			address_components MEDIUMTEXT NULL,
			operating_hours TEXT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_venues_area (area)
		)`,
		`CREATE TABLE IF NOT EXISTS spots (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			venue_id VARCHAR(128) NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			type VARCHAR(64) NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			area VARCHAR(64) NOT NULL DEFAULT '',
			source VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			manual_override TINYINT(1) NOT NULL DEFAULT 0,
			pending_edit TEXT NULL,
			pending_delete TINYINT(1) NOT NULL DEFAULT 0,
			photo_url VARCHAR(512) NULL,
			source_url VARCHAR(512) NULL,
			edited_at DATETIME NULL,
			promotion_time VARCHAR(128) NULL,
			confidence DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_spots_venue_type (venue_id, type),
			INDEX idx_spots_status (status)
		)`,
		`CREATE TABLE IF NOT EXISTS gold_meta (
			venue_id VARCHAR(128) PRIMARY KEY,
			venue_name VARCHAR(255) NOT NULL,
			source_hash CHAR(16) NOT NULL,
			source_modified_at VARCHAR(40) NOT NULL DEFAULT '',
			extraction_method VARCHAR(24) NOT NULL,
			extracted_at DATETIME NOT NULL,
			needs_llm TINYINT(1) NOT NULL DEFAULT 0,
			found TINYINT(1) NOT NULL DEFAULT 0,
			confidence DOUBLE NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			name VARCHAR(64) PRIMARY KEY,
			value VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			venue_id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			area VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			reason VARCHAR(512) NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS areas (
			name VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(128) NOT NULL,
			south DOUBLE NOT NULL, west DOUBLE NOT NULL,
			north DOUBLE NOT NULL, east DOUBLE NOT NULL,
			center_lat DOUBLE NOT NULL, center_lng DOUBLE NOT NULL,
			radius_m INT NOT NULL,
			zip_codes TEXT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			venue_id VARCHAR(128) NOT NULL,
			type VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			last_date CHAR(8) NOT NULL,
			streak INT NOT NULL DEFAULT 0,
			PRIMARY KEY (venue_id, type)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id VARCHAR(40) PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NULL,
			status VARCHAR(16) NOT NULL,
			run_date CHAR(8) NOT NULL,
			steps MEDIUMTEXT NULL,
			area_filter VARCHAR(64) NOT NULL DEFAULT '',
			INDEX idx_runs_status (status)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			table_name VARCHAR(64) NOT NULL,
			row_key VARCHAR(160) NOT NULL,
			action VARCHAR(8) NOT NULL,
			actor VARCHAR(64) NOT NULL,
			diff MEDIUMTEXT NOT NULL,
			at DATETIME NOT NULL,
			INDEX idx_audit_row (table_name, row_key)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			name VARCHAR(64) PRIMARY KEY,
			deprecated TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			spot_key VARCHAR(224) PRIMARY KEY,
			heuristic_score DOUBLE NOT NULL,
			llm_decision VARCHAR(8) NULL,
			llm_reasoning TEXT NULL,
			applied_at DATETIME NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.conn.ExecContext(ctx, s); err != nil {
			return errs.NewDB("database.EnsureSchema", "ddl failed", err)
		}
	}
	return nil
}
