package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// CreateRunCtx inserts a new running row. The caller must have recovered
// stale runs first; a second concurrently running row is an integrity
// violation surfaced by ActiveRunCtx.
func (db *DB) CreateRunCtx(ctx context.Context, run *models.PipelineRun) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	steps, _ := json.Marshal(run.Steps)
	_, err := db.conn.ExecContext(ctx, `INSERT INTO pipeline_runs
		(id, started_at, finished_at, status, run_date, steps, area_filter)
		VALUES (?, ?, NULL, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Status, run.RunDate, string(steps), run.AreaFilter)
	if err != nil {
		return errs.NewDB("database.CreateRunCtx", "insert failed", err)
	}
	return nil
}

// UpdateRunCtx rewrites status, steps and finished_at for a run.
func (db *DB) UpdateRunCtx(ctx context.Context, run *models.PipelineRun) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	steps, _ := json.Marshal(run.Steps)
	_, err := db.conn.ExecContext(ctx, `UPDATE pipeline_runs SET
		status = ?, steps = ?, finished_at = ? WHERE id = ?`,
		run.Status, string(steps), run.FinishedAt, run.ID)
	if err != nil {
		return errs.NewDB("database.UpdateRunCtx", "update failed", err)
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*models.PipelineRun, error) {
	var r models.PipelineRun
	var finished sql.NullTime
	var steps sql.NullString
	if err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.RunDate, &steps, &r.AreaFilter); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Steps = map[string]models.StepInfo{}
	if steps.Valid && steps.String != "" {
		_ = json.Unmarshal([]byte(steps.String), &r.Steps)
	}
	return &r, nil
}

const selectRunCols = `SELECT id, started_at, finished_at, status, run_date, steps, area_filter FROM pipeline_runs`

// ActiveRunCtx returns the running row if one exists.
func (db *DB) ActiveRunCtx(ctx context.Context) (*models.PipelineRun, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectRunCols+` WHERE status = 'running' ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.ActiveRunCtx", "scan failed", err)
	}
	return r, nil
}

// LatestRunCtx returns the most recent run of any status.
func (db *DB) LatestRunCtx(ctx context.Context) (*models.PipelineRun, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectRunCols+` ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.LatestRunCtx", "scan failed", err)
	}
	return r, nil
}

// RecoverStaleRunsCtx transitions running rows older than the threshold to
// failed_stale and returns how many it touched.
func (db *DB) RecoverStaleRunsCtx(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	cutoff := time.Now().UTC().Add(-threshold)
	res, err := db.conn.ExecContext(ctx, `UPDATE pipeline_runs
		SET status = ?, finished_at = ? WHERE status = 'running' AND started_at < ?`,
		models.RunFailedStale, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, errs.NewDB("database.RecoverStaleRunsCtx", "update failed", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
