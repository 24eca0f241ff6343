package database

import (
	"context"
	"database/sql"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
)

// GetReviewCtx returns the persisted confidence review for a spot key, nil
// when the key has never been reviewed. Keys survive across runs so a
// decision once applied is not re-asked.
func (db *DB) GetReviewCtx(ctx context.Context, spotKey string) (*models.ConfidenceReview, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var r models.ConfidenceReview
	var decision, reasoning sql.NullString
	var appliedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT spot_key, heuristic_score, llm_decision, llm_reasoning, applied_at
		 FROM reviews WHERE spot_key = ?`, spotKey).
		Scan(&r.SpotKey, &r.HeuristicScore, &decision, &reasoning, &appliedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetReviewCtx", "scan failed", err)
	}
	if decision.Valid {
		r.LLMDecision = &decision.String
	}
	if reasoning.Valid {
		r.LLMReasoning = reasoning.String
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		r.AppliedAt = &t
	}
	return &r, nil
}

// SaveReviewCtx upserts a review decision.
func (db *DB) SaveReviewCtx(ctx context.Context, r *models.ConfidenceReview) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `INSERT INTO reviews
		(spot_key, heuristic_score, llm_decision, llm_reasoning, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			heuristic_score = VALUES(heuristic_score), llm_decision = VALUES(llm_decision),
			llm_reasoning = VALUES(llm_reasoning), applied_at = VALUES(applied_at)`,
		r.SpotKey, r.HeuristicScore, r.LLMDecision, r.LLMReasoning, r.AppliedAt)
	if err != nil {
		return errs.NewDB("database.SaveReviewCtx", "upsert failed", err)
	}
	return nil
}

// ListUnsureReviewsCtx returns keys whose LLM pass came back unsure or never
// answered; they surface in the daily report as action items.
func (db *DB) ListUnsureReviewsCtx(ctx context.Context) ([]models.ConfidenceReview, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT spot_key, heuristic_score, llm_decision, llm_reasoning, applied_at
		 FROM reviews WHERE llm_decision IS NULL OR llm_decision = 'unsure'`)
	if err != nil {
		return nil, errs.NewDB("database.ListUnsureReviewsCtx", "query failed", err)
	}
	defer rows.Close()

	var out []models.ConfidenceReview
	for rows.Next() {
		var r models.ConfidenceReview
		var decision, reasoning sql.NullString
		var appliedAt sql.NullTime
		if err := rows.Scan(&r.SpotKey, &r.HeuristicScore, &decision, &reasoning, &appliedAt); err != nil {
			return nil, errs.NewDB("database.ListUnsureReviewsCtx", "scan failed", err)
		}
		if decision.Valid {
			r.LLMDecision = &decision.String
		}
		if reasoning.Valid {
			r.LLMReasoning = reasoning.String
		}
		if appliedAt.Valid {
			t := appliedAt.Time
			r.AppliedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
