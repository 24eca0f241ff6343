package models

import "time"

// Pipeline run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunFailed      = "failed"
	RunFailedStale = "failed_stale"
)

// Step statuses within a run.
const (
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepFailed    = "failed"
)

// PipelineRun is the per-execution record. At most one row may be running;
// a row stuck in running past the stale threshold is transitioned to
// failed_stale on the next orchestrator startup.
type PipelineRun struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Status     string              `json:"status"`
	RunDate    string              `json:"run_date"` // YYYYMMDD
	Steps      map[string]StepInfo `json:"steps"`
	AreaFilter string              `json:"area_filter,omitempty"`
}

// StepInfo records one step's outcome. Reason is human-readable and set for
// skipped and failed steps ("no incremental changes", "LLM limit hit: 137 > 80").
type StepInfo struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ConfidenceReview persists a review decision for a spot natural key so a
// decision once applied is never re-asked.
type ConfidenceReview struct {
	SpotKey        string     `json:"spot_key"` // venue_id|type|period
	HeuristicScore float64    `json:"heuristic_score"`
	LLMDecision    *string    `json:"llm_decision"` // accept | reject | unsure | nil
	LLMReasoning   string     `json:"llm_reasoning"`
	AppliedAt      *time.Time `json:"applied_at"`
}

// Review decisions.
const (
	ReviewAccept = "accept"
	ReviewReject = "reject"
	ReviewUnsure = "unsure"
)

// AuditEntry is one append-only audit row. Diff is a JSON description of
// what changed; it is never null for UPDATEs.
type AuditEntry struct {
	ID        int64     `json:"id"`
	TableName string    `json:"table_name"`
	RowKey    string    `json:"row_key"`
	Action    string    `json:"action"` // INSERT | UPDATE | DELETE
	Actor     string    `json:"actor"`
	Diff      string    `json:"diff"`
	At        time.Time `json:"at"`
}

// Audit actions.
const (
	AuditInsert = "INSERT"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)
