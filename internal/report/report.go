// Package report renders the operator's daily digest: run outcome plus
// high/medium/low action buckets.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"spots-pipeline/internal/models"
)

// Severity buckets.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// ActionItem is one thing the operator should look at.
type ActionItem struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Report is the assembled daily digest.
type Report struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Run          *models.PipelineRun `json:"run,omitempty"`
	PendingSpots int                 `json:"pending_spots"`
	Actions      []ActionItem        `json:"actions"`
}

// Store is the slice of the relational store the report reads.
type Store interface {
	LatestRunCtx(ctx context.Context) (*models.PipelineRun, error)
	ListWatchlistCtx(ctx context.Context, status string) ([]models.WatchlistEntry, error)
	ListUnsureReviewsCtx(ctx context.Context) ([]models.ConfidenceReview, error)
	ListSpotsCtx(ctx context.Context, status string) ([]models.Spot, error)
}

// Build assembles the report from the store.
func Build(ctx context.Context, store Store, now time.Time) (*Report, error) {
	rep := &Report{GeneratedAt: now}

	run, err := store.LatestRunCtx(ctx)
	if err != nil {
		return nil, err
	}
	rep.Run = run

	if run != nil {
		switch run.Status {
		case models.RunFailed:
			rep.add(SeverityHigh, fmt.Sprintf("pipeline run %s failed", run.ID))
		case models.RunFailedStale:
			rep.add(SeverityHigh, fmt.Sprintf("pipeline run %s went stale and was recovered", run.ID))
		}
		names := make([]string, 0, len(run.Steps))
		for name := range run.Steps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			info := run.Steps[name]
			switch info.Status {
			case models.StepFailed:
				rep.add(SeverityHigh, fmt.Sprintf("step %s failed: %s", name, info.Reason))
			case models.StepSkipped:
				sev := SeverityLow
				if strings.Contains(info.Reason, "limit") || strings.Contains(info.Reason, "upstream") {
					// Budget-gate and dependency skips mean a whole night of
					// content was not processed.
					sev = SeverityMedium
				}
				rep.add(sev, fmt.Sprintf("step %s skipped: %s", name, info.Reason))
			}
		}
	} else {
		rep.add(SeverityMedium, "no pipeline run recorded yet")
	}

	unsure, err := store.ListUnsureReviewsCtx(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range unsure {
		rep.add(SeverityMedium, fmt.Sprintf("confidence review undecided for %s (heuristic %.2f)", r.SpotKey, r.HeuristicScore))
	}

	flagged, err := store.ListWatchlistCtx(ctx, models.WatchlistFlagged)
	if err != nil {
		return nil, err
	}
	for _, w := range flagged {
		rep.add(SeverityMedium, fmt.Sprintf("flagged venue %s (%s): %s", w.Name, w.VenueID, w.Reason))
	}

	pending, err := store.ListSpotsCtx(ctx, models.StatusPending)
	if err != nil {
		return nil, err
	}
	rep.PendingSpots = len(pending)
	if len(pending) > 0 {
		rep.add(SeverityLow, fmt.Sprintf("%d spots awaiting review", len(pending)))
	}

	return rep, nil
}

func (r *Report) add(severity, message string) {
	r.Actions = append(r.Actions, ActionItem{Severity: severity, Message: message})
}

// BySeverity filters the action list.
func (r *Report) BySeverity(severity string) []ActionItem {
	var out []ActionItem
	for _, a := range r.Actions {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// Render formats the report as terminal text.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report: %s\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	if r.Run != nil {
		fmt.Fprintf(&b, "Last run: %s (%s, started %s)\n", r.Run.ID, r.Run.Status, r.Run.StartedAt.Format(time.RFC3339))
		names := make([]string, 0, len(r.Run.Steps))
		for name := range r.Run.Steps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			info := r.Run.Steps[name]
			line := fmt.Sprintf("  %-12s %s", name, info.Status)
			if info.Reason != "" {
				line += " - " + info.Reason
			}
			b.WriteString(line + "\n")
		}
	}
	fmt.Fprintf(&b, "Pending spots: %d\n", r.PendingSpots)

	for _, sev := range []string{SeverityHigh, SeverityMedium, SeverityLow} {
		items := r.BySeverity(sev)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s priority:\n", strings.ToUpper(sev))
		for _, a := range items {
			fmt.Fprintf(&b, "  - %s\n", a.Message)
		}
	}
	if len(r.Actions) == 0 {
		b.WriteString("\nNo action items. Quiet night.\n")
	}
	return b.String()
}
