package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"spots-pipeline/internal/models"
)

type fakeReportStore struct {
	run     *models.PipelineRun
	flagged []models.WatchlistEntry
	unsure  []models.ConfidenceReview
	pending []models.Spot
}

func (f *fakeReportStore) LatestRunCtx(context.Context) (*models.PipelineRun, error) {
	return f.run, nil
}

func (f *fakeReportStore) ListWatchlistCtx(_ context.Context, status string) ([]models.WatchlistEntry, error) {
	if status == models.WatchlistFlagged {
		return f.flagged, nil
	}
	return nil, nil
}

func (f *fakeReportStore) ListUnsureReviewsCtx(context.Context) ([]models.ConfidenceReview, error) {
	return f.unsure, nil
}

func (f *fakeReportStore) ListSpotsCtx(_ context.Context, status string) ([]models.Spot, error) {
	if status == models.StatusPending {
		return f.pending, nil
	}
	return nil, nil
}

func TestBudgetGateSkipIsMediumSeverity(t *testing.T) {
	// Scenario E: the report carries a medium item naming the limit.
	store := &fakeReportStore{
		run: &models.PipelineRun{
			ID:        "r1",
			Status:    models.RunCompleted,
			StartedAt: time.Now(),
			Steps: map[string]models.StepInfo{
				"extract": {Status: models.StepSkipped, Reason: "LLM limit hit: 137 > 50"},
			},
		},
	}

	rep, err := Build(context.Background(), store, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	medium := rep.BySeverity(SeverityMedium)
	found := false
	for _, a := range medium {
		if strings.Contains(a.Message, "137 > 50") {
			found = true
		}
	}
	if !found {
		t.Errorf("medium bucket missing limit item: %+v", rep.Actions)
	}
}

func TestFailedRunIsHighSeverity(t *testing.T) {
	store := &fakeReportStore{
		run: &models.PipelineRun{
			ID: "r2", Status: models.RunFailed, StartedAt: time.Now(),
			Steps: map[string]models.StepInfo{
				"fetch": {Status: models.StepFailed, Reason: "network down"},
			},
		},
	}
	rep, err := Build(context.Background(), store, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.BySeverity(SeverityHigh)) < 2 { // run + step
		t.Errorf("high bucket = %+v", rep.Actions)
	}
}

func TestUnsureReviewsAndFlaggedVenuesSurface(t *testing.T) {
	store := &fakeReportStore{
		run:     &models.PipelineRun{ID: "r3", Status: models.RunCompleted, StartedAt: time.Now(), Steps: map[string]models.StepInfo{}},
		unsure:  []models.ConfidenceReview{{SpotKey: "v1|Happy Hour|4pm-7pm", HeuristicScore: 0.5}},
		flagged: []models.WatchlistEntry{{VenueID: "v2", Name: "Odd Bar", Reason: "menu looks stale"}},
		pending: []models.Spot{{ID: 1, Status: models.StatusPending}},
	}
	rep, err := Build(context.Background(), store, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.BySeverity(SeverityMedium)) != 2 {
		t.Errorf("medium = %+v", rep.Actions)
	}
	if rep.PendingSpots != 1 {
		t.Errorf("pendingSpots = %d", rep.PendingSpots)
	}

	text := rep.Render()
	for _, want := range []string{"v1|Happy Hour|4pm-7pm", "Odd Bar", "Pending spots: 1"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestQuietNight(t *testing.T) {
	store := &fakeReportStore{
		run: &models.PipelineRun{ID: "r4", Status: models.RunCompleted, StartedAt: time.Now(), Steps: map[string]models.StepInfo{
			"fetch": {Status: models.StepCompleted},
		}},
	}
	rep, err := Build(context.Background(), store, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Actions) != 0 {
		t.Errorf("actions = %+v", rep.Actions)
	}
	if !strings.Contains(rep.Render(), "Quiet night") {
		t.Error("quiet-night line missing")
	}
}
