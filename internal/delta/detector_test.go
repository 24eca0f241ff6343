package delta

import (
	"fmt"
	"os"
	"testing"
	"time"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

func fixedClock() time.Time {
	return time.Date(2026, 1, 21, 3, 0, 0, 0, time.UTC)
}

func writeTrimmed(t *testing.T, root paths.Root, dir, venueID, text string) {
	t.Helper()
	doc := models.TrimmedDocument{
		VenueID:   venueID,
		VenueName: "venue " + venueID,
		ScrapedAt: "2026-01-20T03:00:00Z",
		Pages:     []models.TrimmedPage{{URL: "https://" + venueID + ".example.com", Text: text}},
	}
	var path string
	if dir == "previous" {
		path = root.TrimmedPreviousPath(venueID)
	} else {
		path = root.TrimmedPath(venueID)
	}
	if err := root.WriteJSONAtomic(path, &doc); err != nil {
		t.Fatal(err)
	}
}

func TestDetectorScaleBound(t *testing.T) {
	// 100 venues: 5 real content changes, 95 that differ only in
	// timestamps/dates. Exactly 5 changed, 0 new.
	dir := t.TempDir()
	root := paths.New(dir)
	d := New(root, logging.Nop())
	d.SetClock(fixedClock)

	var venues []models.Venue
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("v%03d", i)
		venues = append(venues, models.Venue{ID: id, Name: "venue " + id})

		base := fmt.Sprintf("Welcome to venue %s. Great food and drinks.", id)
		if i < 5 {
			writeTrimmed(t, root, "previous", id, base+" Updated 2026-01-19T10:00:00Z")
			writeTrimmed(t, root, "all", id, base+" Happy Hour Monday-Friday 4pm-7pm! Updated 2026-01-20T10:00:00Z")
		} else {
			writeTrimmed(t, root, "previous", id, base+" Updated 2026-01-19T10:00:00Z ga UA-1111111-1")
			writeTrimmed(t, root, "all", id, base+" Updated 2026-01-20T10:00:00Z ga UA-2222222-9")
		}
	}

	summary, err := d.Run(venues)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Changed) != 5 {
		t.Errorf("changed = %d, want 5 (%v)", len(summary.Changed), summary.Changed)
	}
	if len(summary.New) != 0 {
		t.Errorf("new = %d, want 0", len(summary.New))
	}
	if len(summary.Unchanged) != 95 {
		t.Errorf("unchanged = %d, want 95", len(summary.Unchanged))
	}

	// The work-set on disk matches the summary.
	entries, err := os.ReadDir(root.IncrementalRoot())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("incremental files = %d, want 5", len(entries))
	}
}

func TestDetectorNewVenue(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)
	d := New(root, logging.Nop())
	d.SetClock(fixedClock)

	writeTrimmed(t, root, "all", "v1", "Brand new tavern, happy hour daily")
	summary, err := d.Run([]models.Venue{{ID: "v1", Name: "v1"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.New) != 1 || summary.New[0] != "v1" {
		t.Errorf("new = %v, want [v1]", summary.New)
	}
	if _, err := os.Stat(root.IncrementalPath("v1")); err != nil {
		t.Errorf("new venue missing from incremental: %v", err)
	}
}

func TestDetectorTimestampOnlyChurn(t *testing.T) {
	// Scenario B: merged pages differ only in an embedded update stamp.
	dir := t.TempDir()
	root := paths.New(dir)
	d := New(root, logging.Nop())
	d.SetClock(fixedClock)

	writeTrimmed(t, root, "previous", "v1", `Menu. "Updated 2026-01-20T16:45:12.123Z"`)
	writeTrimmed(t, root, "all", "v1", `Menu. "Updated 2026-01-21T16:45:12.999Z"`)

	summary, err := d.Run([]models.Venue{{ID: "v1", Name: "v1"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Unchanged) != 1 {
		t.Fatalf("want unchanged, got summary %+v", summary)
	}
	if _, err := os.Stat(root.IncrementalPath("v1")); !os.IsNotExist(err) {
		t.Error("timestamp-only venue leaked into the work-set")
	}
}

func TestPromoteToPreviousMakesRerunStable(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)
	d := New(root, logging.Nop())
	d.SetClock(fixedClock)

	writeTrimmed(t, root, "all", "v1", "Fresh content with happy hour")
	venues := []models.Venue{{ID: "v1", Name: "v1"}}

	if _, err := d.Run(venues); err != nil {
		t.Fatal(err)
	}
	if err := d.PromoteToPrevious(); err != nil {
		t.Fatal(err)
	}

	summary, err := d.Run(venues)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Unchanged) != 1 {
		t.Errorf("rerun after promote should be unchanged, got %+v", summary)
	}
}

func TestSourceHashShape(t *testing.T) {
	d := New(paths.New(t.TempDir()), logging.Nop())
	d.SetClock(fixedClock)
	doc := &models.TrimmedDocument{Pages: []models.TrimmedPage{{Text: "hello"}}}
	h := d.SourceHash(doc)
	if len(h) != 16 {
		t.Fatalf("source hash length = %d, want 16", len(h))
	}
	for _, c := range h {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("source hash not hex: %q", h)
		}
	}
}
