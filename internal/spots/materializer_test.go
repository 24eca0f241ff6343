package spots

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"spots-pipeline/internal/models"
	testutil "spots-pipeline/internal/testing"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

func fixedClock() time.Time {
	return time.Date(2026, 1, 21, 3, 0, 0, 0, time.UTC)
}

func seedGold(t *testing.T, root paths.Root, venueID string, found bool, entry models.PromotionEntry) {
	t.Helper()
	rec := models.GoldRecord{
		VenueID:          venueID,
		VenueName:        "venue " + venueID,
		ExtractedAt:      "2026-01-21T03:00:00Z",
		ExtractionMethod: models.ExtractionIncremental,
		SourceHash:       "0123456789abcdef",
		Promotions:       &models.Promotions{Found: found},
	}
	if found {
		rec.Promotions.Entries = []models.PromotionEntry{entry}
	}
	if err := root.WriteJSONAtomic(root.GoldPath(venueID), &rec); err != nil {
		t.Fatal(err)
	}
}

func seedVenue(store *testutil.FakeStore, id, name, area string) {
	a := area
	site := "https://" + id + ".example.com"
	store.Venues[id] = &models.Venue{
		ID: id, Name: name, Lat: 32.78, Lng: -79.93, Area: &a, Website: &site,
	}
}

func happyHourEntry() models.PromotionEntry {
	return models.PromotionEntry{
		Type:     "Happy Hour",
		Days:     "Monday-Friday",
		Times:    "4pm-7pm",
		Label:    "Happy Hour",
		Specials: []string{"$2 off all drinks"},
	}
}

func newMaterializer(t *testing.T) (*Materializer, *testutil.FakeStore, paths.Root) {
	t.Helper()
	root := paths.New(t.TempDir())
	store := testutil.NewFakeStore()
	m := New(root, store, logging.Nop())
	m.SetClock(fixedClock)
	return m, store, root
}

func TestMaterializeCreatesApprovedSpot(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Paul Stewart's Tavern", "Downtown Charleston")
	seedGold(t, root, "v1", true, happyHourEntry())

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("created = %d, want 1", res.Created)
	}

	spot, _ := store.GetSpotByVenueTypeCtx(context.Background(), "v1", "Happy Hour")
	if spot == nil {
		t.Fatal("spot missing")
	}
	if spot.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", spot.Status)
	}
	if spot.Title != "Paul Stewart's Tavern" {
		t.Errorf("title = %q", spot.Title)
	}
	for _, want := range []string{"4pm-7pm", "Monday-Friday", "$2 off all drinks"} {
		if !strings.Contains(spot.Description, want) {
			t.Errorf("description missing %q: %q", want, spot.Description)
		}
	}
	if !strings.Contains(spot.Description, " • ") {
		t.Errorf("description missing bullet separator: %q", spot.Description)
	}
	if spot.Area != "Downtown Charleston" {
		t.Errorf("area = %q", spot.Area)
	}

	// Audit row for the insert exists with the pipeline actor.
	found := false
	for _, a := range store.Audit {
		if a.TableName == "spots" && a.Action == models.AuditInsert && a.Actor == "pipeline" {
			found = true
		}
	}
	if !found {
		t.Error("no audit row for spot creation")
	}
}

func TestMaterializeSkipsExcludedVenue(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Reported Bar", "Downtown Charleston")
	store.Watchlist["v1"] = &models.WatchlistEntry{VenueID: "v1", Status: models.WatchlistExcluded}
	seedGold(t, root, "v1", true, happyHourEntry())

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Excluded != 1 {
		t.Errorf("res = %+v, want 0 created 1 excluded", res)
	}
	if len(store.Spots) != 0 {
		t.Error("excluded venue produced a spot")
	}
}

func TestMaterializeSkipsDeprecatedType(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")
	store.Activities["Happy Hour"] = true // deprecated
	seedGold(t, root, "v1", true, happyHourEntry())

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 {
		t.Errorf("created = %d, want 0", res.Created)
	}
}

func TestMaterializeNoPromotionNoSpot(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Quiet Cafe", "Downtown Charleston")
	seedGold(t, root, "v1", false, models.PromotionEntry{})

	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.Spots) != 0 {
		t.Error("found=false gold produced a spot")
	}
}

func TestManualOverridePreserved(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")

	edited := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	vid := "v1"
	store.Spots[7] = &models.Spot{
		ID: 7, VenueID: &vid, Title: "Admin Title", Description: "Admin description",
		Type: "Happy Hour", Source: models.SourceAutomated, Status: models.StatusApproved,
		ManualOverride: true, EditedAt: &edited,
	}

	seedGold(t, root, "v1", true, happyHourEntry())
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	spot := store.Spots[7]
	if spot.Title != "Admin Title" || spot.Description != "Admin description" {
		t.Errorf("override fields changed: %q / %q", spot.Title, spot.Description)
	}
	if spot.EditedAt == nil || !spot.EditedAt.Equal(edited) {
		t.Error("edited_at not preserved")
	}
	// Geo columns still refresh.
	if spot.Lat != 32.78 {
		t.Errorf("lat not refreshed: %v", spot.Lat)
	}
}

func TestPendingEditDefersAutomatedContent(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")

	vid := "v1"
	edit, _ := json.Marshal(models.SpotEdit{})
	store.Spots[3] = &models.Spot{
		ID: 3, VenueID: &vid, Title: "Old Title", Description: "Old description",
		Type: "Happy Hour", Source: models.SourceAutomated, Status: models.StatusApproved,
		PendingEdit: edit,
	}

	seedGold(t, root, "v1", true, happyHourEntry())
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	spot := store.Spots[3]
	if spot.Description != "Old description" {
		t.Errorf("pending edit did not defer automated update: %q", spot.Description)
	}
}

func TestStreakIncrementsOnContentChange(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")

	vid := "v1"
	store.Spots[1] = &models.Spot{
		ID: 1, VenueID: &vid, Title: "Tavern", Description: "old text",
		Type: "Happy Hour", Source: models.SourceAutomated, Status: models.StatusApproved,
	}
	store.Streaks["v1|Happy Hour"] = &models.Streak{
		VenueID: "v1", Type: "Happy Hour", LastDate: "20260120", Streak: 3,
	}

	seedGold(t, root, "v1", true, happyHourEntry())
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 {
		t.Fatalf("updated = %d, want 1", res.Updated)
	}
	s := store.Streaks["v1|Happy Hour"]
	if s.Streak != 4 || s.LastDate != "20260121" {
		t.Errorf("streak = %+v, want 4 @ 20260121", s)
	}
}

func TestStreakResetsAfterGap(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")

	vid := "v1"
	store.Spots[1] = &models.Spot{
		ID: 1, VenueID: &vid, Title: "Tavern", Description: "old text",
		Type: "Happy Hour", Source: models.SourceAutomated, Status: models.StatusApproved,
	}
	store.Streaks["v1|Happy Hour"] = &models.Streak{
		VenueID: "v1", Type: "Happy Hour", LastDate: "20260115", Streak: 9,
	}

	seedGold(t, root, "v1", true, happyHourEntry())
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := store.Streaks["v1|Happy Hour"]
	if s.Streak != 1 {
		t.Errorf("streak after gap = %d, want 1", s.Streak)
	}
}

func TestStreakUnchangedWhenDescriptionStable(t *testing.T) {
	m, store, root := newMaterializer(t)
	seedVenue(store, "v1", "Tavern", "Downtown Charleston")

	entry := happyHourEntry()
	vid := "v1"
	store.Spots[1] = &models.Spot{
		ID: 1, VenueID: &vid, Title: "Tavern", Description: FormatDescription(entry),
		Type: "Happy Hour", Source: models.SourceAutomated, Status: models.StatusApproved,
	}
	store.Streaks["v1|Happy Hour"] = &models.Streak{
		VenueID: "v1", Type: "Happy Hour", LastDate: "20260120", Streak: 3,
	}

	seedGold(t, root, "v1", true, entry)
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 0 {
		t.Errorf("updated = %d, want 0", res.Updated)
	}
	if store.Streaks["v1|Happy Hour"].Streak != 3 {
		t.Error("streak moved without a content change")
	}
}

func TestFormatDescriptionFallback(t *testing.T) {
	got := FormatDescription(models.PromotionEntry{Type: "Happy Hour"})
	if got != "Happy Hour available" {
		t.Errorf("fallback = %q", got)
	}
}
