// Package spots projects gold records and venues into user-visible spots,
// respecting curation state: manual overrides, pending edits, watchlist
// exclusions, deprecated activity types.
package spots

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
	"spots-pipeline/pkg/paths"
)

// actor stamped on automated mutations in the audit log.
const actor = "pipeline"

var (
	mCreated = metrics.Default.Counter("spots_created_total", "Spots created by materialization")
	mUpdated = metrics.Default.Counter("spots_updated_total", "Spots whose content changed")
	mSkipped = metrics.Default.Counter("spots_excluded_total", "Gold records skipped (watchlist/deprecated)")
)

// Store is the slice of the relational store the materializer needs.
type Store interface {
	GetVenueCtx(ctx context.Context, id string) (*models.Venue, error)
	GetSpotByVenueTypeCtx(ctx context.Context, venueID, spotType string) (*models.Spot, error)
	SaveSpotAudited(ctx context.Context, s *models.Spot, actor string) error
	ExcludedSetCtx(ctx context.Context) (map[string]bool, error)
	DeprecatedTypesCtx(ctx context.Context) (map[string]bool, error)
	GetStreakCtx(ctx context.Context, venueID, spotType string) (*models.Streak, error)
	SaveStreakCtx(ctx context.Context, s *models.Streak) error
}

// Result summarizes a materialization pass.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Excluded  int
}

// Materializer walks gold/ and upserts spots keyed (venue_id, type).
type Materializer struct {
	root  paths.Root
	store Store
	log   *logging.ComponentLogger
	now   func() time.Time
}

func New(root paths.Root, store Store, log *logging.Logger) *Materializer {
	return &Materializer{root: root, store: store, log: log.WithComponent("spots"), now: time.Now}
}

// SetClock pins streak dates for tests.
func (m *Materializer) SetClock(now func() time.Time) { m.now = now }

// Run materializes every gold record on disk.
func (m *Materializer) Run(ctx context.Context) (*Result, error) {
	entries, err := os.ReadDir(m.root.GoldRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{}, nil
		}
		return nil, err
	}

	excluded, err := m.store.ExcludedSetCtx(ctx)
	if err != nil {
		return nil, err
	}
	deprecated, err := m.store.DeprecatedTypesCtx(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		venueID := strings.TrimSuffix(e.Name(), ".json")

		var gold models.GoldRecord
		if err := paths.ReadJSON(m.root.GoldPath(venueID), &gold); err != nil {
			m.log.Error("unreadable gold record", err, logging.String("venue_id", venueID))
			continue
		}
		if !gold.HasPromotions() {
			continue
		}
		if excluded[venueID] {
			mSkipped.Inc(1)
			res.Excluded++
			continue
		}
		if err := m.materializeVenue(ctx, venueID, &gold, deprecated, res); err != nil {
			m.log.Error("materialize failed", err, logging.String("venue_id", venueID))
		}
	}
	return res, nil
}

func (m *Materializer) materializeVenue(ctx context.Context, venueID string, gold *models.GoldRecord, deprecated map[string]bool, res *Result) error {
	venue, err := m.store.GetVenueCtx(ctx, venueID)
	if err != nil {
		return err
	}
	if venue == nil {
		m.log.Warn("gold record for unknown venue", logging.String("venue_id", venueID))
		return nil
	}

	for _, entry := range gold.EntryList() {
		if deprecated[entry.Type] {
			mSkipped.Inc(1)
			res.Excluded++
			continue
		}
		if err := m.upsertSpot(ctx, venue, gold, entry, res); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) upsertSpot(ctx context.Context, venue *models.Venue, gold *models.GoldRecord, entry models.PromotionEntry, res *Result) error {
	existing, err := m.store.GetSpotByVenueTypeCtx(ctx, venue.ID, entry.Type)
	if err != nil {
		return err
	}

	desc := FormatDescription(entry)
	status := models.StatusApproved
	if gold.NeedsLLM {
		status = models.StatusPending
	}

	if existing == nil {
		spot := &models.Spot{
			VenueID:     &venue.ID,
			Title:       venue.Name,
			Description: desc,
			Type:        entry.Type,
			Lat:         venue.Lat,
			Lng:         venue.Lng,
			Area:        venue.AreaName(),
			Source:      models.SourceAutomated,
			Status:      status,
			SourceURL:   venue.Website,
			Confidence:  gold.Confidence,
		}
		if entry.Times != "" {
			spot.PromotionTime = &entry.Times
		}
		if err := m.store.SaveSpotAudited(ctx, spot, actor); err != nil {
			return err
		}
		mCreated.Inc(1)
		res.Created++
		m.log.Info("created spot", logging.String("title", spot.Title), logging.String("type", spot.Type))
		return m.bumpStreak(ctx, venue, entry.Type)
	}

	// Pending delete: leave the spot entirely alone until the admin decides.
	if existing.PendingDelete {
		res.Unchanged++
		return nil
	}

	changed := existing.Description != desc

	// Manual override: an admin owns the content fields; only refresh the
	// geo columns that trail the venue record.
	// Pending edit: defer ALL automated content updates until resolved.
	contentLocked := existing.ManualOverride || existing.HasPendingEdit()

	updated := *existing
	updated.Lat = venue.Lat
	updated.Lng = venue.Lng
	updated.Area = venue.AreaName()
	updated.Confidence = gold.Confidence
	if !contentLocked {
		updated.Title = venue.Name
		updated.Description = desc
		updated.Type = entry.Type
		if entry.Times != "" {
			updated.PromotionTime = &entry.Times
		}
		// Status stays whatever curation last set it to; the automated
		// path only decides it at creation time.
	}

	if err := m.store.SaveSpotAudited(ctx, &updated, actor); err != nil {
		return err
	}

	if changed && !contentLocked {
		mUpdated.Inc(1)
		res.Updated++
		m.log.Info(fmt.Sprintf("Updated spot: %s", updated.Title), logging.String("type", updated.Type))
		return m.bumpStreak(ctx, venue, entry.Type)
	}
	res.Unchanged++
	return nil
}

// bumpStreak increments the (venue, type) streak for today, resetting when
// a day was skipped.
func (m *Materializer) bumpStreak(ctx context.Context, venue *models.Venue, spotType string) error {
	today := m.now().Format("20060102")
	yesterday := m.now().AddDate(0, 0, -1).Format("20060102")

	s, err := m.store.GetStreakCtx(ctx, venue.ID, spotType)
	if err != nil {
		return err
	}
	switch {
	case s == nil:
		s = &models.Streak{VenueID: venue.ID, Type: spotType, Name: venue.Name, LastDate: today, Streak: 1}
	case s.LastDate == today:
		return nil // already counted today
	case s.LastDate == yesterday:
		s.Streak++
		s.LastDate = today
	default:
		s.Streak = 1
		s.LastDate = today
	}
	s.Name = venue.Name
	return m.store.SaveStreakCtx(ctx, s)
}

// FormatDescription renders a gold entry for display:
// "times • days • specials, joined" with a fallback when all parts are empty.
func FormatDescription(entry models.PromotionEntry) string {
	var parts []string
	if entry.Times != "" {
		parts = append(parts, entry.Times)
	}
	if entry.Days != "" {
		parts = append(parts, entry.Days)
	}
	if len(entry.Specials) > 0 {
		parts = append(parts, strings.Join(entry.Specials, ", "))
	}
	if len(parts) == 0 {
		if entry.Label != "" {
			return entry.Label + " available"
		}
		return "Happy Hour available"
	}
	return strings.Join(parts, " • ")
}

// WriteSnapshot dumps approved spots to reporting/spots.json for the
// serving layer.
func WriteSnapshot(ctx context.Context, root paths.Root, lister interface {
	ListSpotsCtx(ctx context.Context, status string) ([]models.Spot, error)
}) error {
	approved, err := lister.ListSpotsCtx(ctx, models.StatusApproved)
	if err != nil {
		return err
	}
	if approved == nil {
		approved = []models.Spot{}
	}
	return root.WriteJSONAtomic(root.SpotsSnapshotPath(), approved)
}
