// Package curation applies admin callbacks to the store. Semantics live
// here as a pure event→mutation mapping; the HTTP transport that delivers
// callbacks is glue in the CLI's serve command.
package curation

import (
	"context"
	"encoding/json"
	"time"

	"spots-pipeline/internal/models"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
)

// Store is the slice of the relational store the bridge mutates. Every
// implementation commits the audit row with the mutation.
type Store interface {
	GetSpotCtx(ctx context.Context, id int64) (*models.Spot, error)
	SaveSpotAudited(ctx context.Context, s *models.Spot, actor string) error
	DeleteSpotAudited(ctx context.Context, s *models.Spot, actor string) error
	UpsertWatchlistAudited(ctx context.Context, w *models.WatchlistEntry, actor string) error
	UpsertActivityAudited(ctx context.Context, name string, deprecated bool, actor string) error
	DeleteActivityAudited(ctx context.Context, name, actor string) error
	GetVenueCtx(ctx context.Context, id string) (*models.Venue, error)
}

// Bridge applies parsed admin events.
type Bridge struct {
	store Store
	log   *logging.ComponentLogger
	now   func() time.Time
}

func New(store Store, log *logging.Logger) *Bridge {
	return &Bridge{store: store, log: log.WithComponent("curation"), now: time.Now}
}

// Apply executes one event. Events for the same spot apply in receipt
// order; the caller serializes delivery.
func (b *Bridge) Apply(ctx context.Context, ev *Event) error {
	switch ev.Action {
	case ActionActivityAdd:
		return b.store.UpsertActivityAudited(ctx, ev.ActivityName, false, ev.Actor)
	case ActionActivityDeny:
		return b.store.DeleteActivityAudited(ctx, ev.ActivityName, ev.Actor)
	}

	spot, err := b.store.GetSpotCtx(ctx, ev.SpotID)
	if err != nil {
		return err
	}
	if spot == nil {
		return errs.NewValidation("curation.Apply", "no such spot", nil)
	}

	switch ev.Action {
	case ActionApprove:
		spot.Status = models.StatusApproved
		return b.saveSpot(ctx, spot, ev)

	case ActionDeny:
		spot.Status = models.StatusDenied
		return b.saveSpot(ctx, spot, ev)

	case ActionEditApprove:
		if !spot.HasPendingEdit() {
			return errs.NewValidation("curation.Apply", "no pending edit", nil)
		}
		var edit models.SpotEdit
		if err := json.Unmarshal(spot.PendingEdit, &edit); err != nil {
			return errs.NewValidation("curation.Apply", "corrupt pending edit", err)
		}
		if edit.Title != nil {
			spot.Title = *edit.Title
		}
		if edit.Description != nil {
			spot.Description = *edit.Description
		}
		if edit.Type != nil {
			spot.Type = *edit.Type
		}
		spot.PendingEdit = nil
		spot.ManualOverride = true
		now := b.now().UTC()
		spot.EditedAt = &now
		return b.saveSpot(ctx, spot, ev)

	case ActionEditDeny:
		spot.PendingEdit = nil
		return b.saveSpot(ctx, spot, ev)

	case ActionDeleteApprove:
		// Deleting an automated spot also excludes the venue, otherwise the
		// next run would just recreate it.
		if spot.Source == models.SourceAutomated && spot.VenueID != nil {
			if err := b.excludeVenue(ctx, *spot.VenueID, "admin approved spot deletion", ev.Actor); err != nil {
				return err
			}
		}
		return b.store.DeleteSpotAudited(ctx, spot, ev.Actor)

	case ActionDeleteDeny:
		spot.PendingDelete = false
		return b.saveSpot(ctx, spot, ev)

	case ActionReportExclude:
		if spot.VenueID != nil {
			if err := b.excludeVenue(ctx, *spot.VenueID, "user report accepted", ev.Actor); err != nil {
				return err
			}
		}
		return b.store.DeleteSpotAudited(ctx, spot, ev.Actor)

	case ActionReportKeep:
		// Report dismissed; nothing changes beyond the acknowledgment.
		b.log.Info("report dismissed", logging.Int64("spot_id", ev.SpotID), logging.String("actor", ev.Actor))
		return nil
	}

	return errs.NewValidation("curation.Apply", "unhandled action", nil)
}

func (b *Bridge) saveSpot(ctx context.Context, spot *models.Spot, ev *Event) error {
	if err := b.store.SaveSpotAudited(ctx, spot, ev.Actor); err != nil {
		return err
	}
	b.log.Info("applied admin action",
		logging.String("action", ev.Action.String()),
		logging.Int64("spot_id", spot.ID))
	return nil
}

func (b *Bridge) excludeVenue(ctx context.Context, venueID, reason, actor string) error {
	entry := &models.WatchlistEntry{
		VenueID: venueID,
		Status:  models.WatchlistExcluded,
		Reason:  reason,
	}
	if v, err := b.store.GetVenueCtx(ctx, venueID); err == nil && v != nil {
		entry.Name = v.Name
		entry.Area = v.AreaName()
	}
	return b.store.UpsertWatchlistAudited(ctx, entry, actor)
}
