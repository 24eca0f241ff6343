// Package seeder discovers venues through Places nearby and text searches
// and keeps the venues table canonical. Idempotent by venue id; a seeding
// pass can add and refresh venues but never shrinks the table.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"spots-pipeline/internal/areas"
	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/circuit"
	"spots-pipeline/pkg/config"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
)

var (
	mRequests   = metrics.Default.Counter("seed_provider_requests_total", "Places API requests issued")
	mCandidates = metrics.Default.Counter("seed_candidates_total", "Distinct place candidates discovered")
	mUpserts    = metrics.Default.Counter("seed_upserts_total", "Venues written")
)

// PlacesClient is the slice of the Google Maps client the seeder calls.
type PlacesClient interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// VenueStore is the slice of the store the seeder mutates.
type VenueStore interface {
	UpsertVenueAudited(ctx context.Context, v *models.Venue, actor string) error
	CountVenuesCtx(ctx context.Context) (int, error)
	DistinctAreasCtx(ctx context.Context) ([]string, error)
}

// Stats summarizes a seeding pass.
type Stats struct {
	Requests    int64
	Candidates  int
	Upserted    int
	FailedAreas []string
}

// Seeder sweeps each configured area.
type Seeder struct {
	client  PlacesClient
	store   VenueStore
	set     *areas.Set
	seeding config.Seeding
	cb      *circuit.Breaker
	limiter *rate.Limiter
	log     *logging.ComponentLogger

	requests int64 // atomic; enforced against DailyRequestCap
}

func New(client PlacesClient, store VenueStore, set *areas.Set, seeding config.Seeding, log *logging.Logger) *Seeder {
	return &Seeder{
		client:  client,
		store:   store,
		set:     set,
		seeding: seeding,
		cb: circuit.New(circuit.Config{
			Name:              "places",
			OperationTimeout:  constants.PlacesOperationTimeout,
			OpenFor:           constants.PlacesOpenFor,
			MaxConsecFailures: 3,
			WindowSize:        20,
			FailureRate:       constants.CircuitFailureRate,
			SlowCallThreshold: constants.PlacesSlowCallThreshold,
			SlowCallRate:      constants.CircuitSlowCallRate,
		}),
		limiter: rate.NewLimiter(rate.Limit(8), 8), // pace under the provider QPS ceiling
		log:     log.WithComponent("seeder"),
	}
}

// Run sweeps every area. A failed area is logged and skipped; its existing
// venues are left untouched. All results merge into one in-memory map
// before commit so a partial pass can never erase an area.
func (s *Seeder) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if hist, err := s.store.DistinctAreasCtx(ctx); err == nil && len(hist) > len(s.set.Areas) {
		s.log.Warn("area config covers fewer areas than history",
			logging.Int("configured", len(s.set.Areas)),
			logging.Int("historical", len(hist)))
	}

	merged := map[string]*models.Venue{}
	var mergedMu sync.Mutex

	for i := range s.set.Areas {
		area := &s.set.Areas[i]
		if ctx.Err() != nil {
			break
		}
		found, err := s.sweepArea(ctx, area)
		if err != nil {
			stats.FailedAreas = append(stats.FailedAreas, area.Name)
			s.log.Error("area sweep failed", err, logging.String("area", area.Name))
			continue
		}
		mergedMu.Lock()
		for id, v := range found {
			merged[id] = v
		}
		mergedMu.Unlock()
	}

	stats.Requests = atomic.LoadInt64(&s.requests)
	stats.Candidates = len(merged)
	mCandidates.Inc(int64(len(merged)))

	for _, v := range merged {
		if ctx.Err() != nil {
			break
		}
		if err := s.store.UpsertVenueAudited(ctx, v, "seeder"); err != nil {
			s.log.Error("venue upsert failed", err, logging.String("venue_id", v.ID))
			continue
		}
		mUpserts.Inc(1)
		stats.Upserted++
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// sweepArea runs the nearby grid plus the curated text phrases for one
// area and resolves each distinct candidate to a venue.
func (s *Seeder) sweepArea(ctx context.Context, area *areas.Area) (map[string]*models.Venue, error) {
	placeIDs := map[string]bool{}
	var idsMu sync.Mutex
	var firstErr error
	var errMu sync.Mutex

	sem := make(chan struct{}, s.seeding.MaxInFlight)
	var wg sync.WaitGroup

	collect := func(resp maps.PlacesSearchResponse) {
		idsMu.Lock()
		defer idsMu.Unlock()
		for _, r := range resp.Results {
			placeIDs[r.PlaceID] = true
		}
	}
	fail := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	// Nearby sweeps: one request per (grid point, establishment type).
	for _, pt := range gridPoints(area.Bounds, s.seeding.GridStep) {
		for _, placeType := range s.seeding.EstablishmentTypes {
			pt, placeType := pt, placeType
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}
				resp, err := s.nearby(ctx, pt, placeType)
				if err != nil {
					fail(err)
					return
				}
				collect(resp)
			}()
		}
	}

	// Curated text searches.
	for _, phrase := range s.seeding.SearchPhrases {
		query := fmt.Sprintf(phrase, area.DisplayName)
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			resp, err := s.textSearch(ctx, query)
			if err != nil {
				fail(err)
				return
			}
			collect(resp)
		}()
	}

	wg.Wait()
	if firstErr != nil && len(placeIDs) == 0 {
		return nil, firstErr
	}

	// Resolve candidates serially under the same budget; details calls are
	// the expensive part of the sweep.
	out := map[string]*models.Venue{}
	for placeID := range placeIDs {
		if ctx.Err() != nil {
			break
		}
		v, err := s.resolvePlace(ctx, placeID)
		if err != nil {
			s.log.Warn("place details failed", logging.String("place_id", placeID), logging.Error(err))
			continue
		}
		if v != nil {
			out[v.ID] = v
		}
	}
	return out, nil
}

func (s *Seeder) budget(ctx context.Context) error {
	if n := atomic.AddInt64(&s.requests, 1); s.seeding.DailyRequestCap > 0 && n > int64(s.seeding.DailyRequestCap) {
		return errs.NewExternal("seeder.budget", "places", "daily request cap reached", nil)
	}
	mRequests.Inc(1)
	return s.limiter.Wait(ctx)
}

func (s *Seeder) nearby(ctx context.Context, pt maps.LatLng, placeType string) (maps.PlacesSearchResponse, error) {
	var resp maps.PlacesSearchResponse
	if err := s.budget(ctx); err != nil {
		return resp, err
	}
	err := s.cb.Do(ctx, func(ctx context.Context) error {
		r, e := s.client.NearbySearch(ctx, &maps.NearbySearchRequest{
			Location: &pt,
			Radius:   s.seeding.SearchRadiusM,
			Type:     maps.PlaceType(placeType),
		})
		if e != nil {
			return e
		}
		resp = r
		return nil
	}, nil)
	return resp, err
}

func (s *Seeder) textSearch(ctx context.Context, query string) (maps.PlacesSearchResponse, error) {
	var resp maps.PlacesSearchResponse
	if err := s.budget(ctx); err != nil {
		return resp, err
	}
	err := s.cb.Do(ctx, func(ctx context.Context) error {
		r, e := s.client.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
		if e != nil {
			return e
		}
		resp = r
		return nil
	}, nil)
	return resp, err
}

// resolvePlace fetches full details and classifies the venue into an area.
// Venues outside the metro box are dropped.
func (s *Seeder) resolvePlace(ctx context.Context, placeID string) (*models.Venue, error) {
	if err := s.budget(ctx); err != nil {
		return nil, err
	}
	var details maps.PlaceDetailsResult
	err := s.cb.Do(ctx, func(ctx context.Context) error {
		d, e := s.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
			PlaceID: placeID,
			Fields: []maps.PlaceDetailsFieldMask{
				maps.PlaceDetailsFieldMaskName,
				maps.PlaceDetailsFieldMaskPlaceID,
				maps.PlaceDetailsFieldMaskFormattedAddress,
				maps.PlaceDetailsFieldMaskGeometry,
				maps.PlaceDetailsFieldMaskAddressComponent,
				maps.PlaceDetailsFieldMaskWebsite,
				maps.PlaceDetailsFieldMaskOpeningHours,
			},
		})
		if e != nil {
			return e
		}
		details = d
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	lat := details.Geometry.Location.Lat
	lng := details.Geometry.Location.Lng
	if !s.set.MetroBounds.Contains(lat, lng) {
		return nil, nil
	}

	cand := areas.Candidate{
		Lat:     lat,
		Lng:     lng,
		Address: details.FormattedAddress,
	}
	for _, comp := range details.AddressComponents {
		cand.Components = append(cand.Components, areas.AddressComponent{
			LongName: comp.LongName,
			Types:    comp.Types,
		})
		for _, t := range comp.Types {
			if t == "postal_code" {
				cand.Zip = comp.LongName
			}
		}
	}
	areaName := s.set.Classify(cand)

	v := &models.Venue{
		ID:   details.PlaceID,
		Name: details.Name,
		Lat:  lat,
		Lng:  lng,
	}
	if areaName != "" {
		v.Area = &areaName
	}
	if details.FormattedAddress != "" {
		addr := details.FormattedAddress
		v.Address = &addr
	}
	if details.Website != "" {
		site := details.Website
		v.Website = &site
	}
	if cand.Zip != "" {
		v.ZipCodes = []string{cand.Zip}
	}
	if len(details.AddressComponents) > 0 {
		if raw, err := json.Marshal(details.AddressComponents); err == nil {
			v.AddressComponents = raw
		}
	}
	if details.OpeningHours != nil {
		if raw, err := json.Marshal(details.OpeningHours); err == nil {
			v.OperatingHours = raw
		}
	}
	v.CreatedAt = time.Now().UTC()
	return v, nil
}

// gridPoints lays seed points over a bounding box at the configured step.
// Always at least the center point.
func gridPoints(b areas.Bounds, step float64) []maps.LatLng {
	var pts []maps.LatLng
	for lat := b.South + step/2; lat < b.North; lat += step {
		for lng := b.West + step/2; lng < b.East; lng += step {
			pts = append(pts, maps.LatLng{Lat: lat, Lng: lng})
		}
	}
	if len(pts) == 0 {
		pts = append(pts, maps.LatLng{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2})
	}
	return pts
}
