// Package testutil provides in-memory fakes for the store slices the
// pipeline stages consume. Deterministic and dependency-free; integration
// against a real MySQL happens separately.
package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/database"
	errs "spots-pipeline/pkg/errors"
)

// FakeStore implements the store interfaces of the materializer, the
// curation bridge and the extractor over plain maps. Every audited
// mutation appends to Audit so tests can assert audit completeness.
type FakeStore struct {
	Mu sync.Mutex

	Venues     map[string]*models.Venue
	Spots      map[int64]*models.Spot
	Watchlist  map[string]*models.WatchlistEntry
	Streaks    map[string]*models.Streak // venueID|type
	Activities map[string]bool           // name -> deprecated
	GoldHashes map[string]string
	GoldMeta   map[string]*database.GoldMeta
	Flags      map[string]string
	Reviews    map[string]*models.ConfidenceReview
	Audit      []models.AuditEntry

	nextSpotID int64
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Venues:     map[string]*models.Venue{},
		Spots:      map[int64]*models.Spot{},
		Watchlist:  map[string]*models.WatchlistEntry{},
		Streaks:    map[string]*models.Streak{},
		Activities: map[string]bool{},
		GoldHashes: map[string]string{},
		GoldMeta:   map[string]*database.GoldMeta{},
		Flags:      map[string]string{},
		Reviews:    map[string]*models.ConfidenceReview{},
		nextSpotID: 1,
	}
}

func (f *FakeStore) audit(table, key, action, actor string) {
	f.Audit = append(f.Audit, models.AuditEntry{
		TableName: table, RowKey: key, Action: action, Actor: actor, Diff: `{"fake":true}`,
	})
}

// --- venue side ---

func (f *FakeStore) GetVenueCtx(_ context.Context, id string) (*models.Venue, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if v, ok := f.Venues[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeStore) UpsertVenueAudited(_ context.Context, v *models.Venue, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	cp := *v
	action := models.AuditInsert
	if _, ok := f.Venues[v.ID]; ok {
		action = models.AuditUpdate
	}
	f.Venues[v.ID] = &cp
	f.audit("venues", v.ID, action, actor)
	return nil
}

func (f *FakeStore) CountVenuesCtx(context.Context) (int, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return len(f.Venues), nil
}

func (f *FakeStore) DistinctAreasCtx(context.Context) ([]string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, v := range f.Venues {
		if a := v.AreaName(); a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}

// --- spot side ---

func (f *FakeStore) GetSpotCtx(_ context.Context, id int64) (*models.Spot, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if s, ok := f.Spots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeStore) GetSpotByVenueTypeCtx(_ context.Context, venueID, spotType string) (*models.Spot, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	for _, s := range f.Spots {
		if s.VenueKey() == venueID && s.Type == spotType {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) ListSpotsCtx(_ context.Context, status string) ([]models.Spot, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	var out []models.Spot
	for _, s := range f.Spots {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *FakeStore) SaveSpotAudited(_ context.Context, s *models.Spot, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	action := models.AuditUpdate
	if s.ID == 0 {
		s.ID = f.nextSpotID
		f.nextSpotID++
		action = models.AuditInsert
	}
	cp := *s
	f.Spots[s.ID] = &cp
	f.audit("spots", strconv.FormatInt(s.ID, 10), action, actor)
	return nil
}

func (f *FakeStore) DeleteSpotAudited(_ context.Context, s *models.Spot, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if _, ok := f.Spots[s.ID]; !ok {
		return errs.NewDB("FakeStore.DeleteSpotAudited", "no such spot", nil)
	}
	delete(f.Spots, s.ID)
	f.audit("spots", strconv.FormatInt(s.ID, 10), models.AuditDelete, actor)
	return nil
}

// --- watchlist / activities / streaks ---

func (f *FakeStore) UpsertWatchlistAudited(_ context.Context, w *models.WatchlistEntry, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	cp := *w
	f.Watchlist[w.VenueID] = &cp
	f.audit("watchlist", w.VenueID, models.AuditInsert, actor)
	return nil
}

func (f *FakeStore) ExcludedSetCtx(context.Context) (map[string]bool, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	out := map[string]bool{}
	for id, w := range f.Watchlist {
		if w.Status == models.WatchlistExcluded {
			out[id] = true
		}
	}
	return out, nil
}

func (f *FakeStore) UpsertActivityAudited(_ context.Context, name string, deprecated bool, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Activities[name] = deprecated
	f.audit("activities", name, models.AuditInsert, actor)
	return nil
}

func (f *FakeStore) DeleteActivityAudited(_ context.Context, name, actor string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	delete(f.Activities, name)
	f.audit("activities", name, models.AuditDelete, actor)
	return nil
}

func (f *FakeStore) DeprecatedTypesCtx(context.Context) (map[string]bool, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	out := map[string]bool{}
	for name, dep := range f.Activities {
		if dep {
			out[name] = true
		}
	}
	return out, nil
}

func (f *FakeStore) GetStreakCtx(_ context.Context, venueID, spotType string) (*models.Streak, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if s, ok := f.Streaks[venueID+"|"+spotType]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeStore) SaveStreakCtx(_ context.Context, s *models.Streak) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	cp := *s
	f.Streaks[s.VenueID+"|"+s.Type] = &cp
	return nil
}

// --- gold / flags / reviews ---

func (f *FakeStore) GetGoldHashCtx(_ context.Context, venueID string) (string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.GoldHashes[venueID], nil
}

func (f *FakeStore) GetGoldMetaCtx(_ context.Context, venueID string) (*database.GoldMeta, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if g, ok := f.GoldMeta[venueID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeStore) ListNeedsLLMCtx(_ context.Context, olderThan time.Time) ([]string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	var out []string
	for id, g := range f.GoldMeta {
		if g.NeedsLLM && !g.ExtractedAt.After(olderThan) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *FakeStore) UpsertGoldMetaCtx(_ context.Context, g *database.GoldMeta) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	cp := *g
	f.GoldMeta[g.VenueID] = &cp
	f.GoldHashes[g.VenueID] = g.SourceHash
	return nil
}

func (f *FakeStore) GetFlag(_ context.Context, name string) (string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.Flags[name], nil
}

func (f *FakeStore) SetFlag(_ context.Context, name, value string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Flags[name] = value
	return nil
}

func (f *FakeStore) GetReviewCtx(_ context.Context, spotKey string) (*models.ConfidenceReview, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if r, ok := f.Reviews[spotKey]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeStore) SaveReviewCtx(_ context.Context, r *models.ConfidenceReview) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	cp := *r
	f.Reviews[r.SpotKey] = &cp
	return nil
}
