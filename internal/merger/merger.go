// Package merger collapses a venue's raw HTML files into one merged JSON
// document under silver_merged/all/.
package merger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"spots-pipeline/internal/fetcher"
	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// Merger reads raw/today/<venueId>/ and writes silver_merged/all/<venueId>.json.
type Merger struct {
	root paths.Root
	log  *logging.ComponentLogger
	now  func() time.Time
}

func New(root paths.Root, log *logging.Logger) *Merger {
	return &Merger{root: root, log: log.WithComponent("merger"), now: time.Now}
}

// SetClock overrides the scrapedAt clock for deterministic tests.
func (m *Merger) SetClock(now func() time.Time) { m.now = now }

// Run merges every venue in the list. Venues with zero HTML files still
// emit a document with empty pages, so downstream stages see the venue
// disappear rather than silently missing it.
func (m *Merger) Run(venues []models.Venue) (int, error) {
	written := 0
	for _, v := range venues {
		if err := m.MergeVenue(v); err != nil {
			m.log.Error("merge failed", err, logging.String("venue_id", v.ID))
			continue
		}
		written++
	}
	return written, nil
}

// MergeVenue builds and writes the merged document for one venue. The
// result is a deterministic function of the raw directory contents: pages
// are ordered by URL hash.
func (m *Merger) MergeVenue(v models.Venue) error {
	rawDir := m.root.RawTodayDir(v.ID)

	meta := map[string]string{}
	if err := paths.ReadJSON(m.root.RawMetadataPath(v.ID), &meta); err != nil && !os.IsNotExist(err) {
		m.log.Warn("unreadable metadata.json, urls will be blank", logging.String("venue_id", v.ID))
	}

	doc := models.MergedDocument{
		VenueID:   v.ID,
		VenueName: v.Name,
		VenueArea: v.Area,
		Website:   v.Website,
		ScrapedAt: m.now().UTC().Format(time.RFC3339),
		Pages:     []models.MergedPage{},
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".html") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(rawDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			// One unreadable file must not sink the document.
			m.log.Warn("skipping unreadable page", logging.String("path", path), logging.Error(err))
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		hash := strings.TrimSuffix(name, ".html")
		doc.Pages = append(doc.Pages, models.MergedPage{
			URL:          meta[hash],
			HTML:         string(data),
			Hash:         fetcher.ContentHash(data),
			DownloadedAt: fi.ModTime().UTC().Format(time.RFC3339),
		})
	}

	return m.root.WriteJSONAtomic(m.root.MergedPath(v.ID), &doc)
}
