// Package delta computes normalized content hashes per venue and partitions
// the venue set into {new, changed, unchanged}. New and changed venues form
// the LLM work-set under silver_trimmed/incremental/.
package delta

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
	"spots-pipeline/pkg/paths"
)

// pageSeparator joins pages before hashing. Fixed so that page boundaries
// can never alias content boundaries.
const pageSeparator = "\n--- page ---\n"

var (
	mNew       = metrics.Default.Gauge("delta_new_venues", "Venues with no previous trimmed document")
	mChanged   = metrics.Default.Gauge("delta_changed_venues", "Venues whose normalized hash changed")
	mUnchanged = metrics.Default.Gauge("delta_unchanged_venues", "Venues whose normalized hash is stable")
)

// Detector compares today's trimmed documents against the previous run's.
type Detector struct {
	root paths.Root
	norm *Normalizer
	log  *logging.ComponentLogger
	now  func() time.Time
}

func New(root paths.Root, log *logging.Logger) *Detector {
	return &Detector{
		root: root,
		norm: NewNormalizer(time.Now().Year()),
		log:  log.WithComponent("delta"),
		now:  time.Now,
	}
}

// SetClock pins the clock (and the current-year normalization rule).
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
	d.norm = NewNormalizer(now().Year())
}

// VenueHash computes the normalized content hash for a trimmed document:
// md5 over the concatenation of all pages' normalized text.
func (d *Detector) VenueHash(doc *models.TrimmedDocument) string {
	parts := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		parts = append(parts, d.norm.Normalize(p.Text))
	}
	sum := md5.Sum([]byte(strings.Join(parts, pageSeparator)))
	return hex.EncodeToString(sum[:])
}

// SourceHash is the truncated form stored on gold records.
func (d *Detector) SourceHash(doc *models.TrimmedDocument) string {
	return d.VenueHash(doc)[:constants.SourceHashLen]
}

// Run partitions the venues, copies the work-set into incremental/, and
// writes the delta summary. The incremental directory is cleared first so
// stale work from an aborted run can't leak in.
func (d *Detector) Run(venues []models.Venue) (*models.DeltaSummary, error) {
	if err := os.RemoveAll(d.root.IncrementalRoot()); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.root.IncrementalRoot(), 0o755); err != nil {
		return nil, err
	}

	summary := &models.DeltaSummary{
		Date:      d.now().Format("20060102"),
		New:       []string{},
		Changed:   []string{},
		Unchanged: []string{},
	}

	for _, v := range venues {
		var today models.TrimmedDocument
		if err := paths.ReadJSON(d.root.TrimmedPath(v.ID), &today); err != nil {
			if os.IsNotExist(err) {
				continue // venue produced nothing this run
			}
			d.log.Error("unreadable trimmed document", err, logging.String("venue_id", v.ID))
			continue
		}
		todayHash := d.VenueHash(&today)

		var prev models.TrimmedDocument
		err := paths.ReadJSON(d.root.TrimmedPreviousPath(v.ID), &prev)
		switch {
		case os.IsNotExist(err):
			summary.New = append(summary.New, v.ID)
			if err := d.copyToIncremental(v.ID); err != nil {
				return nil, err
			}
		case err != nil:
			d.log.Error("unreadable previous document, treating as new", err, logging.String("venue_id", v.ID))
			summary.New = append(summary.New, v.ID)
			if err := d.copyToIncremental(v.ID); err != nil {
				return nil, err
			}
		case d.VenueHash(&prev) != todayHash:
			summary.Changed = append(summary.Changed, v.ID)
			if err := d.copyToIncremental(v.ID); err != nil {
				return nil, err
			}
			if summary.PreviousDate == "" {
				summary.PreviousDate = prevDate(prev.ScrapedAt)
			}
		default:
			summary.Unchanged = append(summary.Unchanged, v.ID)
			if summary.PreviousDate == "" {
				summary.PreviousDate = prevDate(prev.ScrapedAt)
			}
		}
	}

	summary.Summary = fmt.Sprintf("%d new, %d changed, %d unchanged",
		len(summary.New), len(summary.Changed), len(summary.Unchanged))
	mNew.SetFloat64(float64(len(summary.New)))
	mChanged.SetFloat64(float64(len(summary.Changed)))
	mUnchanged.SetFloat64(float64(len(summary.Unchanged)))

	if err := d.root.WriteJSONAtomic(d.root.DeltaSummaryPath(), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (d *Detector) copyToIncremental(venueID string) error {
	data, err := os.ReadFile(d.root.TrimmedPath(venueID))
	if err != nil {
		return err
	}
	return paths.WriteFileAtomic(d.root.IncrementalPath(venueID), data)
}

// PromoteToPrevious replaces silver_trimmed/previous/ with today's
// documents. Run at cleanup so the next run diffs against this one, and a
// same-day rerun sees everything unchanged.
func (d *Detector) PromoteToPrevious() error {
	prevRoot := d.root.TrimmedPreviousRoot()
	todayRoot := d.root.TrimmedRoot()

	entries, err := os.ReadDir(todayRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(prevRoot, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(d.root.TrimmedPath(strings.TrimSuffix(e.Name(), ".json")))
		if err != nil {
			return err
		}
		if err := paths.WriteFileAtomic(d.root.TrimmedPreviousPath(strings.TrimSuffix(e.Name(), ".json")), data); err != nil {
			return err
		}
	}
	return nil
}

func prevDate(scrapedAt string) string {
	t, err := time.Parse(time.RFC3339, scrapedAt)
	if err != nil {
		return ""
	}
	return t.Format("20060102")
}
