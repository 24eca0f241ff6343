// Package paths is the single authority for the on-disk data layout. Every
// stage takes a Root by value so tests can redirect the whole hierarchy to a
// temp directory. Nobody else builds data paths by hand.
package paths

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Root anchors the data hierarchy. Zero value is not usable; construct with
// New (respects the DATA_DIR override).
type Root struct {
	base string
}

// New returns a Root at dir, or at $DATA_DIR/"./data" when dir is empty.
func New(dir string) Root {
	if dir == "" {
		dir = os.Getenv("DATA_DIR")
	}
	if dir == "" {
		dir = "./data"
	}
	return Root{base: dir}
}

func (r Root) Base() string { return r.base }

// Raw subtree (owned by the fetcher).

func (r Root) RawTodayDir(venueID string) string {
	return filepath.Join(r.base, "raw", "today", venueID)
}

func (r Root) RawTodayRoot() string    { return filepath.Join(r.base, "raw", "today") }
func (r Root) RawPreviousRoot() string { return filepath.Join(r.base, "raw", "previous") }

func (r Root) RawPreviousDir(venueID string) string {
	return filepath.Join(r.base, "raw", "previous", venueID)
}

func (r Root) RawArchiveDir(date string) string {
	return filepath.Join(r.base, "raw", "archive", date)
}

func (r Root) RawPagePath(venueID, urlHash string) string {
	return filepath.Join(r.RawTodayDir(venueID), urlHash+".html")
}

func (r Root) RawMetadataPath(venueID string) string {
	return filepath.Join(r.RawTodayDir(venueID), "metadata.json")
}

// Silver subtrees (merged owned by the merger, trimmed by the trimmer).

func (r Root) MergedRoot() string { return filepath.Join(r.base, "silver_merged", "all") }

func (r Root) MergedPath(venueID string) string {
	return filepath.Join(r.MergedRoot(), venueID+".json")
}

func (r Root) TrimmedRoot() string { return filepath.Join(r.base, "silver_trimmed", "all") }
func (r Root) TrimmedPreviousRoot() string {
	return filepath.Join(r.base, "silver_trimmed", "previous")
}
func (r Root) IncrementalRoot() string {
	return filepath.Join(r.base, "silver_trimmed", "incremental")
}

func (r Root) TrimmedPath(venueID string) string {
	return filepath.Join(r.TrimmedRoot(), venueID+".json")
}

func (r Root) TrimmedPreviousPath(venueID string) string {
	return filepath.Join(r.TrimmedPreviousRoot(), venueID+".json")
}

func (r Root) IncrementalPath(venueID string) string {
	return filepath.Join(r.IncrementalRoot(), venueID+".json")
}

func (r Root) DeltaSummaryPath() string {
	return filepath.Join(r.base, "silver_trimmed", "delta-summary.json")
}

// Gold.

func (r Root) GoldRoot() string { return filepath.Join(r.base, "gold") }

func (r Root) GoldPath(venueID string) string {
	return filepath.Join(r.GoldRoot(), venueID+".json")
}

// BulkSentinelPath marks that the one-shot bulk extraction has completed at
// least once. Incremental extraction refuses to run without it.
func (r Root) BulkSentinelPath() string {
	return filepath.Join(r.GoldRoot(), ".bulk-complete")
}

// Config and reporting.

func (r Root) ConfigPath() string        { return filepath.Join(r.base, "config", "config.json") }
func (r Root) AreasPath() string         { return filepath.Join(r.base, "config", "areas.json") }
func (r Root) SeedingPath() string       { return filepath.Join(r.base, "config", "seeding.yaml") }
func (r Root) ManifestPath() string      { return filepath.Join(r.base, "reporting", "manifest.json") }
func (r Root) SpotsSnapshotPath() string { return filepath.Join(r.base, "reporting", "spots.json") }
func (r Root) BackupDir() string         { return filepath.Join(r.base, "backups") }

// WriteJSONAtomic marshals v and writes it via tmp-file + rename in the same
// directory. Readers see either the old or the new complete document.
func (r Root) WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes bytes via tmp + fsync + rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadJSON loads path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
