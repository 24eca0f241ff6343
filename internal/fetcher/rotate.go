package fetcher

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// Rotate performs the once-per-day raw directory rollover:
//
//	raw/previous/ is archived (or deleted), raw/today/ becomes raw/previous/,
//	and a fresh raw/today/ is created.
//
// If raw/today/ already holds today's files the rotation is a no-op, so a
// same-day rerun keeps its cache. Returns whether a rollover happened.
func Rotate(root paths.Root, now time.Time, archiveRetainDays int, log *logging.ComponentLogger) (bool, error) {
	todayDir := root.RawTodayRoot()
	prevDir := root.RawPreviousRoot()

	newest, empty, err := newestMtime(todayDir)
	if err != nil {
		return false, errs.NewValidation("fetcher.Rotate", "cannot inspect raw/today", err)
	}
	if empty {
		if err := os.MkdirAll(todayDir, 0o755); err != nil {
			return false, err
		}
		return false, nil
	}
	if sameDay(newest, now) {
		// Same-day rerun; the cache stands.
		return false, nil
	}

	// Archive or drop the old previous/ before the rename.
	if _, err := os.Stat(prevDir); err == nil {
		if archiveRetainDays > 0 {
			date := newestDirDate(prevDir, now)
			archDir := root.RawArchiveDir(date)
			os.RemoveAll(archDir)
			if err := os.MkdirAll(filepath.Dir(archDir), 0o755); err != nil {
				return false, err
			}
			if err := os.Rename(prevDir, archDir); err != nil {
				return false, errs.NewValidation("fetcher.Rotate", "archive rename failed", err)
			}
			pruneArchive(root, archiveRetainDays, now)
		} else if err := os.RemoveAll(prevDir); err != nil {
			return false, errs.NewValidation("fetcher.Rotate", "cannot clear raw/previous", err)
		}
	}

	if err := os.Rename(todayDir, prevDir); err != nil {
		return false, errs.NewValidation("fetcher.Rotate", "rollover rename failed", err)
	}
	if err := os.MkdirAll(todayDir, 0o755); err != nil {
		return false, err
	}
	if log != nil {
		log.Info("rotated raw directories", logging.String("previous", prevDir))
	}
	return true, nil
}

// newestMtime scans a tree for its most recent file mtime.
func newestMtime(dir string) (time.Time, bool, error) {
	var newest time.Time
	empty := true
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		empty = false
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return newest, true, nil
	}
	return newest, empty, err
}

// newestDirDate labels an archive snapshot with its content's day.
func newestDirDate(dir string, fallback time.Time) string {
	newest, empty, err := newestMtime(dir)
	if err != nil || empty {
		return fallback.AddDate(0, 0, -1).Format("20060102")
	}
	return newest.Format("20060102")
}

func pruneArchive(root paths.Root, retainDays int, now time.Time) {
	archRoot := filepath.Dir(root.RawArchiveDir("x"))
	entries, err := os.ReadDir(archRoot)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -retainDays).Format("20060102")
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if n < cutoff {
			os.RemoveAll(filepath.Join(archRoot, n))
		}
	}
}
