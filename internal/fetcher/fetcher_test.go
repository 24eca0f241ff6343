package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/config"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
	"spots-pipeline/pkg/utils"
)

func testFetcher(t *testing.T, dir string) *Fetcher {
	t.Helper()
	cfg := config.DefaultPipeline()
	cfg.CandidatePaths = []string{"/menu"}
	cfg.FetcherConcurrency = 4
	return New(paths.New(dir), cfg, logging.Nop())
}

func strPtr(s string) *string { return &s }

func TestFetchSavesPagesAndMetadata(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>%s page with plenty of content to pass the trivial-body bar</body></html>", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := testFetcher(t, dir)
	venue := models.Venue{ID: "v1", Name: "Paul Stewart's Tavern", Website: strPtr(srv.URL)}

	stats, err := f.Run(context.Background(), []models.Venue{venue})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 2 { // site + /menu
		t.Fatalf("fetched = %d, want 2", stats.Fetched)
	}

	meta, err := f.VenueHashes("v1")
	if err != nil {
		t.Fatalf("VenueHashes: %v", err)
	}
	if len(meta) != 2 {
		t.Fatalf("metadata entries = %d, want 2", len(meta))
	}
	for hash, url := range meta {
		if utils.HashURL(url, constants.URLHashLen) != hash {
			t.Errorf("metadata hash %q does not match url %q", hash, url)
		}
		page := filepath.Join(dir, "raw", "today", "v1", hash+".html")
		if _, err := os.Stat(page); err != nil {
			t.Errorf("page file missing: %v", err)
		}
	}
}

func TestFetchSameDayRerunIsCacheHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, strings.Repeat("<p>menu line</p>", 20))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := testFetcher(t, dir)
	venue := models.Venue{ID: "v1", Name: "Tavern", Website: strPtr(srv.URL)}

	if _, err := f.Run(context.Background(), []models.Venue{venue}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Record mtimes, run again, verify nothing was rewritten.
	mtimes := map[string]time.Time{}
	venueDir := filepath.Join(dir, "raw", "today", "v1")
	entries, _ := os.ReadDir(venueDir)
	for _, e := range entries {
		fi, _ := e.Info()
		mtimes[e.Name()] = fi.ModTime()
	}

	stats, err := f.Run(context.Background(), []models.Venue{venue})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Fetched != 0 {
		t.Errorf("second run fetched %d pages, want 0 (cache)", stats.Fetched)
	}
	if stats.CacheHits == 0 {
		t.Error("second run recorded no cache hits")
	}
	entries, _ = os.ReadDir(venueDir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".html") {
			fi, _ := e.Info()
			if !fi.ModTime().Equal(mtimes[e.Name()]) {
				t.Errorf("file %s mtime changed on cache hit", e.Name())
			}
		}
	}
}

func TestFetchClassifies4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := testFetcher(t, dir)
	venue := models.Venue{ID: "v1", Name: "Gone", Website: strPtr(srv.URL)}

	stats, err := f.Run(context.Background(), []models.Venue{venue})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 0 {
		t.Errorf("fetched = %d, want 0", stats.Fetched)
	}
	if stats.Errors["4xx"] == 0 {
		t.Errorf("expected 4xx errors, got %v", stats.Errors)
	}
	if stats.EmptyVenues != 1 {
		t.Errorf("emptyVenues = %d, want 1", stats.EmptyVenues)
	}
}

func TestFetchBodyCapAppendsMarker(t *testing.T) {
	big := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>", big, big, "</html>")
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.DefaultPipeline()
	cfg.CandidatePaths = nil
	cfg.MaxBodyBytes = 1024
	f := New(paths.New(dir), cfg, logging.Nop())
	venue := models.Venue{ID: "v1", Name: "Noisy", Website: strPtr(srv.URL)}

	stats, err := f.Run(context.Background(), []models.Venue{venue})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Truncated != 1 {
		t.Fatalf("truncated = %d, want 1", stats.Truncated)
	}

	meta, _ := f.VenueHashes("v1")
	for hash := range meta {
		data, err := os.ReadFile(filepath.Join(dir, "raw", "today", "v1", hash+".html"))
		if err != nil {
			t.Fatalf("read page: %v", err)
		}
		if !strings.HasSuffix(string(data), TruncationMarker) {
			t.Error("capped body missing truncation marker")
		}
	}
}

func TestFetchSkipsBinaryContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, strings.Repeat("%PDF", 100))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := testFetcher(t, dir)
	venue := models.Venue{ID: "v1", Name: "PDF menu", Website: strPtr(srv.URL)}

	stats, err := f.Run(context.Background(), []models.Venue{venue})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fetched != 0 {
		t.Errorf("binary response should not be saved, fetched = %d", stats.Fetched)
	}
}

func TestRotateMovesStaleToday(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)
	venueDir := root.RawTodayDir("v1")
	if err := os.MkdirAll(venueDir, 0o755); err != nil {
		t.Fatal(err)
	}
	page := filepath.Join(venueDir, "abc.html")
	if err := os.WriteFile(page, []byte("<html>old</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	yesterday := time.Now().Add(-26 * time.Hour)
	if err := os.Chtimes(page, yesterday, yesterday); err != nil {
		t.Fatal(err)
	}

	rotated, err := Rotate(root, time.Now(), 0, nil)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if !rotated {
		t.Fatal("expected rotation")
	}
	if _, err := os.Stat(filepath.Join(dir, "raw", "previous", "v1", "abc.html")); err != nil {
		t.Errorf("previous mirror missing: %v", err)
	}
	entries, err := os.ReadDir(root.RawTodayRoot())
	if err != nil {
		t.Fatalf("today dir missing after rotation: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("today dir not empty after rotation: %d entries", len(entries))
	}
}

func TestRotateNoopSameDay(t *testing.T) {
	dir := t.TempDir()
	root := paths.New(dir)
	venueDir := root.RawTodayDir("v1")
	if err := os.MkdirAll(venueDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(venueDir, "abc.html"), []byte("<html>fresh</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	rotated, err := Rotate(root, time.Now(), 0, nil)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated {
		t.Error("same-day content must not rotate")
	}
	if _, err := os.Stat(filepath.Join(venueDir, "abc.html")); err != nil {
		t.Errorf("today file disappeared: %v", err)
	}
}
