// Package fetcher materializes each venue's website and candidate pages
// into raw/today/<venueId>/, content-addressed by truncated URL hash.
package fetcher

import (
	"context"
	"crypto/md5"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/config"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
	"spots-pipeline/pkg/paths"
	"spots-pipeline/pkg/retry"
	"spots-pipeline/pkg/utils"
)

// TruncationMarker is appended when a response exceeds the body cap, so
// trimming still works and the downstream hash still detects big changes.
const TruncationMarker = "\n<!-- truncated -->"

var (
	mFetched   = metrics.Default.Counter("fetch_pages_total", "Pages fetched and saved")
	mCacheHits = metrics.Default.Counter("fetch_cache_hits_total", "URLs skipped because today's file exists")
	mErrors    = metrics.Default.Counter("fetch_errors_total", "Per-URL fetch failures")
	mDuration  = metrics.Default.Histogram("fetch_url_duration_seconds", "Per-URL fetch time (seconds)", []float64{0.1, 0.5, 1, 2, 5, 10, 30})
)

// Stats is the run-scoped fetch outcome, with errors counted by class.
type Stats struct {
	mu          sync.Mutex
	Fetched     int            `json:"fetched"`
	CacheHits   int            `json:"cacheHits"`
	Truncated   int            `json:"truncated"`
	EmptyVenues int            `json:"emptyVenues"`
	Errors      map[string]int `json:"errors"` // timeout / dns / refused / 4xx / 5xx / ssl / other
}

func (s *Stats) addError(class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Errors == nil {
		s.Errors = map[string]int{}
	}
	s.Errors[class]++
}

func (s *Stats) TotalErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.Errors {
		n += v
	}
	return n
}

// Fetcher downloads venue pages on a bounded worker pool with per-host
// politeness.
type Fetcher struct {
	root   paths.Root
	cfg    config.Pipeline
	client *http.Client
	log    *logging.ComponentLogger
	policy retry.Policy
	now    func() time.Time

	hostMu    sync.Mutex
	hostSlots map[string]chan struct{}

	// metaMu serializes metadata.json read-merge-rewrite cycles; two
	// workers can finish different URLs of the same venue at once.
	metaMu sync.Mutex
}

func New(root paths.Root, cfg config.Pipeline, log *logging.Logger) *Fetcher {
	return &Fetcher{
		root: root,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.PerURLTimeout(),
			// The default transport decompresses gzip for us.
		},
		log:       log.WithComponent("fetcher"),
		policy:    retry.Default(),
		now:       time.Now,
		hostSlots: make(map[string]chan struct{}),
	}
}

// SetClock overrides the clock; tests use this to control calendar-day
// cache decisions.
func (f *Fetcher) SetClock(now func() time.Time) { f.now = now }

type job struct {
	venue models.Venue
	url   string
}

// Run fetches all venues' candidate URLs. Per-URL failures are counted,
// never fatal; a venue with zero saved pages is recorded but the run
// continues.
func (f *Fetcher) Run(ctx context.Context, venues []models.Venue) (*Stats, error) {
	stats := &Stats{Errors: map[string]int{}}

	var jobs []job
	for _, v := range venues {
		site := v.WebsiteURL()
		if site == "" {
			continue
		}
		for _, u := range CandidateURLs(site, f.cfg.CandidatePaths) {
			jobs = append(jobs, job{venue: v, url: u})
		}
	}
	if len(jobs) == 0 {
		return stats, nil
	}

	workers := f.cfg.FetcherConcurrency
	if workers <= 0 {
		workers = 10
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				f.fetchOne(ctx, j, stats)
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobCh)
	wg.Wait()

	// Count venues that ended the run with an empty directory.
	for _, v := range venues {
		if v.WebsiteURL() == "" {
			continue
		}
		if !f.hasPages(v.ID) {
			stats.mu.Lock()
			stats.EmptyVenues++
			stats.mu.Unlock()
			f.log.Warn("venue produced no pages", logging.String("venue_id", v.ID), logging.String("name", v.Name))
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (f *Fetcher) hasPages(venueID string) bool {
	entries, err := os.ReadDir(f.root.RawTodayDir(venueID))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".html") {
			return true
		}
	}
	return false
}

func (f *Fetcher) fetchOne(ctx context.Context, j job, stats *Stats) {
	urlHash := utils.HashURL(j.url, constants.URLHashLen)
	pagePath := f.root.RawPagePath(j.venue.ID, urlHash)

	// Same-day cache: a file whose mtime falls within the current local
	// calendar day is authoritative.
	if fi, err := os.Stat(pagePath); err == nil && sameDay(fi.ModTime(), f.now()) {
		mCacheHits.Inc(1)
		stats.mu.Lock()
		stats.CacheHits++
		stats.mu.Unlock()
		return
	}

	host := utils.Host(j.url)
	release := f.acquireHost(ctx, host)
	if release == nil {
		return // cancelled while waiting
	}
	defer release()

	t := mDuration.Start()
	body, truncated, err := f.download(ctx, j.url)
	t.Observe()
	if err != nil {
		class := classifyError(err)
		mErrors.Inc(1)
		stats.addError(class)
		f.log.Debug("fetch failed",
			logging.String("venue_id", j.venue.ID),
			logging.String("url", j.url),
			logging.String("class", class),
			logging.Error(err))
		return
	}
	if len(body) < 64 {
		// trivial probe response, not worth saving
		return
	}

	if err := paths.WriteFileAtomic(pagePath, body); err != nil {
		stats.addError("other")
		f.log.Error("save failed", err, logging.String("url", j.url))
		return
	}
	if err := f.mergeMetadata(j.venue.ID, urlHash, j.url); err != nil {
		f.log.Error("metadata merge failed", err, logging.String("venue_id", j.venue.ID))
	}

	mFetched.Inc(1)
	stats.mu.Lock()
	stats.Fetched++
	if truncated {
		stats.Truncated++
	}
	stats.mu.Unlock()
}

// acquireHost takes a per-host slot; at most PerHostConcurrency requests
// are in flight against one host.
func (f *Fetcher) acquireHost(ctx context.Context, host string) func() {
	limit := f.cfg.PerHostConcurrency
	if limit <= 0 {
		limit = 2
	}
	f.hostMu.Lock()
	slots, ok := f.hostSlots[host]
	if !ok {
		slots = make(chan struct{}, limit)
		f.hostSlots[host] = slots
	}
	f.hostMu.Unlock()

	select {
	case slots <- struct{}{}:
		return func() { <-slots }
	case <-ctx.Done():
		return nil
	}
}

// download performs the GET with retry/backoff. Returns the (possibly
// capped) body and whether it was truncated.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, bool, error) {
	var body []byte
	var truncated bool

	err := retry.Do(ctx, f.policy, func(ctx context.Context) (retry.Kind, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.KindPermanent, err
		}
		req.Header.Set("User-Agent", constants.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.KindTransient, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			ra := parseRetryAfter(resp.Header.Get("Retry-After"))
			return retry.KindRateLimit, &retry.RateLimitError{
				Err:        fmt.Errorf("status 429 from %s", url),
				RetryAfter: ra,
			}
		case resp.StatusCode >= 500:
			return retry.KindTransient, fmt.Errorf("status %d from %s", resp.StatusCode, url)
		case resp.StatusCode >= 400:
			return retry.KindPermanent, fmt.Errorf("status %d from %s", resp.StatusCode, url)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return retry.KindPermanent, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text") {
			return retry.KindPermanent, fmt.Errorf("non-text content-type %q from %s", ct, url)
		}

		capped := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
		data, err := io.ReadAll(capped)
		if err != nil {
			return retry.KindTransient, err
		}
		if int64(len(data)) > f.cfg.MaxBodyBytes {
			data = append(data[:f.cfg.MaxBodyBytes], []byte(TruncationMarker)...)
			truncated = true
		}
		body = data
		return 0, nil
	})
	if err != nil {
		return nil, false, err
	}
	return body, truncated, nil
}

// mergeMetadata read-merge-rewrites metadata.json for a venue.
func (f *Fetcher) mergeMetadata(venueID, urlHash, url string) error {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()

	metaPath := f.root.RawMetadataPath(venueID)
	meta := map[string]string{}
	if err := paths.ReadJSON(metaPath, &meta); err != nil && !os.IsNotExist(err) {
		return errs.NewValidation("fetcher.mergeMetadata", "corrupt metadata.json", err)
	}
	meta[urlHash] = url
	return f.root.WriteJSONAtomic(metaPath, meta)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// classifyError buckets a per-URL failure for the run stats.
func classifyError(err error) string {
	var certErr *x509.CertificateInvalidError
	var hostErr x509.HostnameError
	var unknownAuth x509.UnknownAuthorityError
	var dnsErr *net.DNSError
	var opErr *net.OpError

	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "Client.Timeout"):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &unknownAuth) || strings.Contains(msg, "tls:"):
		return "ssl"
	case errors.As(err, &opErr) && strings.Contains(msg, "connection refused"):
		return "refused"
	case strings.Contains(msg, "status 4"):
		return "4xx"
	case strings.Contains(msg, "status 5"):
		return "5xx"
	default:
		return "other"
	}
}

// VenueHashes reads a venue's metadata.json; hash → url.
func (f *Fetcher) VenueHashes(venueID string) (map[string]string, error) {
	meta := map[string]string{}
	err := paths.ReadJSON(f.root.RawMetadataPath(venueID), &meta)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return meta, nil
}

// ContentHash hashes saved page bytes for the merged document.
func ContentHash(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
