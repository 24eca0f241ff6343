package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// These provide sane defaults; config.json may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Google Places
	PlacesOperationTimeout  = 10 * time.Second
	PlacesOpenFor           = 30 * time.Second
	PlacesRequestTimeout    = 12 * time.Second
	PlacesSlowCallThreshold = 1500 * time.Millisecond

	// OpenAI extraction
	ExtractorAPITimeout        = 90 * time.Second
	ExtractorOperationTimeout  = 80 * time.Second
	ExtractorOpenFor           = 45 * time.Second
	ExtractorSlowCallThreshold = 30 * time.Second

	// Fetcher
	FetcherURLTimeout = 30 * time.Second

	// Circuit breaker shared thresholds
	CircuitFailureRate  = 0.5
	CircuitSlowCallRate = 0.5

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second
)

// UserAgent is sent on every venue-site fetch. A browser-like agent keeps
// simple bot filters from serving empty shells.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// URLHashLen is the truncation of md5(url) used for content addressing.
// Within a single venue's namespace the collision probability is negligible
// and the short names keep the raw directories browsable.
const URLHashLen = 12

// SourceHashLen is the length of the normalized-content hash stored on gold
// records.
const SourceHashLen = 16
