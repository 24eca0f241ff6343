package config

import (
	"os"
	"time"

	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/paths"
)

// Pipeline is the typed view of config/config.json. One struct, loaded once
// at process start and treated as immutable for the run; no string-keyed
// config reads inside hot paths.
type Pipeline struct {
	MaxIncrementalFiles  int      `json:"maxIncrementalFiles"`
	PerURLTimeoutMs      int      `json:"perUrlTimeoutMs"`
	PerLLMTimeoutMs      int      `json:"perLlmTimeoutMs"`
	FetcherConcurrency   int      `json:"fetcherConcurrency"`
	PerHostConcurrency   int      `json:"perHostConcurrency"`
	ExtractorConcurrency int      `json:"extractorConcurrency"`
	StaleRunThresholdMs  int      `json:"staleRunThresholdMs"`
	StageSoftCeilingMs   int      `json:"stageSoftCeilingMs"`
	DrainWindowMs        int      `json:"drainWindowMs"`
	MaxBodyBytes         int64    `json:"maxBodyBytes"`
	MaxPageTextBytes     int      `json:"maxPageTextBytes"`
	CandidatePaths       []string `json:"candidatePaths"`
	BackupRetain         int      `json:"backupRetain"`
	ArchiveRetainDays    int      `json:"archiveRetainDays"`
	NeedsLLMRetryDays    int      `json:"needsLLMRetryDays"`

	Heuristic Heuristic `json:"heuristic"`
}

// Heuristic holds the confidence reviewer thresholds. Scores at or above
// THigh auto-accept; below TLow auto-reject; between them the LLM decides.
type Heuristic struct {
	THigh float64 `json:"tHigh"`
	TLow  float64 `json:"tLow"`
}

// DefaultPipeline returns the tuning used when config.json is absent.
func DefaultPipeline() Pipeline {
	return Pipeline{
		MaxIncrementalFiles:  80,
		PerURLTimeoutMs:      30_000,
		PerLLMTimeoutMs:      90_000,
		FetcherConcurrency:   10,
		PerHostConcurrency:   2,
		ExtractorConcurrency: 2,
		StaleRunThresholdMs:  int(2 * time.Hour / time.Millisecond),
		StageSoftCeilingMs:   int(30 * time.Minute / time.Millisecond),
		DrainWindowMs:        10_000,
		MaxBodyBytes:         2 << 20, // 2 MiB
		MaxPageTextBytes:     50 * 1024,
		CandidatePaths:       []string{"/menu", "/specials", "/happy-hour", "/events", "/about"},
		BackupRetain:         7,
		ArchiveRetainDays:    14,
		NeedsLLMRetryDays:    7,
		Heuristic:            Heuristic{THigh: 0.75, TLow: 0.35},
	}
}

// LoadPipeline reads config/config.json under the data root, falling back to
// defaults when the file is missing. A present-but-broken file is a config
// error, not a silent fallback.
func LoadPipeline(root paths.Root) (Pipeline, error) {
	p := DefaultPipeline()
	err := paths.ReadJSON(root.ConfigPath(), &p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, errs.NewConfig("config.LoadPipeline", "unreadable "+root.ConfigPath(), err)
	}
	if p.MaxIncrementalFiles <= 0 {
		return p, errs.NewConfig("config.LoadPipeline", "maxIncrementalFiles must be positive", nil)
	}
	if p.Heuristic.TLow > p.Heuristic.THigh {
		return p, errs.NewConfig("config.LoadPipeline", "heuristic tLow above tHigh", nil)
	}
	return p, nil
}

func (p Pipeline) PerURLTimeout() time.Duration {
	return time.Duration(p.PerURLTimeoutMs) * time.Millisecond
}
func (p Pipeline) PerLLMTimeout() time.Duration {
	return time.Duration(p.PerLLMTimeoutMs) * time.Millisecond
}
func (p Pipeline) StaleRunThreshold() time.Duration {
	return time.Duration(p.StaleRunThresholdMs) * time.Millisecond
}
func (p Pipeline) StageSoftCeiling() time.Duration {
	return time.Duration(p.StageSoftCeilingMs) * time.Millisecond
}
func (p Pipeline) DrainWindow() time.Duration {
	return time.Duration(p.DrainWindowMs) * time.Millisecond
}
