// Package extractor sends the incremental work-set to the LLM and writes
// gold records. Two gates keep the spend bounded: a per-run file cap that
// skips the whole step, and a per-venue source-hash comparison that skips
// venues whose normalized content is unchanged.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"spots-pipeline/internal/constants"
	"spots-pipeline/internal/delta"
	"spots-pipeline/internal/models"
	"spots-pipeline/internal/prompts"
	"spots-pipeline/pkg/circuit"
	"spots-pipeline/pkg/config"
	"spots-pipeline/pkg/database"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
	"spots-pipeline/pkg/paths"
	"spots-pipeline/pkg/retry"
)

// promptTextCap bounds the trimmed text shipped per venue so one noisy
// site cannot blow the context window.
const promptTextCap = 48 * 1024

// bulkFlag is the store mirror of the .bulk-complete sentinel.
const bulkFlag = "bulk_complete"

var (
	mLLMCalls    = metrics.Default.Counter("extract_llm_calls_total", "LLM requests issued")
	mGateSkips   = metrics.Default.Counter("extract_hash_gate_skips_total", "Venues skipped by source-hash gate")
	mSchemaFails = metrics.Default.Counter("extract_schema_failures_total", "Responses that failed schema after repair")
	mLLMLatency  = metrics.Default.Histogram("extract_llm_duration_seconds", "LLM call time (seconds)", []float64{1, 2, 5, 10, 30, 60, 90})
)

// ChatClient is the slice of the OpenAI client the extractor uses; tests
// substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GoldStore is the slice of the store the extractor needs.
type GoldStore interface {
	GetGoldMetaCtx(ctx context.Context, venueID string) (*database.GoldMeta, error)
	UpsertGoldMetaCtx(ctx context.Context, g *database.GoldMeta) error
	ListNeedsLLMCtx(ctx context.Context, olderThan time.Time) ([]string, error)
	GetFlag(ctx context.Context, name string) (string, error)
	SetFlag(ctx context.Context, name, value string) error
}

// llmResponse is the strict response schema.
type llmResponse struct {
	Found     bool                    `json:"found"`
	Entries   []models.PromotionEntry `json:"entries"`
	Reasoning string                  `json:"reasoning"`
}

// Result summarizes an extraction step for the manifest.
type Result struct {
	Skipped   bool
	Reason    string
	Processed int
	GateSkips int
	Failed    int
	NeedsLLM  int
}

// Extractor runs the LLM stage.
type Extractor struct {
	root     paths.Root
	cfg      config.Pipeline
	client   ChatClient
	model    string
	temp     float32
	maxToks  int
	store    GoldStore
	pm       *prompts.Manager
	cb       *circuit.Breaker
	cost     *CostTracker
	detector *delta.Detector
	log      *logging.ComponentLogger
	now      func() time.Time
}

func New(root paths.Root, cfg config.Pipeline, appCfg *config.Config, client ChatClient, store GoldStore, pm *prompts.Manager, det *delta.Detector, log *logging.Logger) *Extractor {
	cb := circuit.New(circuit.Config{
		Name:              "openai",
		OperationTimeout:  constants.ExtractorOperationTimeout,
		OpenFor:           constants.ExtractorOpenFor,
		MaxConsecFailures: 3,
		WindowSize:        10,
		FailureRate:       constants.CircuitFailureRate,
		SlowCallThreshold: constants.ExtractorSlowCallThreshold,
		SlowCallRate:      constants.CircuitSlowCallRate,
	})
	return &Extractor{
		root:     root,
		cfg:      cfg,
		client:   client,
		model:    appCfg.OpenAIModel,
		temp:     float32(appCfg.OpenAITemperature),
		maxToks:  appCfg.OpenAIMaxTokens,
		store:    store,
		pm:       pm,
		cb:       cb,
		cost:     NewCostTracker(),
		detector: det,
		log:      log.WithComponent("extractor"),
		now:      time.Now,
	}
}

// SetClock pins the extraction timestamps for tests.
func (e *Extractor) SetClock(now func() time.Time) { e.now = now }

// Cost exposes the tracker for status reporting.
func (e *Extractor) Cost() *CostTracker { return e.cost }

// RunIncremental extracts the venues under silver_trimmed/incremental/.
// The whole step is skipped (not failed) when the work-set exceeds the
// configured cap or the bulk pass has never completed.
func (e *Extractor) RunIncremental(ctx context.Context) (*Result, error) {
	ids, err := listJSONIDs(e.root.IncrementalRoot())
	if err != nil {
		return nil, err
	}
	ids = e.addNeedsLLMRetries(ctx, ids)
	if len(ids) == 0 {
		return &Result{Skipped: true, Reason: "no incremental changes"}, nil
	}
	if len(ids) > e.cfg.MaxIncrementalFiles {
		reason := fmt.Sprintf("LLM limit hit: %d > %d", len(ids), e.cfg.MaxIncrementalFiles)
		e.log.Warn("budget gate tripped", logging.String("reason", reason))
		return &Result{Skipped: true, Reason: reason}, nil
	}
	if !e.bulkComplete(ctx) {
		return &Result{Skipped: true, Reason: "bulk extraction has never completed; run the bulk pass first"}, nil
	}
	return e.extract(ctx, ids, e.incrementalOrTrimmedPath, models.ExtractionIncremental)
}

// addNeedsLLMRetries folds gold records whose last extraction failed schema
// validation back into the work-set once they are old enough.
func (e *Extractor) addNeedsLLMRetries(ctx context.Context, ids []string) []string {
	retryDays := e.cfg.NeedsLLMRetryDays
	if retryDays <= 0 {
		return ids
	}
	due, err := e.store.ListNeedsLLMCtx(ctx, e.now().AddDate(0, 0, -retryDays))
	if err != nil {
		e.log.Error("needsLLM listing failed", err)
		return ids
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range due {
		if seen[id] {
			continue
		}
		// Only venues that still have trimmed content can be retried.
		if _, err := os.Stat(e.root.TrimmedPath(id)); err != nil {
			continue
		}
		ids = append(ids, id)
		e.log.Info("retrying needsLLM venue", logging.String("venue_id", id))
	}
	return ids
}

// incrementalOrTrimmedPath resolves a work-set member: incremental copies
// win, needsLLM retries read the full trimmed document.
func (e *Extractor) incrementalOrTrimmedPath(venueID string) string {
	p := e.root.IncrementalPath(venueID)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return e.root.TrimmedPath(venueID)
}

// RunBulk extracts every venue under silver_trimmed/all/ and writes the
// .bulk-complete sentinel once at least one venue succeeded.
func (e *Extractor) RunBulk(ctx context.Context) (*Result, error) {
	ids, err := listJSONIDs(e.root.TrimmedRoot())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &Result{Skipped: true, Reason: "no trimmed documents"}, nil
	}
	res, err := e.extract(ctx, ids, e.root.TrimmedPath, models.ExtractionBulk)
	if err != nil {
		return res, err
	}
	if res.Processed > 0 {
		if werr := paths.WriteFileAtomic(e.root.BulkSentinelPath(), []byte(e.now().UTC().Format(time.RFC3339)+"\n")); werr != nil {
			e.log.Error("sentinel write failed", werr)
		}
		if serr := e.store.SetFlag(ctx, bulkFlag, "true"); serr != nil {
			e.log.Error("bulk flag write failed", serr)
		}
	}
	return res, nil
}

// BulkComplete reports whether the one-shot bulk pass has ever finished;
// the CLI uses it to pick bulk vs incremental mode.
func (e *Extractor) BulkComplete(ctx context.Context) bool {
	return e.bulkComplete(ctx)
}

func (e *Extractor) bulkComplete(ctx context.Context) bool {
	if _, err := os.Stat(e.root.BulkSentinelPath()); err == nil {
		return true
	}
	v, err := e.store.GetFlag(ctx, bulkFlag)
	return err == nil && v == "true"
}

func (e *Extractor) extract(ctx context.Context, ids []string, pathFor func(string) string, method string) (*Result, error) {
	res := &Result{}
	workers := e.cfg.ExtractorConcurrency
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(venueID string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			outcome := e.extractVenue(ctx, venueID, pathFor(venueID), method)
			mu.Lock()
			switch outcome {
			case outcomeProcessed:
				res.Processed++
			case outcomeGateSkip:
				res.GateSkips++
			case outcomeNeedsLLM:
				res.Processed++
				res.NeedsLLM++
			case outcomeFailed:
				res.Failed++
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeGateSkip
	outcomeNeedsLLM
	outcomeFailed
)

func (e *Extractor) extractVenue(ctx context.Context, venueID, docPath, method string) outcome {
	var doc models.TrimmedDocument
	if err := paths.ReadJSON(docPath, &doc); err != nil {
		e.log.Error("unreadable trimmed document", err, logging.String("venue_id", venueID))
		return outcomeFailed
	}

	sourceHash := e.detector.SourceHash(&doc)

	// Source-hash gate: unchanged content never reaches the LLM. Records
	// flagged needsLLM bypass the gate so their retry actually happens.
	prev, err := e.store.GetGoldMetaCtx(ctx, venueID)
	if err != nil {
		e.log.Error("gold meta lookup failed", err, logging.String("venue_id", venueID))
	} else if prev != nil && prev.SourceHash == sourceHash && !prev.NeedsLLM {
		mGateSkips.Inc(1)
		return outcomeGateSkip
	}

	resp, parseErr := e.callWithRepair(ctx, &doc)
	record := models.GoldRecord{
		VenueID:          doc.VenueID,
		VenueName:        doc.VenueName,
		ExtractedAt:      e.now().UTC().Format(time.RFC3339),
		ExtractionMethod: method,
		SourceHash:       sourceHash,
		SourceModifiedAt: doc.ScrapedAt,
	}

	if parseErr != nil {
		// Schema failure after the repair pass: record it, keep the hash so
		// the gate holds, and flag for a later retry.
		mSchemaFails.Inc(1)
		record.NeedsLLM = true
		e.log.Warn("extraction needs retry", logging.String("venue_id", venueID), logging.Error(parseErr))
	} else {
		record.Promotions = &models.Promotions{Found: resp.Found, Entries: resp.Entries}
		if resp.Found && len(resp.Entries) > 0 {
			first := resp.Entries[0]
			record.HappyHour = &models.HappyHour{
				Found:    true,
				Times:    first.Times,
				Days:     first.Days,
				Specials: first.Specials,
			}
		} else {
			record.HappyHour = &models.HappyHour{Found: false}
		}
	}

	if err := e.root.WriteJSONAtomic(e.root.GoldPath(venueID), &record); err != nil {
		e.log.Error("gold write failed", err, logging.String("venue_id", venueID))
		return outcomeFailed
	}
	meta := &database.GoldMeta{
		VenueID:          record.VenueID,
		VenueName:        record.VenueName,
		SourceHash:       record.SourceHash,
		SourceModifiedAt: record.SourceModifiedAt,
		ExtractionMethod: method,
		ExtractedAt:      e.now().UTC(),
		NeedsLLM:         record.NeedsLLM,
		Found:            record.HasPromotions(),
	}
	if err := e.store.UpsertGoldMetaCtx(ctx, meta); err != nil {
		e.log.Error("gold meta upsert failed", err, logging.String("venue_id", venueID))
		return outcomeFailed
	}

	if record.NeedsLLM {
		return outcomeNeedsLLM
	}
	return outcomeProcessed
}

// callWithRepair issues the chat request with transient retry, then one
// repair pass when the response fails the schema.
func (e *Extractor) callWithRepair(ctx context.Context, doc *models.TrimmedDocument) (*llmResponse, error) {
	content, err := e.call(ctx, e.buildMessages(doc, ""))
	if err != nil {
		return nil, err
	}
	resp, perr := parseResponse(content)
	if perr == nil {
		return resp, nil
	}

	// Repair: ask once more for the same schema, quoting the broken reply.
	content, err = e.call(ctx, e.buildMessages(doc, content))
	if err != nil {
		return nil, perr
	}
	resp, perr2 := parseResponse(content)
	if perr2 != nil {
		return nil, errs.NewExternal("extractor.callWithRepair", "openai", "schema violation after repair", perr2)
	}
	return resp, nil
}

func (e *Extractor) buildMessages(doc *models.TrimmedDocument, broken string) []openai.ChatCompletionMessage {
	system, err := e.pm.Render(prompts.ExtractionSystem, nil)
	if err != nil {
		system = "Extract venue promotions. Respond with JSON only."
	}

	var text strings.Builder
	for _, p := range doc.Pages {
		if text.Len() >= promptTextCap {
			break
		}
		text.WriteString("\n\n=== ")
		text.WriteString(p.URL)
		text.WriteString(" ===\n")
		remain := promptTextCap - text.Len()
		if len(p.Text) > remain {
			text.WriteString(p.Text[:remain])
		} else {
			text.WriteString(p.Text)
		}
	}

	user, err := e.pm.Render(prompts.ExtractionUser, map[string]any{
		"VenueName": doc.VenueName,
		"VenueArea": deref(doc.VenueArea),
		"Website":   deref(doc.Website),
		"Text":      text.String(),
	})
	if err != nil {
		user = doc.VenueName + "\n" + text.String()
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	if broken != "" {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: broken},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "That response did not match the required JSON schema. Reply again with exactly one JSON object matching the schema."},
		)
	}
	return msgs
}

func (e *Extractor) call(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PerLLMTimeout())
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:          e.model,
		Messages:       msgs,
		Temperature:    e.temp,
		MaxTokens:      e.maxToks,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	policy := retry.Policy{
		Base:        2 * time.Second,
		Cap:         30 * time.Second,
		MaxAttempts: 3, // first try + 2 retries
		RetryOn:     map[retry.Kind]bool{retry.KindTransient: true, retry.KindRateLimit: true},
	}

	var content string
	err := retry.Do(ctx, policy, func(ctx context.Context) (retry.Kind, error) {
		var resp openai.ChatCompletionResponse
		cerr := e.cb.Do(ctx, func(ctx context.Context) error {
			t := mLLMLatency.Start()
			defer t.Observe()
			mLLMCalls.Inc(1)
			r, err := e.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		}, nil)
		if cerr != nil {
			if apiErr, ok := asAPIError(cerr); ok && apiErr.HTTPStatusCode == 429 {
				return retry.KindRateLimit, &retry.RateLimitError{Err: cerr}
			}
			return retry.KindTransient, cerr
		}
		if len(resp.Choices) == 0 {
			return retry.KindTransient, fmt.Errorf("empty choices")
		}
		e.cost.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		content = resp.Choices[0].Message.Content
		return 0, nil
	})
	if err != nil {
		return "", errs.NewExternal("extractor.call", "openai", "chat completion failed", err)
	}
	return content, nil
}

func asAPIError(err error) (*openai.APIError, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseResponse validates the strict schema. found=false is valid and
// terminal; missing entries with found=true is not.
func parseResponse(content string) (*llmResponse, error) {
	content = strings.TrimSpace(content)
	// Tolerate fenced output from models that ignore response_format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var resp llmResponse
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if resp.Found && len(resp.Entries) == 0 {
		return nil, fmt.Errorf("found=true with no entries")
	}
	for i, entry := range resp.Entries {
		if strings.TrimSpace(entry.Type) == "" {
			return nil, fmt.Errorf("entry %d missing type", i)
		}
	}
	return &resp, nil
}

func listJSONIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	return ids, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
