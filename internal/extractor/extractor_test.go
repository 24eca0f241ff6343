package extractor

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"spots-pipeline/internal/delta"
	"spots-pipeline/internal/models"
	"spots-pipeline/internal/prompts"
	testutil "spots-pipeline/internal/testing"
	"spots-pipeline/pkg/config"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// fakeChat replays canned responses and records call counts.
type fakeChat struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	content := `{"found": false, "entries": [], "reasoning": "nothing"}`
	if i < len(f.responses) {
		content = f.responses[i]
	} else if len(f.responses) > 0 {
		content = f.responses[len(f.responses)-1]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		Usage:   openai.Usage{PromptTokens: 100, CompletionTokens: 20},
	}, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 21, 3, 30, 0, 0, time.UTC)
}

func newExtractor(t *testing.T, chat *fakeChat, store *testutil.FakeStore) (*Extractor, paths.Root, *delta.Detector) {
	t.Helper()
	root := paths.New(t.TempDir())
	pm, err := prompts.NewManager("")
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	det := delta.New(root, logging.Nop())
	det.SetClock(fixedClock)
	cfg := config.DefaultPipeline()
	cfg.MaxIncrementalFiles = 10
	appCfg := &config.Config{OpenAIModel: "gpt-4o-mini", OpenAITemperature: 0.2, OpenAIMaxTokens: 500}
	e := New(root, cfg, appCfg, chat, store, pm, det, logging.Nop())
	e.SetClock(fixedClock)
	return e, root, det
}

func writeIncremental(t *testing.T, root paths.Root, venueID, text string) {
	t.Helper()
	doc := models.TrimmedDocument{
		VenueID:   venueID,
		VenueName: "venue " + venueID,
		ScrapedAt: "2026-01-21T03:00:00Z",
		Pages:     []models.TrimmedPage{{URL: "https://" + venueID + ".example.com", Text: text}},
	}
	if err := root.WriteJSONAtomic(root.IncrementalPath(venueID), &doc); err != nil {
		t.Fatal(err)
	}
}

const foundResponse = `{"found": true, "entries": [{"type": "Happy Hour", "days": "Monday-Friday", "times": "4pm-7pm", "label": "Happy Hour", "specials": ["$2 off all drinks"]}], "reasoning": "clear promo"}`

func TestIncrementalExtractionWritesGold(t *testing.T) {
	chat := &fakeChat{responses: []string{foundResponse}}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)

	writeIncremental(t, root, "v1", "Happy Hour Monday-Friday 4pm-7pm. $2 off all drinks!")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatalf("RunIncremental: %v", err)
	}
	if res.Skipped || res.Processed != 1 {
		t.Fatalf("res = %+v", res)
	}

	var gold models.GoldRecord
	if err := paths.ReadJSON(root.GoldPath("v1"), &gold); err != nil {
		t.Fatalf("gold record: %v", err)
	}
	if !gold.HasPromotions() {
		t.Fatal("promotions not recorded")
	}
	if gold.HappyHour == nil || gold.HappyHour.Times != "4pm-7pm" || gold.HappyHour.Days != "Monday-Friday" {
		t.Errorf("happyHour = %+v", gold.HappyHour)
	}
	if gold.ExtractionMethod != models.ExtractionIncremental {
		t.Errorf("method = %q", gold.ExtractionMethod)
	}
	if len(gold.SourceHash) != 16 {
		t.Errorf("sourceHash = %q", gold.SourceHash)
	}
	if meta := store.GoldMeta["v1"]; meta == nil || !meta.Found {
		t.Error("gold meta not mirrored to store")
	}
}

func TestSourceHashGateSkipsLLM(t *testing.T) {
	chat := &fakeChat{responses: []string{foundResponse}}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)

	writeIncremental(t, root, "v1", "Happy Hour daily 4-7")

	if _, err := e.RunIncremental(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := chat.callCount()
	if first == 0 {
		t.Fatal("LLM was not called on first pass")
	}

	// Same content again: the stored hash must gate the call.
	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if chat.callCount() != first {
		t.Errorf("LLM called %d times after gate, want %d", chat.callCount(), first)
	}
	if res.GateSkips != 1 {
		t.Errorf("gateSkips = %d, want 1", res.GateSkips)
	}
}

func TestBudgetGateSkipsWholeStep(t *testing.T) {
	chat := &fakeChat{}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)
	e.cfg.MaxIncrementalFiles = 3

	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		writeIncremental(t, root, id, "content for "+id)
	}

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Fatal("expected step skip")
	}
	if !strings.Contains(res.Reason, "5 > 3") {
		t.Errorf("reason = %q, want it to name the limit", res.Reason)
	}
	if chat.callCount() != 0 {
		t.Error("budget gate still invoked the LLM")
	}
	if _, err := os.Stat(root.GoldPath("v1")); !os.IsNotExist(err) {
		t.Error("gold file written despite skip")
	}
}

func TestIncrementalRefusesWithoutBulkSentinel(t *testing.T) {
	chat := &fakeChat{}
	store := testutil.NewFakeStore()
	e, root, _ := newExtractor(t, chat, store)
	writeIncremental(t, root, "v1", "content")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || !strings.Contains(res.Reason, "bulk") {
		t.Errorf("res = %+v, want bulk-sentinel skip", res)
	}
}

func TestBulkWritesSentinelAndFlag(t *testing.T) {
	chat := &fakeChat{responses: []string{foundResponse}}
	store := testutil.NewFakeStore()
	e, root, _ := newExtractor(t, chat, store)

	doc := models.TrimmedDocument{
		VenueID: "v1", VenueName: "v1", ScrapedAt: "2026-01-21T03:00:00Z",
		Pages: []models.TrimmedPage{{Text: "happy hour"}},
	}
	if err := root.WriteJSONAtomic(root.TrimmedPath("v1"), &doc); err != nil {
		t.Fatal(err)
	}

	res, err := e.RunBulk(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("res = %+v", res)
	}
	if _, err := os.Stat(root.BulkSentinelPath()); err != nil {
		t.Error("sentinel file missing")
	}
	if store.Flags["bulk_complete"] != "true" {
		t.Error("store flag not set")
	}
}

func TestRepairPassRecoversBadJSON(t *testing.T) {
	chat := &fakeChat{responses: []string{"sure! here you go: not json", foundResponse}}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)
	writeIncremental(t, root, "v1", "happy hour text")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsLLM != 0 || res.Processed != 1 {
		t.Fatalf("res = %+v", res)
	}
	if chat.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (original + repair)", chat.callCount())
	}
}

func TestSchemaFailureAfterRepairMarksNeedsLLM(t *testing.T) {
	chat := &fakeChat{responses: []string{"garbage", "still garbage"}}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)
	writeIncremental(t, root, "v1", "happy hour text")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NeedsLLM != 1 {
		t.Fatalf("res = %+v, want needsLLM 1", res)
	}

	var gold models.GoldRecord
	if err := paths.ReadJSON(root.GoldPath("v1"), &gold); err != nil {
		t.Fatal(err)
	}
	if !gold.NeedsLLM {
		t.Error("gold record not flagged needsLLM")
	}
	if gold.HasPromotions() {
		t.Error("failed extraction must not carry promotions")
	}
}

func TestFoundFalseStillWritesGold(t *testing.T) {
	chat := &fakeChat{responses: []string{`{"found": false, "entries": [], "reasoning": "no promos"}`}}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)
	writeIncremental(t, root, "v1", "We serve great food and drinks. Open daily.")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("res = %+v", res)
	}
	var gold models.GoldRecord
	if err := paths.ReadJSON(root.GoldPath("v1"), &gold); err != nil {
		t.Fatal(err)
	}
	if gold.HasPromotions() {
		t.Error("found=false recorded as promotion")
	}
	// The gate must now hold for the same content.
	if store.GoldHashes["v1"] == "" {
		t.Error("hash not stored for found=false record")
	}
}

func TestTransientErrorRetries(t *testing.T) {
	chat := &fakeChat{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []string{"", foundResponse},
	}
	store := testutil.NewFakeStore()
	store.Flags["bulk_complete"] = "true"
	e, root, _ := newExtractor(t, chat, store)
	writeIncremental(t, root, "v1", "happy hour")

	res, err := e.RunIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestParseResponseValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid found", foundResponse, false},
		{"valid not found", `{"found": false, "entries": []}`, false},
		{"fenced json", "```json\n" + foundResponse + "\n```", false},
		{"not json", "hello", true},
		{"found without entries", `{"found": true, "entries": []}`, true},
		{"entry missing type", `{"found": true, "entries": [{"days": "Mon"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseResponse(%q) err = %v, wantErr %v", tt.content, err, tt.wantErr)
			}
		})
	}
}
