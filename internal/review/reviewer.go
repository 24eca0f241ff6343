package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"spots-pipeline/internal/models"
	"spots-pipeline/internal/prompts"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
)

var (
	mAutoAccept = metrics.Default.Counter("review_auto_accept_total", "Entries accepted by heuristic alone")
	mAutoReject = metrics.Default.Counter("review_auto_reject_total", "Entries rejected by heuristic alone")
	mLLMAsked   = metrics.Default.Counter("review_llm_asked_total", "Borderline entries sent to the LLM")
	mCacheHits  = metrics.Default.Counter("review_decision_cache_total", "Decisions answered from the reviews table")
)

// ChatClient matches the extractor's client slice.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Store persists review decisions across runs.
type Store interface {
	GetReviewCtx(ctx context.Context, spotKey string) (*models.ConfidenceReview, error)
	SaveReviewCtx(ctx context.Context, r *models.ConfidenceReview) error
}

// Outcome of reviewing one entry.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeReject
	OutcomeUnsure
)

// Reviewer applies the heuristic and, for borderline scores, the LLM pass.
type Reviewer struct {
	client ChatClient
	store  Store
	pm     *prompts.Manager
	model  string
	tHigh  float64
	tLow   float64
	log    *logging.ComponentLogger
	now    func() time.Time
}

func New(client ChatClient, store Store, pm *prompts.Manager, model string, tHigh, tLow float64, log *logging.Logger) *Reviewer {
	return &Reviewer{
		client: client,
		store:  store,
		pm:     pm,
		model:  model,
		tHigh:  tHigh,
		tLow:   tLow,
		log:    log.WithComponent("review"),
		now:    time.Now,
	}
}

// SetClock pins applied_at stamps for tests.
func (r *Reviewer) SetClock(now func() time.Time) { r.now = now }

// SpotKey builds the persistent review key: venue + type + period.
func SpotKey(venueID, spotType, period string) string {
	if period == "" {
		period = "any"
	}
	return venueID + "|" + spotType + "|" + period
}

// Review scores one entry. Persisted decisions win over everything; a
// fresh borderline score asks the LLM once and records the answer.
func (r *Reviewer) Review(ctx context.Context, venueName, venueID string, entry models.PromotionEntry, sourceText string) (Outcome, float64, error) {
	score := Score(entry, sourceText)
	key := SpotKey(venueID, entry.Type, entry.Times)

	if prev, err := r.store.GetReviewCtx(ctx, key); err == nil && prev != nil && prev.LLMDecision != nil {
		mCacheHits.Inc(1)
		return outcomeFor(*prev.LLMDecision), score, nil
	}

	switch TierFor(score, r.tLow, r.tHigh) {
	case TierConfident:
		mAutoAccept.Inc(1)
		return OutcomeAccept, score, nil
	case TierReject:
		mAutoReject.Inc(1)
		return OutcomeReject, score, nil
	}

	// Borderline: ask the LLM and persist whatever it says.
	mLLMAsked.Inc(1)
	decision, reasoning, err := r.askLLM(ctx, venueName, entry, sourceText, score)
	rec := &models.ConfidenceReview{
		SpotKey:        key,
		HeuristicScore: score,
		LLMReasoning:   reasoning,
	}
	if err != nil {
		// No decision recorded: the key surfaces in the report as an action
		// item and the next run asks again.
		r.log.Warn("review LLM pass failed", logging.String("key", key), logging.Error(err))
		if serr := r.store.SaveReviewCtx(ctx, rec); serr != nil {
			r.log.Error("review save failed", serr)
		}
		return OutcomeUnsure, score, nil
	}

	rec.LLMDecision = &decision
	now := r.now().UTC()
	rec.AppliedAt = &now
	if serr := r.store.SaveReviewCtx(ctx, rec); serr != nil {
		r.log.Error("review save failed", serr)
	}
	return outcomeFor(decision), score, nil
}

func (r *Reviewer) askLLM(ctx context.Context, venueName string, entry models.PromotionEntry, sourceText string, score float64) (string, string, error) {
	excerpt := sourceText
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	user, err := r.pm.Render(prompts.ReviewUser, map[string]any{
		"VenueName": venueName,
		"Score":     score,
		"Type":      entry.Type,
		"Days":      entry.Days,
		"Times":     entry.Times,
		"Label":     entry.Label,
		"Specials":  strings.Join(entry.Specials, "; "),
		"Excerpt":   excerpt,
	})
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: user}},
		Temperature: 0.1,
		MaxTokens:   150,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("empty choices")
	}

	var parsed struct {
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return "", "", fmt.Errorf("review response not JSON: %w", err)
	}
	switch parsed.Decision {
	case models.ReviewAccept, models.ReviewReject, models.ReviewUnsure:
		return parsed.Decision, parsed.Reasoning, nil
	default:
		return "", "", fmt.Errorf("unknown decision %q", parsed.Decision)
	}
}

func outcomeFor(decision string) Outcome {
	switch decision {
	case models.ReviewAccept:
		return OutcomeAccept
	case models.ReviewReject:
		return OutcomeReject
	default:
		return OutcomeUnsure
	}
}
