package review

import (
	"context"
	"os"
	"strings"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// PassResult summarizes one review pass over freshly extracted gold.
type PassResult struct {
	Reviewed int
	Accepted int
	Rejected int
	Unsure   int
}

// ApplyToGold reviews the promotion entries of every gold record in this
// run's work-set, drops rejected entries and rewrites the records.
// Unsure entries are kept (they surface in the report through the reviews
// table); records flagged needsLLM are left alone.
func (r *Reviewer) ApplyToGold(ctx context.Context, root paths.Root) (*PassResult, error) {
	entries, err := os.ReadDir(root.IncrementalRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return &PassResult{}, nil
		}
		return nil, err
	}

	res := &PassResult{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		venueID := strings.TrimSuffix(e.Name(), ".json")
		if err := r.reviewGoldRecord(ctx, root, venueID, res); err != nil {
			r.log.Error("gold review failed", err, logging.String("venue_id", venueID))
		}
	}
	return res, nil
}

func (r *Reviewer) reviewGoldRecord(ctx context.Context, root paths.Root, venueID string, res *PassResult) error {
	var gold models.GoldRecord
	if err := paths.ReadJSON(root.GoldPath(venueID), &gold); err != nil {
		if os.IsNotExist(err) {
			return nil // extraction was skipped for this venue
		}
		return err
	}
	if gold.NeedsLLM || !gold.HasPromotions() {
		return nil
	}

	sourceText := r.sourceText(root, venueID)

	var kept []models.PromotionEntry
	maxScore := 0.0
	for _, entry := range gold.EntryList() {
		outcome, score, err := r.Review(ctx, gold.VenueName, venueID, entry, sourceText)
		if err != nil {
			return err
		}
		res.Reviewed++
		if score > maxScore {
			maxScore = score
		}
		switch outcome {
		case OutcomeAccept:
			res.Accepted++
			kept = append(kept, entry)
		case OutcomeReject:
			res.Rejected++
		case OutcomeUnsure:
			res.Unsure++
			kept = append(kept, entry)
		}
	}

	gold.Confidence = maxScore
	gold.Promotions = &models.Promotions{Found: len(kept) > 0, Entries: kept}
	if len(kept) > 0 {
		first := kept[0]
		gold.HappyHour = &models.HappyHour{Found: true, Times: first.Times, Days: first.Days, Specials: first.Specials}
	} else {
		gold.HappyHour = &models.HappyHour{Found: false}
	}
	return root.WriteJSONAtomic(root.GoldPath(venueID), &gold)
}

func (r *Reviewer) sourceText(root paths.Root, venueID string) string {
	var doc models.TrimmedDocument
	if err := paths.ReadJSON(root.TrimmedPath(venueID), &doc); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range doc.Pages {
		b.WriteString(p.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
