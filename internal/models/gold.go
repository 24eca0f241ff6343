package models

// Extraction methods recorded on gold records.
const (
	ExtractionBulk        = "llm-bulk"
	ExtractionIncremental = "llm-incremental"
)

// GoldRecord is the LLM-structured output for one venue. sourceHash
// identifies the exact trimmed content the record was extracted from; the
// extractor skips the LLM whenever the hash is unchanged, unless the record
// is flagged needsLLM.
type GoldRecord struct {
	VenueID          string      `json:"venueId"`
	VenueName        string      `json:"venueName"`
	ExtractedAt      string      `json:"extractedAt"`
	ExtractionMethod string      `json:"extractionMethod"`
	SourceHash       string      `json:"sourceHash"` // 16 hex chars
	SourceModifiedAt string      `json:"sourceModifiedAt"`
	NeedsLLM         bool        `json:"needsLLM"`
	Confidence       float64     `json:"confidence"`
	HappyHour        *HappyHour  `json:"happyHour,omitempty"`
	Promotions       *Promotions `json:"promotions,omitempty"`
}

// HappyHour is the legacy single-entry shape kept for the serving layer.
type HappyHour struct {
	Found    bool     `json:"found"`
	Times    string   `json:"times,omitempty"`
	Days     string   `json:"days,omitempty"`
	Specials []string `json:"specials,omitempty"`
}

// Promotions is the general multi-entry shape. Found=false with no entries
// is a valid terminal answer and still produces a gold record so the
// source-hash gate can skip the venue next run.
type Promotions struct {
	Found   bool             `json:"found"`
	Entries []PromotionEntry `json:"entries,omitempty"`
}

type PromotionEntry struct {
	Type     string   `json:"type"` // activity category, e.g. "Happy Hour"
	Days     string   `json:"days,omitempty"`
	Times    string   `json:"times,omitempty"`
	Label    string   `json:"label,omitempty"`
	Specials []string `json:"specials,omitempty"`
}

// HasPromotions reports whether any promotion was found in either shape.
func (g GoldRecord) HasPromotions() bool {
	if g.Promotions != nil && g.Promotions.Found {
		return true
	}
	return g.HappyHour != nil && g.HappyHour.Found
}

// EntryList normalizes both shapes into a flat entry list.
func (g GoldRecord) EntryList() []PromotionEntry {
	if g.Promotions != nil && g.Promotions.Found {
		return g.Promotions.Entries
	}
	if g.HappyHour != nil && g.HappyHour.Found {
		return []PromotionEntry{{
			Type:     "Happy Hour",
			Days:     g.HappyHour.Days,
			Times:    g.HappyHour.Times,
			Specials: g.HappyHour.Specials,
		}}
	}
	return nil
}
