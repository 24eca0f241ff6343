package models

// MergedDocument is one JSON per venue collecting the raw pages fetched
// today. Always rewritten whole; last writer wins.
type MergedDocument struct {
	VenueID   string       `json:"venueId"`
	VenueName string       `json:"venueName"`
	VenueArea *string      `json:"venueArea"`
	Website   *string      `json:"website"`
	ScrapedAt string       `json:"scrapedAt"` // ISO-8601 UTC
	Pages     []MergedPage `json:"pages"`
}

type MergedPage struct {
	URL          string `json:"url"`
	HTML         string `json:"html"`
	Hash         string `json:"hash"`
	DownloadedAt string `json:"downloadedAt"` // ISO-8601
}

// TrimmedDocument mirrors MergedDocument with extracted visible text in
// place of HTML. Rewritten deterministically from the merged input.
type TrimmedDocument struct {
	VenueID   string        `json:"venueId"`
	VenueName string        `json:"venueName"`
	VenueArea *string       `json:"venueArea"`
	Website   *string       `json:"website"`
	ScrapedAt string        `json:"scrapedAt"`
	Pages     []TrimmedPage `json:"pages"`
}

type TrimmedPage struct {
	URL          string `json:"url"`
	Text         string `json:"text"`
	Hash         string `json:"hash"`
	DownloadedAt string `json:"downloadedAt"`
}

// DeltaSummary is emitted next to the incremental work-set after each delta
// pass.
type DeltaSummary struct {
	Date         string   `json:"date"`
	PreviousDate string   `json:"previousDate"`
	New          []string `json:"new"`
	Changed      []string `json:"changed"`
	Unchanged    []string `json:"unchanged"`
	Summary      string   `json:"summary"`
}
