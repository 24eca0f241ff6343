// Package trimmer converts merged HTML documents into LLM-ready plain text
// under silver_trimmed/all/, preserving enough structure (paragraph and
// list breaks, the page title) to keep promotions readable.
package trimmer

import (
	"os"
	"strings"

	"golang.org/x/net/html"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// Trimmer rewrites silver_merged/all/*.json into silver_trimmed/all/*.json.
type Trimmer struct {
	root        paths.Root
	maxTextSize int
	log         *logging.ComponentLogger
}

func New(root paths.Root, maxTextSize int, log *logging.Logger) *Trimmer {
	if maxTextSize <= 0 {
		maxTextSize = 50 * 1024
	}
	return &Trimmer{root: root, maxTextSize: maxTextSize, log: log.WithComponent("trimmer")}
}

// Run trims every venue in the list, returning the number written.
func (t *Trimmer) Run(venues []models.Venue) (int, error) {
	written := 0
	for _, v := range venues {
		if err := t.TrimVenue(v.ID); err != nil {
			if os.IsNotExist(err) {
				continue // no merged document for this venue
			}
			t.log.Error("trim failed", err, logging.String("venue_id", v.ID))
			continue
		}
		written++
	}
	return written, nil
}

// TrimVenue converts one merged document. Deterministic: the same merged
// input always yields the same trimmed output.
func (t *Trimmer) TrimVenue(venueID string) error {
	var merged models.MergedDocument
	if err := paths.ReadJSON(t.root.MergedPath(venueID), &merged); err != nil {
		return err
	}

	trimmed := models.TrimmedDocument{
		VenueID:   merged.VenueID,
		VenueName: merged.VenueName,
		VenueArea: merged.VenueArea,
		Website:   merged.Website,
		ScrapedAt: merged.ScrapedAt,
		Pages:     make([]models.TrimmedPage, 0, len(merged.Pages)),
	}

	for _, p := range merged.Pages {
		text := ExtractText(p.HTML)
		if len(text) > t.maxTextSize {
			text = text[:t.maxTextSize]
		}
		trimmed.Pages = append(trimmed.Pages, models.TrimmedPage{
			URL:          p.URL,
			Text:         text,
			Hash:         p.Hash,
			DownloadedAt: p.DownloadedAt,
		})
	}

	return t.root.WriteJSONAtomic(t.root.TrimmedPath(venueID), &trimmed)
}

// Tags removed wholesale: their text is never venue content.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"header":   true,
	"footer":   true,
	"nav":      true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
}

// Tags that imply a line break before and after their content.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "ul": true, "ol": true, "table": true,
	"blockquote": true,
}

// ExtractText parses HTML tolerantly and extracts visible text. The page
// title is prefixed as "[Page Title: …]" on its own line; paragraph and
// list boundaries become newlines; all other whitespace runs collapse to a
// single space.
func ExtractText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// html.Parse almost never fails; fall back to the raw bytes so a
		// broken page still hashes consistently.
		return strings.TrimSpace(rawHTML)
	}

	var title string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "title" {
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if skipTags[tag] || isHidden(n) {
				return
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextNode:
			b.WriteString(strings.Join(strings.Fields(n.Data), " "))
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[strings.ToLower(n.Data)] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	text := collapseWhitespace(b.String())
	if title != "" {
		text = "[Page Title: " + title + "]\n" + text
	}
	return text
}

// isHidden catches the inline-style hiding patterns venues actually use.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.ToLower(a.Key) != "style" {
			continue
		}
		style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

// collapseWhitespace squeezes runs of spaces/tabs to one space while
// keeping single newlines as paragraph separators.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
