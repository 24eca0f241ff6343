// Package review scores extracted promotions and routes borderline ones
// through an LLM second pass. Decisions persist per spot key so they are
// never re-asked.
package review

import (
	"regexp"
	"strings"

	"spots-pipeline/internal/models"
)

var (
	timeRe = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm)?\s*(-|to|until|–)\s*\d{1,2}(:\d{2})?\s*(am|pm)\b|\b\d{1,2}(am|pm)\s*-\s*\d{1,2}(am|pm)\b`)
	dayRe  = regexp.MustCompile(`(?i)\b(mon|tues?|wednes|thurs?|fri|satur|sun)(day)?s?\b|daily|weekdays|every ?day`)
)

// negativePatterns in the source text suggest the "promotion" is really
// boilerplate: opening hours or marketing fluff.
var negativePatterns = []string{
	"business hours",
	"we are happy to serve",
	"happy to serve you",
	"happy to help",
	"hours of operation",
	"now hiring",
}

// weakLabels score lower than an explicit "Happy Hour".
var weakLabels = map[string]bool{
	"hh":       true,
	"special":  true,
	"specials": true,
	"deal":     true,
	"deals":    true,
}

// Score computes a heuristic confidence in [0,1] for one extracted entry
// against the source text it came from.
func Score(entry models.PromotionEntry, sourceText string) float64 {
	s := 0.0

	if strings.TrimSpace(entry.Times) != "" && timeRe.MatchString(entry.Times) {
		s += 0.30
	} else if strings.TrimSpace(entry.Times) != "" {
		s += 0.15
	}

	if strings.TrimSpace(entry.Days) != "" && dayRe.MatchString(entry.Days) {
		s += 0.25
	} else if strings.TrimSpace(entry.Days) != "" {
		s += 0.10
	}

	label := strings.ToLower(strings.TrimSpace(entry.Label))
	switch {
	case label == "":
		s += 0.05
	case weakLabels[label]:
		s += 0.05
	default:
		s += 0.20
	}

	s += specialsScore(entry.Specials)

	lower := strings.ToLower(sourceText)
	for _, neg := range negativePatterns {
		if strings.Contains(lower, neg) {
			s -= 0.25
			break
		}
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// specialsScore rewards concrete, coherent specials lists. Empty lists get
// nothing; one-word fragments barely count.
func specialsScore(specials []string) float64 {
	if len(specials) == 0 {
		return 0
	}
	coherent := 0
	for _, sp := range specials {
		sp = strings.TrimSpace(sp)
		if len(sp) >= 5 && len(sp) <= 120 {
			coherent++
		}
	}
	switch {
	case coherent == 0:
		return 0.05
	case coherent == len(specials):
		return 0.25
	default:
		return 0.15
	}
}

// Tier buckets a score against the configured thresholds.
type Tier int

const (
	TierReject Tier = iota
	TierBorderline
	TierConfident
)

func TierFor(score, tLow, tHigh float64) Tier {
	switch {
	case score >= tHigh:
		return TierConfident
	case score >= tLow:
		return TierBorderline
	default:
		return TierReject
	}
}
