package fetcher

import (
	"strings"

	"spots-pipeline/pkg/utils"
)

// CandidateURLs derives the fetch set for a venue: the website itself plus
// a small fixed set of path suffixes resolved against its origin. Pages
// that fail or come back trivial are simply not saved; derivation itself
// never filters by reachability.
func CandidateURLs(website string, suffixes []string) []string {
	site := utils.NormalizeURL(website)
	if site == "" {
		return nil
	}
	origin := utils.Origin(site)
	if origin == "" {
		return nil
	}

	seen := map[string]bool{site: true}
	out := []string{site}
	for _, suffix := range suffixes {
		suffix = strings.TrimSpace(suffix)
		if suffix == "" {
			continue
		}
		if !strings.HasPrefix(suffix, "/") {
			suffix = "/" + suffix
		}
		u := origin + suffix
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
