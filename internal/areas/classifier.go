package areas

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Candidate carries every geographic signal the classifier may consult.
// Components come from the Places address_components payload; only the type
// strings and long names matter here.
type Candidate struct {
	Lat        float64
	Lng        float64
	Address    string
	Zip        string
	Components []AddressComponent
}

type AddressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

// streetOverride hard-maps a street fragment onto an area. These encode
// observed misclassifications that must not regress; they win over every
// other signal. requireZips, when set, additionally gates on the parsed zip.
type streetOverride struct {
	fragment    string
	area        string
	requireZips []string
}

var streetOverrides = []streetOverride{
	{fragment: "east bay street", area: Downtown},
	{fragment: "pittsburgh avenue", area: NorthCharleston},
	{fragment: "pittsburgh ave", area: NorthCharleston},
	{fragment: "clements ferry", area: DanielIsland, requireZips: []string{"29492"}},
}

// rangeRule splits a street spanning two areas by street number. Lo..Hi
// inclusive maps to In; anything above maps to Above. Parse failures skip
// the rule entirely.
type rangeRule struct {
	street string
	lo, hi int
	in     string
	above  string
}

var rangeRules = []rangeRule{
	{street: "king street", lo: 1, hi: 2000, in: Downtown, above: WestAshley},
	{street: "king st", lo: 1, hi: 2000, in: Downtown, above: WestAshley},
	{street: "meeting street", lo: 1, hi: 400, in: Downtown, above: NorthCharleston},
	{street: "meeting st", lo: 1, hi: 400, in: Downtown, above: NorthCharleston},
}

// keywordTable maps explicit area mentions in free-text addresses. Matching
// is longest-first so "north charleston" is never masked by a shorter
// fragment. Bare "charleston" is intentionally absent: it appears in nearly
// every metro address and means nothing by itself.
var keywordTable = map[string]string{
	"north charleston":  NorthCharleston,
	"n charleston":      NorthCharleston,
	"n. charleston":     NorthCharleston,
	"west ashley":       WestAshley,
	"mount pleasant":    MountPleasant,
	"mt pleasant":       MountPleasant,
	"mt. pleasant":      MountPleasant,
	"daniel island":     DanielIsland,
	"james island":      JamesIsland,
	"johns island":      JohnsIsland,
	"john's island":     JohnsIsland,
	"sullivan's island": SullivansIOP,
	"sullivans island":  SullivansIOP,
	"isle of palms":     SullivansIOP,
	"folly beach":       FollyBeach,
	"wando":             DanielIsland,
}

// sublocalityTable maps the Places sublocality component onto areas.
var sublocalityTable = map[string]string{
	"downtown":         Downtown,
	"charleston":       Downtown,
	"north charleston": NorthCharleston,
	"west ashley":      WestAshley,
	"mount pleasant":   MountPleasant,
	"daniel island":    DanielIsland,
	"james island":     JamesIsland,
	"johns island":     JohnsIsland,
	"cainhoy":          DanielIsland,
}

var (
	leadingNumRe = regexp.MustCompile(`^\s*(\d+)\b`)
	zipRe        = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
)

// Classify maps a candidate to exactly one configured area name, or ""
// when every signal misses. Pure: same input, same output; never errors.
//
// Priority cascade, first match wins:
//  1. authoritative street overrides
//  2. numeric street-range rules
//  3. explicit area keywords in the address (longest first)
//  4. Places sublocality
//  5. zip-code membership (smallest box on ties)
//  6. bounding-box containment (smallest box first)
//
// Free-text parsing is noisy, sublocality is reliable but often missing,
// and the boxes overlap; the order reflects which signal we trust most.
func (s *Set) Classify(c Candidate) string {
	addr := strings.ToLower(strings.TrimSpace(c.Address))
	zip := c.Zip
	if zip == "" {
		if m := zipRe.FindStringSubmatch(addr); m != nil {
			zip = m[1]
		}
	}

	// 1. street overrides
	for _, o := range streetOverrides {
		if !strings.Contains(addr, o.fragment) {
			continue
		}
		if len(o.requireZips) > 0 && !containsString(o.requireZips, zip) {
			continue
		}
		if s.Known(o.area) {
			return o.area
		}
	}

	// 2. numeric street ranges
	for _, r := range rangeRules {
		if !strings.Contains(addr, r.street) {
			continue
		}
		m := leadingNumRe.FindStringSubmatch(addr)
		if m == nil {
			continue // unparseable street number, rule skipped
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		var area string
		switch {
		case n >= r.lo && n <= r.hi:
			area = r.in
		case n > r.hi:
			area = r.above
		default:
			continue
		}
		if s.Known(area) {
			return area
		}
	}

	// 3. explicit keywords, longest first
	if area := s.matchKeyword(addr); area != "" {
		return area
	}

	// 4. sublocality
	for _, comp := range c.Components {
		if !hasType(comp.Types, "sublocality_level_1") && !hasType(comp.Types, "sublocality") {
			continue
		}
		if area, ok := sublocalityTable[strings.ToLower(comp.LongName)]; ok && s.Known(area) {
			return area
		}
	}

	// 5. zip membership, smallest box wins ties
	if zip != "" {
		var hit *Area
		for _, a := range s.bySize { // already smallest first
			if containsString(a.ZipCodes, zip) {
				hit = a
				break
			}
		}
		if hit != nil {
			return hit.Name
		}
	}

	// 6. bounding boxes, smallest first so inner areas beat enclosing ones
	if c.Lat != 0 || c.Lng != 0 {
		for _, a := range s.bySize {
			if a.Bounds.Contains(c.Lat, c.Lng) {
				return a.Name
			}
		}
	}

	return ""
}

func (s *Set) matchKeyword(addr string) string {
	keys := make([]string, 0, len(keywordTable))
	for k := range keywordTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(addr, k) {
			if area := keywordTable[k]; s.Known(area) {
				return area
			}
		}
	}
	return ""
}

func hasType(types []string, t string) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
