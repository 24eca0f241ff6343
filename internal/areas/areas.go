// Package areas loads the named-neighborhood configuration and assigns
// venues to areas from heterogeneous geographic signals.
package areas

import (
	"fmt"
	"os"
	"sort"

	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/paths"
)

// Bounds is a lat/lng bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies inside (inclusive).
func (b Bounds) Contains(lat, lng float64) bool {
	return b.South <= lat && lat <= b.North && b.West <= lng && lng <= b.East
}

// SurfaceDeg returns the box area in square degrees; used only for
// smallest-box tie-breaking, so the unit does not matter.
func (b Bounds) SurfaceDeg() float64 {
	return (b.North - b.South) * (b.East - b.West)
}

// Area is one named neighborhood.
type Area struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Bounds      Bounds   `json:"bounds"`
	CenterLat   float64  `json:"center_lat"`
	CenterLng   float64  `json:"center_lng"`
	RadiusM     int      `json:"radius_m"`
	ZipCodes    []string `json:"zip_codes"`
}

// Set is the loaded area configuration, immutable after Load.
type Set struct {
	MetroBounds Bounds `json:"metro_bounds"`
	Areas       []Area `json:"areas"`

	byName map[string]*Area
	// areas sorted smallest bounding box first; an inner area must win over
	// a larger enclosing one
	bySize []*Area
}

// Load reads config/areas.json under the data root; a missing file falls
// back to the built-in Charleston set. Invariant violations are fatal.
func Load(root paths.Root) (*Set, error) {
	s := &Set{}
	if err := paths.ReadJSON(root.AreasPath(), s); err != nil {
		if !os.IsNotExist(err) {
			return nil, errs.NewConfig("areas.Load", "unreadable "+root.AreasPath(), err)
		}
		s = DefaultSet()
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.index()
	return s, nil
}

// FromConfig validates and indexes a set built in code (tests, embedded
// defaults) the same way Load does for the on-disk file.
func FromConfig(s *Set) (*Set, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.index()
	return s, nil
}

func (s *Set) validate() error {
	mb := s.MetroBounds
	if mb.South >= mb.North || mb.West >= mb.East {
		return errs.NewIntegrity("areas.validate", "metro bounds are degenerate", nil)
	}
	for _, a := range s.Areas {
		b := a.Bounds
		if b.South >= b.North || b.West >= b.East {
			return errs.NewIntegrity("areas.validate", fmt.Sprintf("area %q has invalid bounds", a.Name), nil)
		}
		if !b.Contains(a.CenterLat, a.CenterLng) {
			return errs.NewIntegrity("areas.validate", fmt.Sprintf("area %q center outside its bounds", a.Name), nil)
		}
		if !mb.Contains(b.South, b.West) || !mb.Contains(b.North, b.East) {
			return errs.NewIntegrity("areas.validate", fmt.Sprintf("area %q bounds outside metro box", a.Name), nil)
		}
	}
	return nil
}

func (s *Set) index() {
	s.byName = make(map[string]*Area, len(s.Areas))
	s.bySize = make([]*Area, 0, len(s.Areas))
	for i := range s.Areas {
		a := &s.Areas[i]
		s.byName[a.Name] = a
		s.bySize = append(s.bySize, a)
	}
	// Smallest box first; ties broken by name for determinism.
	sort.Slice(s.bySize, func(i, j int) bool {
		si, sj := s.bySize[i].Bounds.SurfaceDeg(), s.bySize[j].Bounds.SurfaceDeg()
		if si != sj {
			return si < sj
		}
		return s.bySize[i].Name < s.bySize[j].Name
	})
}

// Known reports whether name is a configured area.
func (s *Set) Known(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Get returns an area by name, nil when unknown.
func (s *Set) Get(name string) *Area { return s.byName[name] }

// Names returns all configured area names.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.Areas))
	for _, a := range s.Areas {
		out = append(out, a.Name)
	}
	return out
}

// Area display names used throughout the default Charleston set.
const (
	Downtown        = "Downtown Charleston"
	NorthCharleston = "North Charleston"
	WestAshley      = "West Ashley"
	MountPleasant   = "Mount Pleasant"
	JamesIsland     = "James Island"
	JohnsIsland     = "Johns Island"
	DanielIsland    = "Daniel Island"
	SullivansIOP    = "Sullivan's & IOP"
	FollyBeach      = "Folly Beach"
)

// DefaultSet is the Charleston metro configuration shipped with the binary.
// Bounds are deliberately coarse; the classifier's earlier rules absorb the
// overlap.
func DefaultSet() *Set {
	return &Set{
		MetroBounds: Bounds{South: 32.55, West: -80.35, North: 33.10, East: -79.55},
		Areas: []Area{
			{
				Name: Downtown, DisplayName: "Downtown Charleston",
				Bounds:    Bounds{South: 32.762, West: -79.960, North: 32.810, East: -79.920},
				CenterLat: 32.784, CenterLng: -79.938, RadiusM: 2500,
				ZipCodes: []string{"29401", "29403", "29409", "29424"},
			},
			{
				Name: NorthCharleston, DisplayName: "North Charleston",
				Bounds:    Bounds{South: 32.810, West: -80.110, North: 32.990, East: -79.940},
				CenterLat: 32.885, CenterLng: -80.015, RadiusM: 6000,
				ZipCodes: []string{"29405", "29406", "29418", "29420"},
			},
			{
				Name: WestAshley, DisplayName: "West Ashley",
				Bounds:    Bounds{South: 32.740, West: -80.130, North: 32.850, East: -79.960},
				CenterLat: 32.795, CenterLng: -80.035, RadiusM: 5000,
				ZipCodes: []string{"29407", "29414"},
			},
			{
				Name: MountPleasant, DisplayName: "Mount Pleasant",
				Bounds:    Bounds{South: 32.760, West: -79.920, North: 32.920, East: -79.750},
				CenterLat: 32.832, CenterLng: -79.850, RadiusM: 6000,
				ZipCodes: []string{"29464", "29466"},
			},
			{
				Name: JamesIsland, DisplayName: "James Island",
				Bounds:    Bounds{South: 32.690, West: -79.990, North: 32.762, East: -79.900},
				CenterLat: 32.725, CenterLng: -79.945, RadiusM: 4000,
				ZipCodes: []string{"29412"},
			},
			{
				Name: JohnsIsland, DisplayName: "Johns Island",
				Bounds:    Bounds{South: 32.600, West: -80.180, North: 32.740, East: -79.990},
				CenterLat: 32.670, CenterLng: -80.080, RadiusM: 7000,
				ZipCodes: []string{"29455"},
			},
			{
				Name: DanielIsland, DisplayName: "Daniel Island",
				Bounds:    Bounds{South: 32.830, West: -79.940, North: 32.900, East: -79.880},
				CenterLat: 32.860, CenterLng: -79.910, RadiusM: 3000,
				ZipCodes: []string{"29492"},
			},
			{
				Name: SullivansIOP, DisplayName: "Sullivan's Island & Isle of Palms",
				Bounds:    Bounds{South: 32.755, West: -79.900, North: 32.815, East: -79.740},
				CenterLat: 32.785, CenterLng: -79.820, RadiusM: 4000,
				ZipCodes: []string{"29482", "29451"},
			},
			{
				Name: FollyBeach, DisplayName: "Folly Beach",
				Bounds:    Bounds{South: 32.630, West: -79.970, North: 32.690, East: -79.880},
				CenterLat: 32.655, CenterLng: -79.940, RadiusM: 3000,
				ZipCodes: []string{"29439"},
			},
		},
	}
}
