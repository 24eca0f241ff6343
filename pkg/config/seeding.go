package config

import (
	"os"

	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/paths"

	"gopkg.in/yaml.v3"
)

// Seeding is the operator-editable seeding plan (config/seeding.yaml):
// which establishment types to sweep per area, the nearby-search grid
// density, the curated text-search phrases, and the per-day request budget.
type Seeding struct {
	EstablishmentTypes []string `yaml:"establishment_types"`
	SearchPhrases      []string `yaml:"search_phrases"` // "%s" expands to the area display name
	GridStep           float64  `yaml:"grid_step"`      // degrees between seed points
	SearchRadiusM      uint     `yaml:"search_radius_m"`
	MaxInFlight        int      `yaml:"max_in_flight"`
	DailyRequestCap    int      `yaml:"daily_request_cap"`
}

// DefaultSeeding covers the hospitality sweep used when seeding.yaml is
// absent.
func DefaultSeeding() Seeding {
	return Seeding{
		EstablishmentTypes: []string{"restaurant", "bar", "cafe", "night_club"},
		SearchPhrases: []string{
			"happy hour bar in %s",
			"brunch restaurant in %s",
			"brewery in %s",
			"new restaurant opening in %s",
		},
		GridStep:        0.02,
		SearchRadiusM:   1500,
		MaxInFlight:     5,
		DailyRequestCap: 900,
	}
}

// LoadSeeding reads config/seeding.yaml, falling back to defaults when the
// file is missing.
func LoadSeeding(root paths.Root) (Seeding, error) {
	s := DefaultSeeding()
	data, err := os.ReadFile(root.SeedingPath())
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errs.NewConfig("config.LoadSeeding", "unreadable "+root.SeedingPath(), err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errs.NewConfig("config.LoadSeeding", "invalid seeding.yaml", err)
	}
	if s.MaxInFlight <= 0 {
		s.MaxInFlight = 5
	}
	if s.GridStep <= 0 {
		s.GridStep = 0.02
	}
	return s, nil
}
