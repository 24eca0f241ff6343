package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"googlemaps.github.io/maps"

	"spots-pipeline/internal/seeder"
	"spots-pipeline/pkg/config"
	errs "spots-pipeline/pkg/errors"
)

func newSeedCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Discover venues via Google Places and upsert the venues table",
		Long: `Seeding issues real provider requests and costs quota. It requires BOTH
an explicit --confirm flag and GOOGLE_PLACES_ENABLED=true in the
environment; either one alone is refused.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			switch {
			case !confirm && !cfg.GooglePlacesEnabled:
				return errs.NewConfig("cli.seed",
					"seeding requires --confirm and GOOGLE_PLACES_ENABLED=true; both are missing", nil)
			case !confirm:
				return errs.NewConfig("cli.seed", "seeding requires --confirm", nil)
			case !cfg.GooglePlacesEnabled:
				return errs.NewConfig("cli.seed", "seeding requires GOOGLE_PLACES_ENABLED=true (exactly)", nil)
			}
			if cfg.GoogleMapsAPIKey == "" {
				return errs.NewConfig("cli.seed", "GOOGLE_MAPS_API_KEY is not set", nil)
			}

			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withDB(); err != nil {
				return err
			}

			seeding, err := config.LoadSeeding(a.root)
			if err != nil {
				return err
			}
			client, err := maps.NewClient(maps.WithAPIKey(cfg.GoogleMapsAPIKey))
			if err != nil {
				return errs.NewExternal("cli.seed", "places", "client init failed", err)
			}

			s := seeder.New(client, a.db, a.set, seeding, a.log)
			stats, err := s.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("seeded: %d candidates, %d upserted, %d provider requests\n",
				stats.Candidates, stats.Upserted, stats.Requests)
			if len(stats.FailedAreas) > 0 {
				fmt.Printf("failed areas: %v\n", stats.FailedAreas)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "acknowledge provider quota will be spent")
	return cmd
}
