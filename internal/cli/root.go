// Package cli wires the pipeline components behind a small cobra surface:
// run, seed, status, report, serve.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"spots-pipeline/internal/areas"
	"spots-pipeline/pkg/config"
	"spots-pipeline/pkg/database"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/paths"
)

// app carries the lazily-built shared dependencies.
type app struct {
	cfg  *config.Config
	pipe config.Pipeline
	root paths.Root
	set  *areas.Set
	db   *database.DB
	log  *logging.Logger
}

// build assembles the shared context. Config errors here are fatal before
// any work starts.
func build() (*app, error) {
	cfg := config.Load()

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	if cfg.EnableFileLogging && cfg.LogFile != "" {
		logCfg.Output = cfg.LogFile
	}
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, errs.NewConfig("cli.build", "logger init failed", err)
	}

	root := paths.New(cfg.DataDir)
	pipe, err := config.LoadPipeline(root)
	if err != nil {
		return nil, err
	}
	set, err := areas.Load(root)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, pipe: pipe, root: root, set: set, log: log}, nil
}

// withDB connects the store and mirrors the area config into it.
func (a *app) withDB() error {
	db, err := database.NewWithConfig(a.cfg.DatabaseURL, a.cfg)
	if err != nil {
		return err
	}
	a.db = db

	rows := make([]database.AreaRow, 0, len(a.set.Areas))
	for _, ar := range a.set.Areas {
		rows = append(rows, database.AreaRow{
			Name:        ar.Name,
			DisplayName: ar.DisplayName,
			South:       ar.Bounds.South, West: ar.Bounds.West,
			North: ar.Bounds.North, East: ar.Bounds.East,
			CenterLat: ar.CenterLat, CenterLng: ar.CenterLng,
			RadiusM:  ar.RadiusM,
			ZipCodes: ar.ZipCodes,
		})
	}
	return db.SyncAreasCtx(context.Background(), rows)
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}

// NewRootCmd builds the CLI tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spots",
		Short:         "Venue-intelligence pipeline for Charleston hospitality spots",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
