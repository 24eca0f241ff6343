package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"spots-pipeline/internal/delta"
	"spots-pipeline/internal/extractor"
	"spots-pipeline/internal/fetcher"
	"spots-pipeline/internal/merger"
	"spots-pipeline/internal/models"
	"spots-pipeline/internal/pipeline"
	"spots-pipeline/internal/prompts"
	"spots-pipeline/internal/review"
	"spots-pipeline/internal/spots"
	"spots-pipeline/internal/trimmer"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
)

func newRunCmd() *cobra.Command {
	var confirm bool
	var areaFilter string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one full pipeline run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errs.NewValidation("cli.run", "refusing to run without --confirm", nil)
			}
			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withDB(); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), a, areaFilter)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "acknowledge this will fetch venue sites and may call the LLM")
	cmd.Flags().StringVar(&areaFilter, "area", "", "restrict the run to one area")
	return cmd
}

func runPipeline(parent context.Context, a *app, areaFilter string) error {
	if areaFilter != "" && !a.set.Known(areaFilter) {
		return errs.NewValidation("cli.run", "unknown area "+areaFilter, nil)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Cooperative shutdown: first signal starts the drain window, a second
	// one aborts immediately.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.log.Warn("shutdown signal received, draining",
				logging.Duration("window", a.pipe.DrainWindow()))
			select {
			case <-time.After(a.pipe.DrainWindow()):
			case <-sigCh:
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	venues, err := a.db.ListVenuesCtx(ctx, areaFilter)
	if err != nil {
		return err
	}
	a.log.Info("venues loaded", logging.Int("count", len(venues)), logging.String("area", areaFilter))

	f := fetcher.New(a.root, a.pipe, a.log)
	m := merger.New(a.root, a.log)
	tr := trimmer.New(a.root, a.pipe.MaxPageTextBytes, a.log)
	det := delta.New(a.root, a.log)

	var chat extractor.ChatClient
	if a.cfg.OpenAIAPIKey != "" {
		chat = openai.NewClient(a.cfg.OpenAIAPIKey)
	}
	pm, err := prompts.NewManager(a.cfg.PromptDir)
	if err != nil {
		return err
	}

	var ext *extractor.Extractor
	var rev *review.Reviewer
	if chat != nil {
		ext = extractor.New(a.root, a.pipe, a.cfg, chat, a.db, pm, det, a.log)
		rev = review.New(chat, a.db, pm, a.cfg.OpenAIModel,
			a.pipe.Heuristic.THigh, a.pipe.Heuristic.TLow, a.log)
	}
	mat := spots.New(a.root, a.db, a.log)

	var summary *models.DeltaSummary

	steps := []pipeline.Step{
		{Name: "backup", Run: func(ctx context.Context) error {
			path, err := a.db.Backup(ctx, a.root.BackupDir(), a.pipe.BackupRetain)
			if err != nil {
				return err
			}
			if path == "" {
				return pipeline.Skip("mysqldump not installed")
			}
			a.log.Info("store snapshot written", logging.String("path", path))
			return nil
		}},
		{Name: "rotate", Run: func(context.Context) error {
			_, err := fetcher.Rotate(a.root, time.Now(), a.pipe.ArchiveRetainDays, a.log.WithComponent("fetcher"))
			return err
		}},
		{Name: "fetch", PropagateOnFail: true, Run: func(ctx context.Context) error {
			stats, err := f.Run(ctx, venues)
			if err != nil {
				return err
			}
			a.log.Info("fetch finished",
				logging.Int("pages", stats.Fetched),
				logging.Int("cacheHits", stats.CacheHits),
				logging.Int("errors", stats.TotalErrors()))
			if stats.Fetched == 0 && stats.CacheHits == 0 && stats.TotalErrors() > 0 {
				return fmt.Errorf("zero files written (%d errors)", stats.TotalErrors())
			}
			return nil
		}},
		{Name: "merge", Run: func(context.Context) error {
			n, err := m.Run(venues)
			if err != nil {
				return err
			}
			a.log.Info("merged documents", logging.Int("count", n))
			return nil
		}},
		{Name: "trim", Run: func(context.Context) error {
			n, err := tr.Run(venues)
			if err != nil {
				return err
			}
			a.log.Info("trimmed documents", logging.Int("count", n))
			return nil
		}},
		{Name: "delta", Run: func(context.Context) error {
			s, err := det.Run(venues)
			if err != nil {
				return err
			}
			summary = s
			a.log.Info("delta computed", logging.String("summary", s.Summary))
			return nil
		}},
		{Name: "extract", Run: func(ctx context.Context) error {
			if ext == nil {
				return pipeline.Skip("missing OPENAI_API_KEY")
			}
			if summary == nil {
				return pipeline.Skip("no delta summary; upstream skipped")
			}
			var res *extractor.Result
			var err error
			if !ext.BulkComplete(ctx) {
				// First sight of the catalog: run the one-shot bulk pass.
				res, err = ext.RunBulk(ctx)
			} else {
				res, err = ext.RunIncremental(ctx)
			}
			if err != nil {
				return err
			}
			if res.Skipped {
				return pipeline.Skip("%s", res.Reason)
			}
			tokens, requests, costUSD, _ := ext.Cost().Stats()
			a.log.Info("extraction finished",
				logging.Int("processed", res.Processed),
				logging.Int("gateSkips", res.GateSkips),
				logging.Int("needsLLM", res.NeedsLLM),
				logging.Int("failed", res.Failed),
				logging.Int("tokens", tokens),
				logging.Int("requests", requests),
				logging.Float64("estCostUSD", costUSD))
			return nil
		}},
		{Name: "review", Run: func(ctx context.Context) error {
			if rev == nil {
				return pipeline.Skip("missing OPENAI_API_KEY")
			}
			res, err := rev.ApplyToGold(ctx, a.root)
			if err != nil {
				return err
			}
			if res.Reviewed == 0 {
				return pipeline.Skip("nothing newly extracted")
			}
			a.log.Info("confidence review finished",
				logging.Int("accepted", res.Accepted),
				logging.Int("rejected", res.Rejected),
				logging.Int("unsure", res.Unsure))
			return nil
		}},
		{Name: "materialize", Run: func(ctx context.Context) error {
			res, err := mat.Run(ctx)
			if err != nil {
				return err
			}
			a.log.Info("spots materialized",
				logging.Int("created", res.Created),
				logging.Int("updated", res.Updated),
				logging.Int("excluded", res.Excluded))
			return nil
		}},
		{Name: "snapshot", Run: func(ctx context.Context) error {
			return spots.WriteSnapshot(ctx, a.root, a.db)
		}},
		{Name: "cleanup", Run: func(context.Context) error {
			return det.PromoteToPrevious()
		}},
	}

	orch := pipeline.New(a.db, a.root, a.pipe, a.log)
	run, err := orch.Run(ctx, areaFilter, steps)
	if err != nil {
		return err
	}
	fmt.Printf("run %s %s (%d steps)\n", run.ID, run.Status, len(run.Steps))
	return nil
}
