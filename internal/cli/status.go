package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"spots-pipeline/internal/models"
	"spots-pipeline/internal/report"
	"spots-pipeline/pkg/paths"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a pivot of the latest run manifest",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()

			var run models.PipelineRun
			if err := paths.ReadJSON(a.root.ManifestPath(), &run); err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no manifest yet; the pipeline has not run")
					return nil
				}
				return err
			}

			fmt.Printf("run %s  %s  date %s", run.ID, run.Status, run.RunDate)
			if run.AreaFilter != "" {
				fmt.Printf("  area %s", run.AreaFilter)
			}
			fmt.Println()
			fmt.Printf("started  %s\n", run.StartedAt.Format(time.RFC3339))
			if run.FinishedAt != nil {
				fmt.Printf("finished %s (%s)\n", run.FinishedAt.Format(time.RFC3339),
					run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
			}

			names := make([]string, 0, len(run.Steps))
			for name := range run.Steps {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				si, sj := run.Steps[names[i]], run.Steps[names[j]]
				if si.StartedAt == nil || sj.StartedAt == nil {
					return names[i] < names[j]
				}
				return si.StartedAt.Before(*sj.StartedAt)
			})
			fmt.Printf("\n%-14s %-10s %s\n", "STEP", "STATUS", "REASON")
			for _, name := range names {
				info := run.Steps[name]
				fmt.Printf("%-14s %-10s %s\n", name, info.Status, info.Reason)
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Render the daily operator report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.withDB(); err != nil {
				return err
			}

			rep, err := report.Build(cmd.Context(), a.db, time.Now())
			if err != nil {
				return err
			}
			fmt.Print(rep.Render())
			return nil
		},
	}
}
