// Package pipeline sequences the nightly stages into a single run with a
// manifest, per-step statuses, explicit skip reasons and stale-run
// recovery. Stages are closures supplied by the CLI wiring; this package
// owns only control flow and bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spots-pipeline/internal/models"
	"spots-pipeline/pkg/config"
	errs "spots-pipeline/pkg/errors"
	"spots-pipeline/pkg/logging"
	"spots-pipeline/pkg/metrics"
	"spots-pipeline/pkg/paths"
)

var (
	mRuns        = metrics.Default.Counter("pipeline_runs_total", "Pipeline runs started")
	mRunFailures = metrics.Default.Counter("pipeline_run_failures_total", "Pipeline runs that failed")
	mRunSeconds  = metrics.Default.Histogram("pipeline_run_duration_seconds", "Wall time per run (seconds)", []float64{60, 300, 600, 1200, 1800, 3600})
)

// SkipError signals an intentional, explained non-execution of a step.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Skip builds a SkipError.
func Skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// Step is one named stage. PropagateOnFail marks hard dependencies: when
// the step fails, everything after it is skipped instead of run blind.
type Step struct {
	Name            string
	Run             func(ctx context.Context) error
	PropagateOnFail bool
}

// RunStore is the slice of the store the orchestrator needs.
type RunStore interface {
	CreateRunCtx(ctx context.Context, run *models.PipelineRun) error
	UpdateRunCtx(ctx context.Context, run *models.PipelineRun) error
	ActiveRunCtx(ctx context.Context) (*models.PipelineRun, error)
	RecoverStaleRunsCtx(ctx context.Context, threshold time.Duration) (int, error)
}

// Orchestrator drives one pipeline run.
type Orchestrator struct {
	store RunStore
	root  paths.Root
	cfg   config.Pipeline
	log   *logging.ComponentLogger
	now   func() time.Time
}

func New(store RunStore, root paths.Root, cfg config.Pipeline, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		store: store,
		root:  root,
		cfg:   cfg,
		log:   log.WithComponent("pipeline"),
		now:   time.Now,
	}
}

// SetClock pins run timestamps for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Run executes the steps in order. Per-step failures are recorded, not
// thrown; only integrity/config errors or cancellation fail the run.
func (o *Orchestrator) Run(ctx context.Context, areaFilter string, steps []Step) (*models.PipelineRun, error) {
	// Stale-run recovery precedes the single-running check so a crashed
	// run never wedges the scheduler.
	if n, err := o.store.RecoverStaleRunsCtx(ctx, o.cfg.StaleRunThreshold()); err != nil {
		return nil, err
	} else if n > 0 {
		o.log.Warn("recovered stale runs", logging.Int("count", n))
	}

	if active, err := o.store.ActiveRunCtx(ctx); err != nil {
		return nil, err
	} else if active != nil {
		return nil, errs.NewValidation("pipeline.Run",
			fmt.Sprintf("run %s is already running (started %s)", active.ID, active.StartedAt.Format(time.RFC3339)), nil)
	}

	run := &models.PipelineRun{
		ID:         uuid.NewString(),
		StartedAt:  o.now().UTC(),
		Status:     models.RunRunning,
		RunDate:    o.now().Format("20060102"),
		Steps:      map[string]models.StepInfo{},
		AreaFilter: areaFilter,
	}
	if err := o.store.CreateRunCtx(ctx, run); err != nil {
		return nil, err
	}
	mRuns.Inc(1)
	runStart := time.Now()
	o.log.Info("run started", logging.String("run_id", run.ID), logging.String("area", areaFilter))

	fatal := false
	skipRemaining := ""
	for _, step := range steps {
		info := models.StepInfo{}
		started := o.now().UTC()
		info.StartedAt = &started

		switch {
		case fatal:
			info.Status = models.StepSkipped
			info.Reason = "aborted: earlier fatal error"
		case skipRemaining != "":
			info.Status = models.StepSkipped
			info.Reason = skipRemaining
		case ctx.Err() != nil:
			info.Status = models.StepFailed
			info.Reason = "cancelled"
		default:
			info = o.runStep(ctx, step, info)
			if info.Status == models.StepFailed {
				if info.Reason == "cancelled" || errsIsFatalReason(info) {
					fatal = true
				} else if step.PropagateOnFail {
					skipRemaining = fmt.Sprintf("upstream %s failed", step.Name)
				}
			}
		}

		finished := o.now().UTC()
		info.FinishedAt = &finished
		run.Steps[step.Name] = info
		o.log.Info("step finished",
			logging.String("step", step.Name),
			logging.String("status", info.Status),
			logging.String("reason", info.Reason))

		// Persist progress after every step so a crash leaves a readable
		// trail, and mirror it to the manifest for the operator. Bookkeeping
		// writes use a detached context so cancellation still leaves a
		// truthful run row.
		if err := o.store.UpdateRunCtx(context.Background(), run); err != nil {
			o.log.Error("run row update failed", err)
		}
		o.writeManifest(run)
	}

	finished := o.now().UTC()
	run.FinishedAt = &finished
	if fatal {
		run.Status = models.RunFailed
		mRunFailures.Inc(1)
	} else {
		run.Status = models.RunCompleted
	}
	if err := o.store.UpdateRunCtx(context.Background(), run); err != nil {
		o.log.Error("final run update failed", err)
	}
	o.writeManifest(run)
	mRunSeconds.Observe(time.Since(runStart).Seconds())
	o.log.Info("run finished", logging.String("run_id", run.ID), logging.String("status", run.Status))

	if fatal {
		return run, errs.NewIntegrity("pipeline.Run", "run failed; see manifest", nil)
	}
	return run, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, info models.StepInfo) models.StepInfo {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StageSoftCeiling())
	defer cancel()

	err := step.Run(stepCtx)
	switch {
	case err == nil:
		info.Status = models.StepCompleted
	case isSkip(err):
		var sk *SkipError
		errors.As(err, &sk)
		info.Status = models.StepSkipped
		info.Reason = sk.Reason
	case ctx.Err() != nil:
		info.Status = models.StepFailed
		info.Reason = "cancelled"
	case errs.IsFatal(err):
		info.Status = models.StepFailed
		info.Reason = "fatal: " + err.Error()
	default:
		info.Status = models.StepFailed
		info.Reason = err.Error()
	}
	return info
}

func isSkip(err error) bool {
	var sk *SkipError
	return errors.As(err, &sk)
}

func errsIsFatalReason(info models.StepInfo) bool {
	return len(info.Reason) >= 6 && info.Reason[:6] == "fatal:"
}

func (o *Orchestrator) writeManifest(run *models.PipelineRun) {
	if err := o.root.WriteJSONAtomic(o.root.ManifestPath(), run); err != nil {
		o.log.Error("manifest write failed", err)
	}
}
