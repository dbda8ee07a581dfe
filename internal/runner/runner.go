// Package runner drives pipeline runs through the fixed stage sequence. All
// state transitions execute under a per-run lock, and any event that cannot
// legally fire from the current state is a no-op on state that still records
// the error message.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// keyedMutex serializes in-process work per run id, complementing the row
// lock WithLock takes in the store.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	if _, ok := k.locks[key]; !ok {
		k.locks[key] = &sync.Mutex{}
	}
	return k.locks[key]
}

// Runner owns run state transitions. Stage jobs never mutate a run
// directly; they report through Advance and Fail.
type Runner struct {
	runs    repository.RunRepository
	batches repository.BatchRepository
	items   repository.ItemRepository
	cfg     *config.Config
	logger  *slog.Logger
	locks   keyedMutex
}

// New creates a runner.
func New(cfg *config.Config, runs repository.RunRepository, batches repository.BatchRepository, items repository.ItemRepository, logger *slog.Logger) *Runner {
	return &Runner{
		runs:    runs,
		batches: batches,
		items:   items,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "runner")),
	}
}

// CreateRun creates a run for a batch in the initialized state.
func (r *Runner) CreateRun(ctx context.Context, batchID models.ULID) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		BatchID:       batchID,
		CurrentStage:  models.StageFrame,
		State:         models.RunStateInitialized,
		MaxRetries:    r.cfg.Pipeline.MaxRetries,
		StageStatuses: models.StageStatusMap{},
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// transition applies fn to the run under both the in-process lock and the
// store row lock.
func (r *Runner) transition(ctx context.Context, runID models.ULID, fn func(run *models.PipelineRun) error) error {
	lock := r.locks.get(runID.String())
	lock.Lock()
	defer lock.Unlock()
	return r.runs.WithLock(ctx, runID, fn)
}

// conflict records a redundant transition without touching state.
func (r *Runner) conflict(run *models.PipelineRun, event string) error {
	err := core.Errorf(core.KindStateConflict, run.CurrentStage,
		"%s is illegal from state %s", event, run.State)
	run.ErrorMessage = err.Error()
	r.logger.Warn("redundant run transition",
		slog.String("run_id", run.ID.String()),
		slog.String("event", event),
		slog.String("state", string(run.State)))
	return nil
}

// Start transitions initialized, paused, or failed runs to running. The
// first start completes the jobless frame stage and points the run at
// intake.
func (r *Runner) Start(ctx context.Context, runID models.ULID) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		switch run.State {
		case models.RunStateInitialized, models.RunStatePaused, models.RunStateFailed:
		default:
			return r.conflict(run, "start")
		}
		if run.State == models.RunStateFailed && run.RetryCount >= run.MaxRetries {
			return r.conflict(run, "start")
		}
		if run.StartedAt == nil {
			now := time.Now()
			run.StartedAt = &now
			run.SetStageStatus(models.StageFrame, models.RunStageCompleted)
			run.CurrentStage = models.StageIntake
		}
		run.State = models.RunStateRunning
		run.Paused = false
		run.NextAttemptAt = nil
		run.ErrorMessage = ""
		run.SetStageStatus(run.CurrentStage, models.RunStagePending)
		return nil
	})
}

// BeginStage marks the current stage running. The worker calls it after
// acquiring the lease and before executing the job.
func (r *Runner) BeginStage(ctx context.Context, runID models.ULID, stage int) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if run.State != models.RunStateRunning || run.CurrentStage != stage {
			return r.conflict(run, fmt.Sprintf("begin_stage_%d", stage))
		}
		run.SetStageStatus(stage, models.RunStageRunning)
		return nil
	})
}

// Advance records stage completion and moves the pointer. The stage
// argument is a compare-and-set guard: a stale completion for a stage the
// run has moved past is a no-op.
func (r *Runner) Advance(ctx context.Context, runID models.ULID, stage int, metrics map[string]float64) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if run.State != models.RunStateRunning || run.CurrentStage != stage {
			return r.conflict(run, fmt.Sprintf("advance_from_stage_%d", stage))
		}
		run.SetStageStatus(stage, models.RunStageCompleted)
		if metrics != nil {
			run.SetStageMetrics(stage, metrics)
		}
		run.ErrorMessage = ""
		run.NextAttemptAt = nil
		return r.moveForward(run)
	})
}

// moveForward advances the stage pointer, completing the run past the last
// stage.
func (r *Runner) moveForward(run *models.PipelineRun) error {
	run.CurrentStage++
	if run.CurrentStage >= models.StageCount {
		run.CurrentStage = models.StageFinetune
		run.State = models.RunStateCompleted
		now := time.Now()
		run.FinishedAt = &now
		r.logger.Info("run completed", slog.String("run_id", run.ID.String()))
		return nil
	}
	run.SetStageStatus(run.CurrentStage, models.RunStagePending)
	return nil
}

// Fail records a stage failure. Transient errors under the retry cap
// schedule a re-attempt with exponential backoff; everything else fails the
// run.
func (r *Runner) Fail(ctx context.Context, runID models.ULID, stage int, stageErr error) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if run.State != models.RunStateRunning || run.CurrentStage != stage {
			return r.conflict(run, fmt.Sprintf("fail_at_stage_%d", stage))
		}
		kind := core.KindOf(stageErr)
		run.ErrorMessage = fmt.Sprintf("stage %s: %v", models.StageName(stage), stageErr)

		if kind.Retriable() && run.RetryCount < run.MaxRetries {
			run.RetryCount++
			delay := r.backoff(run.RetryCount)
			next := time.Now().Add(delay)
			run.NextAttemptAt = &next
			run.SetStageStatus(stage, models.RunStagePending)
			r.logger.Warn("stage failed, retry scheduled",
				slog.String("run_id", run.ID.String()),
				slog.String("stage", models.StageName(stage)),
				slog.Int("retry", run.RetryCount),
				slog.Duration("backoff", delay),
				slog.String("error", stageErr.Error()))
			return nil
		}

		run.SetStageStatus(stage, models.RunStageFailed)
		run.State = models.RunStateFailed
		if run.RetryCount >= run.MaxRetries {
			now := time.Now()
			run.FinishedAt = &now
		}
		r.logger.Error("run failed",
			slog.String("run_id", run.ID.String()),
			slog.String("stage", models.StageName(stage)),
			slog.String("kind", string(kind)),
			slog.String("error", stageErr.Error()))
		return nil
	})
}

// backoff returns initial * 2^(attempt-1), capped.
func (r *Runner) backoff(attempt int) time.Duration {
	delay := r.cfg.Pipeline.RetryBackoffInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.Pipeline.RetryBackoffCap {
			return r.cfg.Pipeline.RetryBackoffCap
		}
	}
	if delay > r.cfg.Pipeline.RetryBackoffCap {
		delay = r.cfg.Pipeline.RetryBackoffCap
	}
	return delay
}

// Pause sets the cooperative pause flag. The in-flight stage observes it at
// the next item boundary.
func (r *Runner) Pause(ctx context.Context, runID models.ULID) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if run.State != models.RunStateRunning {
			return r.conflict(run, "pause")
		}
		run.Paused = true
		return nil
	})
}

// MarkPaused completes the pause after a stage drained: state moves to
// paused and the stage returns to pending so resume re-runs it.
func (r *Runner) MarkPaused(ctx context.Context, runID models.ULID, stage int) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if run.State != models.RunStateRunning {
			return r.conflict(run, "mark_paused")
		}
		run.State = models.RunStatePaused
		run.SetStageStatus(stage, models.RunStagePending)
		return nil
	})
}

// Resume restarts a paused or failed run at its current stage.
func (r *Runner) Resume(ctx context.Context, runID models.ULID) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		switch run.State {
		case models.RunStatePaused, models.RunStateFailed:
		default:
			return r.conflict(run, "resume")
		}
		if run.State == models.RunStateFailed && run.RetryCount >= run.MaxRetries {
			return r.conflict(run, "resume")
		}
		run.State = models.RunStateRunning
		run.Paused = false
		run.NextAttemptAt = nil
		run.SetStageStatus(run.CurrentStage, models.RunStagePending)
		return nil
	})
}

// SkipStage marks the current stage skipped and advances. Operator
// override; the skipped stage's item statuses are left as they are.
func (r *Runner) SkipStage(ctx context.Context, runID models.ULID) error {
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		switch run.State {
		case models.RunStateRunning, models.RunStatePaused, models.RunStateFailed:
		default:
			return r.conflict(run, "skip_stage")
		}
		r.logger.Info("stage skipped by operator",
			slog.String("run_id", run.ID.String()),
			slog.String("stage", models.StageName(run.CurrentStage)))
		run.SetStageStatus(run.CurrentStage, models.RunStageSkipped)
		run.ErrorMessage = ""
		run.NextAttemptAt = nil
		if run.State != models.RunStateRunning {
			run.State = models.RunStateRunning
			run.Paused = false
		}
		return r.moveForward(run)
	})
}

// ResetToStage rewinds the run to stage k and resets the per-item statuses
// for stage k and later back to pending. Operator override; the only legal
// way current_stage decreases.
func (r *Runner) ResetToStage(ctx context.Context, runID models.ULID, stage int) error {
	if stage < models.StageIntake || stage > models.StageFinetune {
		return core.Errorf(core.KindInvalidInput, stage, "reset target must be between %d and %d", models.StageIntake, models.StageFinetune)
	}
	return r.transition(ctx, runID, func(run *models.PipelineRun) error {
		if err := r.items.ResetStagesFrom(ctx, run.BatchID, stage); err != nil {
			return fmt.Errorf("resetting item stage statuses: %w", err)
		}
		for k := stage; k < models.StageCount; k++ {
			run.SetStageStatus(k, models.RunStagePending)
		}
		run.CurrentStage = stage
		run.State = models.RunStateRunning
		run.Paused = false
		run.RetryCount = 0
		run.ErrorMessage = ""
		run.NextAttemptAt = nil
		run.FinishedAt = nil
		r.logger.Info("run reset",
			slog.String("run_id", run.ID.String()),
			slog.String("stage", models.StageName(stage)))
		return nil
	})
}
