package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
)

// Pool runs the worker goroutines that lease due runs and execute their
// current stage. A leased run is invisible to other workers, which is what
// keeps a run down to one active stage job.
type Pool struct {
	runner *Runner
	deps   core.Dependencies
	stages map[int]core.Stage
	cfg    *config.Config
	logger *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds the worker pool from the stage factory.
func NewPool(cfg *config.Config, r *Runner, deps core.Dependencies, factory core.Factory) *Pool {
	return &Pool{
		runner: r,
		deps:   deps,
		stages: factory(deps),
		cfg:    cfg,
		logger: deps.Logger.With(slog.String("component", "worker_pool")),
	}
}

// Start launches the workers and the maintenance schedule. It returns
// immediately; Stop drains everything.
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.cron = cron.New(cron.WithSeconds())
	if _, err := p.cron.AddFunc(p.cfg.Pipeline.MaintenanceCron, func() { p.maintain(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling maintenance: %w", err)
	}
	p.cron.Start()

	for i := 0; i < p.cfg.Pipeline.WorkerCount; i++ {
		workerID := uuid.NewString()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workerLoop(ctx, workerID)
		}()
	}
	p.logger.Info("worker pool started", slog.Int("workers", p.cfg.Pipeline.WorkerCount))
	return nil
}

// Stop cancels the workers and waits for in-flight stage jobs to finish.
func (p *Pool) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, workerID string) {
	logger := p.logger.With(slog.String("worker_id", workerID))
	ticker := time.NewTicker(p.cfg.Pipeline.PollInterval)
	defer ticker.Stop()

	for {
		// Drain due work before sleeping again.
		for p.executeOne(ctx, workerID, logger) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// executeOne leases one due run and executes its current stage. Returns
// false when no work was available.
func (p *Pool) executeOne(ctx context.Context, workerID string, logger *slog.Logger) bool {
	run, err := p.deps.Runs.AcquireDue(ctx, workerID, time.Now())
	if err != nil {
		logger.Error("acquiring run", slog.String("error", err.Error()))
		return false
	}
	if run == nil {
		return false
	}
	defer func() {
		if err := p.deps.Runs.ReleaseLease(context.WithoutCancel(ctx), run.ID, workerID); err != nil {
			logger.Error("releasing lease",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()))
		}
	}()

	stage, ok := p.stages[run.CurrentStage]
	if !ok {
		ferr := core.Errorf(core.KindPrecondition, run.CurrentStage, "no job registered for stage %d", run.CurrentStage)
		if err := p.runner.Fail(ctx, run.ID, run.CurrentStage, ferr); err != nil {
			logger.Error("recording stage failure", slog.String("error", err.Error()))
		}
		return true
	}

	batch, err := p.deps.Batches.GetByID(ctx, run.BatchID)
	if err != nil || batch == nil {
		ferr := core.Errorf(core.KindPrecondition, stage.Index(), "loading batch %s: %v", run.BatchID, err)
		if err := p.runner.Fail(ctx, run.ID, stage.Index(), ferr); err != nil {
			logger.Error("recording stage failure", slog.String("error", err.Error()))
		}
		return true
	}

	if err := p.runner.BeginStage(ctx, run.ID, stage.Index()); err != nil {
		logger.Error("beginning stage", slog.String("error", err.Error()))
		return true
	}
	logger.Info("executing stage",
		slog.String("run_id", run.ID.String()),
		slog.String("stage", stage.Name()))

	result, execErr := stage.Execute(ctx, run, batch)

	switch {
	case errors.Is(execErr, shared.ErrPaused):
		if err := p.runner.MarkPaused(ctx, run.ID, stage.Index()); err != nil {
			logger.Error("marking run paused", slog.String("error", err.Error()))
		}
	case execErr != nil:
		if err := p.runner.Fail(ctx, run.ID, stage.Index(), execErr); err != nil {
			logger.Error("recording stage failure", slog.String("error", err.Error()))
		}
	default:
		metrics := result.Metrics()
		metrics["items_updated"] = float64(result.ItemsUpdated)
		if err := p.runner.Advance(ctx, run.ID, stage.Index(), metrics); err != nil {
			logger.Error("advancing run", slog.String("error", err.Error()))
		}
	}
	return true
}

// maintain recovers leases of crashed workers and prunes finished runs past
// retention.
func (p *Pool) maintain(ctx context.Context) {
	recovered, err := p.deps.Runs.RecoverStaleLeases(ctx, time.Now().Add(-p.cfg.Pipeline.LeaseTimeout))
	if err != nil {
		p.logger.Error("recovering stale leases", slog.String("error", err.Error()))
	} else if recovered > 0 {
		p.logger.Warn("recovered stale leases", slog.Int64("count", recovered))
	}

	pruned, err := p.deps.Runs.DeleteFinishedBefore(ctx, time.Now().Add(-p.cfg.Pipeline.RunRetention))
	if err != nil {
		p.logger.Error("pruning finished runs", slog.String("error", err.Error()))
	} else if pruned > 0 {
		p.logger.Info("pruned finished runs", slog.Int64("count", pruned))
	}
}
