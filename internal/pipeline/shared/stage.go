// Package shared provides the base plumbing stage jobs build on: work-set
// selection keyed by item stage status, bounded per-item parallelism, and
// cooperative pause handling.
package shared

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// ErrPaused signals that a stage observed the pause flag and exited at an
// item boundary. The runner leaves the run paused; no failure is recorded.
var ErrPaused = errors.New("stage paused")

// BaseStage carries the fields every stage job shares.
type BaseStage struct {
	StageName  string
	StageIndex int
	Deps       core.Dependencies
	Logger     *slog.Logger
}

// NewBaseStage builds the embedded base for a stage job.
func NewBaseStage(name string, index int, deps core.Dependencies) BaseStage {
	return BaseStage{
		StageName:  name,
		StageIndex: index,
		Deps:       deps,
		Logger:     deps.Logger.With(slog.String("stage", name)),
	}
}

// Name returns the stage identifier.
func (s *BaseStage) Name() string { return s.StageName }

// Index returns the stage position in the pipeline.
func (s *BaseStage) Index() int { return s.StageIndex }

// WorkStatuses returns the item statuses a stage selects. First attempts
// take pending items only; retries also re-include items the previous
// attempt left failed. Completed items are never reprocessed, which is what
// makes retries idempotent.
func WorkStatuses(run *models.PipelineRun) []models.StageStatus {
	if run.RetryCount > 0 {
		return []models.StageStatus{models.StageStatusPending, models.StageStatusFailed}
	}
	return []models.StageStatus{models.StageStatusPending}
}

// PauseCheck builds a PauseChecker that re-reads the run's pause flag.
func (s *BaseStage) PauseCheck(runID models.ULID) core.PauseChecker {
	return func(ctx context.Context) (bool, error) {
		run, err := s.Deps.Runs.GetByID(ctx, runID)
		if err != nil {
			return false, err
		}
		if run == nil {
			return false, nil
		}
		return run.Paused, nil
	}
}

// ItemOutcome is the per-item verdict from a ForEachItem worker.
type ItemOutcome struct {
	Item *models.IngestItem
	Err  error
}

// ForEachItem runs fn over items with bounded parallelism. A failing item
// never aborts the loop; its error lands in the returned outcomes, where the
// caller records it on the item's stage error column. The pause flag is
// polled between dispatches, and a set flag stops dispatching and returns
// ErrPaused after in-flight items drain.
func ForEachItem(ctx context.Context, items []*models.IngestItem, concurrency int, pause core.PauseChecker, fn func(ctx context.Context, item *models.IngestItem) error) ([]ItemOutcome, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]ItemOutcome, 0, len(items))
		sem      = make(chan struct{}, concurrency)
	)
	record := func(item *models.IngestItem, err error) {
		mu.Lock()
		outcomes = append(outcomes, ItemOutcome{Item: item, Err: err})
		mu.Unlock()
	}

	var paused bool
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}
		if pause != nil {
			flag, err := pause(ctx)
			if err == nil && flag {
				paused = true
				break
			}
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(item *models.IngestItem) {
			defer wg.Done()
			defer func() { <-sem }()
			record(item, fn(ctx, item))
		}(item)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	if paused {
		return outcomes, ErrPaused
	}
	return outcomes, nil
}

// RecordOutcomes writes per-item outcomes back to the item table: failures
// get the stage's failed status plus the error message on the stage error
// column, successes go through the stage-specific handler (success statuses
// differ per stage).
func RecordOutcomes(ctx context.Context, items repository.ItemRepository, field repository.StageField, outcomes []ItemOutcome, onSuccess func(ctx context.Context, item *models.IngestItem) error) (completed, failed int, err error) {
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			uerr := items.UpdateStage(ctx, outcome.Item.ID, field, models.StageStatusFailed, outcome.Err.Error())
			if uerr != nil {
				return completed, failed, uerr
			}
			continue
		}
		if onSuccess != nil {
			if err := onSuccess(ctx, outcome.Item); err != nil {
				return completed, failed, err
			}
		}
		completed++
	}
	return completed, failed, nil
}
