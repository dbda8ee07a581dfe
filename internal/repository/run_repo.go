package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enliterate-io/enliterate/internal/models"
)

// runRepo implements RunRepository using GORM.
type runRepo struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepo{db: db}
}

// withRowLock adds a SELECT ... FOR UPDATE clause on servers that support
// it. SQLite serializes writers through its single-writer lock instead and
// rejects the syntax.
func (r *runRepo) withRowLock(tx *gorm.DB, options string) *gorm.DB {
	if r.db.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: options})
}

func (r *runRepo) Create(ctx context.Context, run *models.PipelineRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating pipeline run: %w", err)
	}
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, id models.ULID) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting run by ID: %w", err)
	}
	return &run, nil
}

func (r *runRepo) GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting runs by batch: %w", err)
	}
	return runs, nil
}

func (r *runRepo) GetActive(ctx context.Context) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	err := r.db.WithContext(ctx).
		Where("state IN ?", []models.RunState{models.RunStateRunning, models.RunStatePaused, models.RunStateFailed}).
		Order("created_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("getting active runs: %w", err)
	}
	return runs, nil
}

// WithLock serializes concurrent transitions on the same run. The row lock
// protects against concurrent workers; the runner adds a per-run mutex for
// in-process serialization.
func (r *runRepo) WithLock(ctx context.Context, id models.ULID, fn func(run *models.PipelineRun) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.PipelineRun
		err := r.withRowLock(tx, "").
			Where("id = ?", id).
			First(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("run %s not found", id)
			}
			return fmt.Errorf("locking run: %w", err)
		}
		if err := fn(&run); err != nil {
			return err
		}
		if err := tx.Save(&run).Error; err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		return nil
	})
}

// AcquireDue atomically leases one run with stage work due. The guard on
// current_stage/state inside the same transaction upholds the
// at-most-one-active-stage-job invariant across workers.
func (r *runRepo) AcquireDue(ctx context.Context, workerID string, now time.Time) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := r.withRowLock(tx, "SKIP LOCKED").
			Where("state = ?", models.RunStateRunning).
			Where("paused = ?", false).
			Where("lease_owner IS NULL OR lease_owner = ''").
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Order("created_at ASC").
			Limit(1).
			First(&run).Error
		if err != nil {
			return err
		}
		run.LeaseOwner = workerID
		run.LeasedAt = models.TimePtr(now)
		return tx.Save(&run).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("acquiring run: %w", err)
	}
	return &run, nil
}

func (r *runRepo) ReleaseLease(ctx context.Context, id models.ULID, workerID string) error {
	result := r.db.WithContext(ctx).Model(&models.PipelineRun{}).
		Where("id = ? AND lease_owner = ?", id, workerID).
		Updates(map[string]any{"lease_owner": "", "leased_at": nil})
	if result.Error != nil {
		return fmt.Errorf("releasing run lease: %w", result.Error)
	}
	return nil
}

func (r *runRepo) RecoverStaleLeases(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PipelineRun{}).
		Where("lease_owner IS NOT NULL AND lease_owner != '' AND leased_at < ?", olderThan).
		Updates(map[string]any{"lease_owner": "", "leased_at": nil})
	if result.Error != nil {
		return 0, fmt.Errorf("recovering stale leases: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *runRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?",
			[]models.RunState{models.RunStateCompleted, models.RunStateFailed}, before).
		Delete(&models.PipelineRun{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
