package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// batchRepo implements BatchRepository using GORM.
type batchRepo struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepo{db: db}
}

func (r *batchRepo) Create(ctx context.Context, batch *models.IngestBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("creating batch: %w", err)
	}
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, id models.ULID) (*models.IngestBatch, error) {
	var batch models.IngestBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting batch by ID: %w", err)
	}
	return &batch, nil
}

func (r *batchRepo) GetAll(ctx context.Context) ([]*models.IngestBatch, error) {
	var batches []*models.IngestBatch
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("getting all batches: %w", err)
	}
	return batches, nil
}

func (r *batchRepo) Update(ctx context.Context, batch *models.IngestBatch) error {
	if err := r.db.WithContext(ctx).Save(batch).Error; err != nil {
		return fmt.Errorf("updating batch: %w", err)
	}
	return nil
}

func (r *batchRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.BatchStatus) error {
	result := r.db.WithContext(ctx).Model(&models.IngestBatch{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating batch status: %w", result.Error)
	}
	return nil
}

func (r *batchRepo) SetLiteracyScore(ctx context.Context, id models.ULID, score float64) error {
	result := r.db.WithContext(ctx).Model(&models.IngestBatch{}).
		Where("id = ?", id).
		Update("literacy_score", score)
	if result.Error != nil {
		return fmt.Errorf("setting literacy score: %w", result.Error)
	}
	return nil
}

func (r *batchRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.IngestBatch{}).Error; err != nil {
		return fmt.Errorf("deleting batch: %w", err)
	}
	return nil
}
