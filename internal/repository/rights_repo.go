package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// rightsRepo implements RightsRepository using GORM.
type rightsRepo struct {
	db *gorm.DB
}

// NewRightsRepository creates a new RightsRepository.
func NewRightsRepository(db *gorm.DB) RightsRepository {
	return &rightsRepo{db: db}
}

func (r *rightsRepo) Create(ctx context.Context, rights *models.ProvenanceAndRights) error {
	if rights.ValidTimeStart.IsZero() {
		return fmt.Errorf("creating rights record: valid_time_start is required")
	}
	if err := r.db.WithContext(ctx).Create(rights).Error; err != nil {
		return fmt.Errorf("creating rights record: %w", err)
	}
	return nil
}

func (r *rightsRepo) GetByID(ctx context.Context, id models.ULID) (*models.ProvenanceAndRights, error) {
	var rights models.ProvenanceAndRights
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rights).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting rights by ID: %w", err)
	}
	return &rights, nil
}

func (r *rightsRepo) GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.ProvenanceAndRights, error) {
	var records []*models.ProvenanceAndRights
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getting rights by batch: %w", err)
	}
	return records, nil
}

func (r *rightsRepo) CountByBatch(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProvenanceAndRights{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting rights records: %w", err)
	}
	return count, nil
}

func (r *rightsRepo) CountAmbiguous(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProvenanceAndRights{}).
		Where("batch_id = ?", batchID).
		Where("confidence < ? OR license_type = ?", models.RightsConfidenceThreshold, models.LicenseUnknown).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting ambiguous rights: %w", err)
	}
	return count, nil
}
