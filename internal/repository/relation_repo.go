package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// relationRepo implements RelationRepository using GORM.
type relationRepo struct {
	db *gorm.DB
}

// NewRelationRepository creates a new RelationRepository.
func NewRelationRepository(db *gorm.DB) RelationRepository {
	return &relationRepo{db: db}
}

func (r *relationRepo) Create(ctx context.Context, relation *models.Relation) error {
	if err := r.db.WithContext(ctx).Create(relation).Error; err != nil {
		return fmt.Errorf("creating relation: %w", err)
	}
	return nil
}

func (r *relationRepo) CreateBatch(ctx context.Context, relations []*models.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(relations, 100).Error; err != nil {
		return fmt.Errorf("creating relations: %w", err)
	}
	return nil
}

func (r *relationRepo) GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.Relation, error) {
	var relations []*models.Relation
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Find(&relations).Error; err != nil {
		return nil, fmt.Errorf("getting relations by batch: %w", err)
	}
	return relations, nil
}

func (r *relationRepo) CountByBatch(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Relation{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting relations: %w", err)
	}
	return count, nil
}
