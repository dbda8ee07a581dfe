package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// lexiconRepo implements LexiconRepository using GORM.
type lexiconRepo struct {
	db *gorm.DB
}

// NewLexiconRepository creates a new LexiconRepository.
func NewLexiconRepository(db *gorm.DB) LexiconRepository {
	return &lexiconRepo{db: db}
}

func (r *lexiconRepo) Create(ctx context.Context, entry *models.LexiconEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("creating lexicon entry: %w", err)
	}
	return nil
}

func (r *lexiconRepo) Update(ctx context.Context, entry *models.LexiconEntry) error {
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("updating lexicon entry: %w", err)
	}
	return nil
}

func (r *lexiconRepo) GetByTerm(ctx context.Context, batchID models.ULID, canonicalTerm string) (*models.LexiconEntry, error) {
	var entry models.LexiconEntry
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND canonical_term = ?", batchID, canonicalTerm).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lexicon entry by term: %w", err)
	}
	return &entry, nil
}

func (r *lexiconRepo) GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.LexiconEntry, error) {
	var entries []*models.LexiconEntry
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("canonical_term ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("getting lexicon by batch: %w", err)
	}
	return entries, nil
}

func (r *lexiconRepo) CountByBatch(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LexiconEntry{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting lexicon entries: %w", err)
	}
	return count, nil
}

func (r *lexiconRepo) Transaction(ctx context.Context, fn func(LexiconRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&lexiconRepo{db: tx})
	})
}
