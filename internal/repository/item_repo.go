package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// itemRepo implements ItemRepository using GORM.
type itemRepo struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepo{db: db}
}

func (r *itemRepo) Create(ctx context.Context, item *models.IngestItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	return nil
}

func (r *itemRepo) CreateBatch(ctx context.Context, items []*models.IngestItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(items, 100).Error; err != nil {
		return fmt.Errorf("creating items: %w", err)
	}
	return nil
}

func (r *itemRepo) GetByID(ctx context.Context, id models.ULID) (*models.IngestItem, error) {
	var item models.IngestItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting item by ID: %w", err)
	}
	return &item, nil
}

func (r *itemRepo) GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.IngestItem, error) {
	var items []*models.IngestItem
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("getting items by batch: %w", err)
	}
	return items, nil
}

// unsetMeansPending reports whether an empty status column counts as
// pending for the field. Only triage and lexicon qualify: those columns may
// be legitimately unset on freshly created items. The pool, graph, and
// embedding columns are written solely by the preceding stage's explicit
// advancement, so an unset column there means the item was never advanced
// and must stay out of the work set.
func unsetMeansPending(field StageField) bool {
	return field == StageFieldTriage || field == StageFieldLexicon
}

// statusQuery builds the stage-status predicate.
func statusQuery(q *gorm.DB, field StageField, statuses []models.StageStatus) *gorm.DB {
	values := make([]string, 0, len(statuses))
	includeUnset := false
	for _, s := range statuses {
		values = append(values, string(s))
		if s == models.StageStatusPending && unsetMeansPending(field) {
			includeUnset = true
		}
	}
	col := field.StatusColumn()
	if includeUnset {
		return q.Where(fmt.Sprintf("%s IN ? OR %s IS NULL OR %s = ''", col, col, col), values)
	}
	return q.Where(fmt.Sprintf("%s IN ?", col), values)
}

func (r *itemRepo) ListByStageStatus(ctx context.Context, batchID models.ULID, field StageField, statuses ...models.StageStatus) ([]*models.IngestItem, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("invalid stage field: %s", field)
	}
	var items []*models.IngestItem
	q := r.db.WithContext(ctx).Where("batch_id = ?", batchID)
	q = statusQuery(q, field, statuses)
	if err := q.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing items by %s status: %w", field, err)
	}
	return items, nil
}

func (r *itemRepo) ListEligibleByStageStatus(ctx context.Context, batchID models.ULID, field StageField, statuses ...models.StageStatus) ([]*models.IngestItem, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("invalid stage field: %s", field)
	}
	var items []*models.IngestItem
	q := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Where("quarantined = ?", false).
		Where("triage_status = ?", models.StageStatusCompleted)
	q = statusQuery(q, field, statuses)
	if err := q.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing eligible items by %s status: %w", field, err)
	}
	return items, nil
}

func (r *itemRepo) ExistsByHash(ctx context.Context, batchID models.ULID, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("batch_id = ? AND content_hash = ?", batchID, hash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking item hash: %w", err)
	}
	return count > 0, nil
}

func (r *itemRepo) UpdateStage(ctx context.Context, id models.ULID, field StageField, status models.StageStatus, errMsg string) error {
	if !field.Valid() {
		return fmt.Errorf("invalid stage field: %s", field)
	}
	updates := map[string]any{
		field.StatusColumn(): status,
		field.ErrorColumn():  errMsg,
	}
	result := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating item %s status: %w", field, result.Error)
	}
	return nil
}

func (r *itemRepo) AssignRights(ctx context.Context, id models.ULID, rightsID models.ULID, quarantined bool, triageStatus models.StageStatus) error {
	updates := map[string]any{
		"rights_id":     rightsID,
		"quarantined":   quarantined,
		"triage_status": triageStatus,
	}
	if !quarantined {
		updates["lexicon_status"] = models.StageStatusPending
	}
	result := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("assigning rights to item: %w", result.Error)
	}
	return nil
}

func (r *itemRepo) CountByBatch(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return count, nil
}

func (r *itemRepo) CountByStageStatus(ctx context.Context, batchID models.ULID, field StageField, status models.StageStatus) (int64, error) {
	if !field.Valid() {
		return 0, fmt.Errorf("invalid stage field: %s", field)
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("batch_id = ?", batchID).
		Where(fmt.Sprintf("%s = ?", field.StatusColumn()), status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting items by %s status: %w", field, err)
	}
	return count, nil
}

func (r *itemRepo) CountEligible(ctx context.Context, batchID models.ULID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IngestItem{}).
		Where("batch_id = ? AND quarantined = ? AND triage_status = ?",
			batchID, false, models.StageStatusCompleted).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting eligible items: %w", err)
	}
	return count, nil
}

// stageFieldsFrom maps a pipeline stage index to the item stage fields that
// an operator reset to that stage must clear.
func stageFieldsFrom(stage int) []StageField {
	order := []struct {
		stage int
		field StageField
	}{
		{models.StageRights, StageFieldTriage},
		{models.StageLexicon, StageFieldLexicon},
		{models.StagePools, StageFieldPool},
		{models.StageGraph, StageFieldGraph},
		{models.StageEmbeddings, StageFieldEmbedding},
	}
	var fields []StageField
	for _, entry := range order {
		if entry.stage >= stage {
			fields = append(fields, entry.field)
		}
	}
	return fields
}

func (r *itemRepo) ResetStagesFrom(ctx context.Context, batchID models.ULID, stage int) error {
	fields := stageFieldsFrom(stage)
	if len(fields) == 0 {
		return nil
	}
	updates := make(map[string]any, len(fields)*2)
	for _, f := range fields {
		updates[f.StatusColumn()] = models.StageStatusPending
		updates[f.ErrorColumn()] = ""
	}
	// Quarantined items stay quarantined unless triage itself is reset.
	q := r.db.WithContext(ctx).Model(&models.IngestItem{}).Where("batch_id = ?", batchID)
	if stage > models.StageRights {
		q = q.Where("quarantined = ?", false)
	} else {
		updates["quarantined"] = false
	}
	if err := q.Updates(updates).Error; err != nil {
		return fmt.Errorf("resetting item stages: %w", err)
	}
	return nil
}
