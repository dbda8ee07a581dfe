package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// poolRepo implements PoolRepository using GORM. One repository serves all
// twelve pool tables; the label selects the concrete model.
type poolRepo struct {
	db *gorm.DB
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepo{db: db}
}

func (r *poolRepo) CreateEntity(ctx context.Context, entity models.PoolEntity) error {
	if entity.Rights().IsZero() {
		return fmt.Errorf("creating %s entity: rights reference is required", entity.Pool())
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("creating %s entity: %w", entity.Pool(), err)
	}
	return nil
}

func (r *poolRepo) ListByPool(ctx context.Context, batchID models.ULID, label models.PoolLabel) ([]models.PoolEntity, error) {
	q := r.db.WithContext(ctx).Where("batch_id = ?", batchID)

	collect := func(dest any, wrap func() []models.PoolEntity) ([]models.PoolEntity, error) {
		if err := q.Find(dest).Error; err != nil {
			return nil, fmt.Errorf("listing %s entities: %w", label, err)
		}
		return wrap(), nil
	}

	switch label {
	case models.PoolIdea:
		var rows []*models.Idea
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolManifest:
		var rows []*models.Manifest
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolExperience:
		var rows []*models.Experience
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolRelational:
		var rows []*models.Relational
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolEvolutionary:
		var rows []*models.Evolutionary
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolPractical:
		var rows []*models.Practical
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolEmanation:
		var rows []*models.Emanation
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolActor:
		var rows []*models.Actor
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolSpatial:
		var rows []*models.Spatial
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolEvidence:
		var rows []*models.Evidence
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolRisk:
		var rows []*models.Risk
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	case models.PoolMethod:
		var rows []*models.Method
		return collect(&rows, func() []models.PoolEntity { return wrapEntities(rows) })
	default:
		return nil, fmt.Errorf("unknown pool label: %s", label)
	}
}

// wrapEntities converts a typed slice into the PoolEntity interface slice.
func wrapEntities[T models.PoolEntity](rows []T) []models.PoolEntity {
	out := make([]models.PoolEntity, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

// poolTables maps labels to table names for count queries.
var poolTables = map[models.PoolLabel]string{
	models.PoolIdea:         models.Idea{}.TableName(),
	models.PoolManifest:     models.Manifest{}.TableName(),
	models.PoolExperience:   models.Experience{}.TableName(),
	models.PoolRelational:   models.Relational{}.TableName(),
	models.PoolEvolutionary: models.Evolutionary{}.TableName(),
	models.PoolPractical:    models.Practical{}.TableName(),
	models.PoolEmanation:    models.Emanation{}.TableName(),
	models.PoolActor:        models.Actor{}.TableName(),
	models.PoolSpatial:      models.Spatial{}.TableName(),
	models.PoolEvidence:     models.Evidence{}.TableName(),
	models.PoolRisk:         models.Risk{}.TableName(),
	models.PoolMethod:       models.Method{}.TableName(),
}

func (r *poolRepo) CountByPool(ctx context.Context, batchID models.ULID) (map[models.PoolLabel]int64, error) {
	counts := make(map[models.PoolLabel]int64, len(poolTables))
	for _, label := range models.AllPools {
		var count int64
		err := r.db.WithContext(ctx).Table(poolTables[label]).
			Where("batch_id = ?", batchID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("counting %s entities: %w", label, err)
		}
		counts[label] = count
	}
	return counts, nil
}

func (r *poolRepo) CountAll(ctx context.Context, batchID models.ULID) (int64, error) {
	counts, err := r.CountByPool(ctx, batchID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	return total, nil
}
