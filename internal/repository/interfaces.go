// Package repository defines data access interfaces for enliterate entities.
// All relational access goes through these interfaces, enabling testing and
// database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/enliterate-io/enliterate/internal/models"
)

// StageField identifies one of the per-item stage status column pairs.
type StageField string

const (
	// StageFieldTriage is the rights-triage status column.
	StageFieldTriage StageField = "triage"
	// StageFieldLexicon is the lexicon status column.
	StageFieldLexicon StageField = "lexicon"
	// StageFieldPool is the pool-extraction status column.
	StageFieldPool StageField = "pool"
	// StageFieldGraph is the graph-assembly status column.
	StageFieldGraph StageField = "graph"
	// StageFieldEmbedding is the embedding status column.
	StageFieldEmbedding StageField = "embedding"
)

// StatusColumn returns the database column holding the stage status.
func (f StageField) StatusColumn() string {
	return string(f) + "_status"
}

// ErrorColumn returns the database column holding the stage error message.
func (f StageField) ErrorColumn() string {
	return string(f) + "_error"
}

// Valid reports whether f is a known stage field.
func (f StageField) Valid() bool {
	switch f {
	case StageFieldTriage, StageFieldLexicon, StageFieldPool, StageFieldGraph, StageFieldEmbedding:
		return true
	}
	return false
}

// BatchRepository defines operations for ingest batch persistence.
type BatchRepository interface {
	Create(ctx context.Context, batch *models.IngestBatch) error
	GetByID(ctx context.Context, id models.ULID) (*models.IngestBatch, error)
	GetAll(ctx context.Context) ([]*models.IngestBatch, error)
	Update(ctx context.Context, batch *models.IngestBatch) error
	// UpdateStatus sets only the batch status.
	UpdateStatus(ctx context.Context, id models.ULID, status models.BatchStatus) error
	// SetLiteracyScore records the scoring stage output.
	SetLiteracyScore(ctx context.Context, id models.ULID, score float64) error
	Delete(ctx context.Context, id models.ULID) error
}

// ItemRepository defines operations for ingest item persistence.
type ItemRepository interface {
	Create(ctx context.Context, item *models.IngestItem) error
	CreateBatch(ctx context.Context, items []*models.IngestItem) error
	GetByID(ctx context.Context, id models.ULID) (*models.IngestItem, error)
	GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.IngestItem, error)
	// ListByStageStatus returns items of a batch whose stage status is one of
	// the given statuses. A nil/empty status for new items is matched by
	// including models.StageStatusPending plus the empty string.
	ListByStageStatus(ctx context.Context, batchID models.ULID, field StageField, statuses ...models.StageStatus) ([]*models.IngestItem, error)
	// ListEligibleByStageStatus is ListByStageStatus restricted to items with
	// triage completed and not quarantined.
	ListEligibleByStageStatus(ctx context.Context, batchID models.ULID, field StageField, statuses ...models.StageStatus) ([]*models.IngestItem, error)
	// ExistsByHash reports whether the batch already has an item with the hash.
	ExistsByHash(ctx context.Context, batchID models.ULID, hash string) (bool, error)
	// UpdateStage sets the stage status and error columns for one item.
	UpdateStage(ctx context.Context, id models.ULID, field StageField, status models.StageStatus, errMsg string) error
	// AssignRights links a rights record to the item and records the triage outcome.
	AssignRights(ctx context.Context, id models.ULID, rightsID models.ULID, quarantined bool, triageStatus models.StageStatus) error
	CountByBatch(ctx context.Context, batchID models.ULID) (int64, error)
	CountByStageStatus(ctx context.Context, batchID models.ULID, field StageField, status models.StageStatus) (int64, error)
	CountEligible(ctx context.Context, batchID models.ULID) (int64, error)
	// ResetStagesFrom resets stage statuses for stage k and later to pending,
	// used by the operator reset override.
	ResetStagesFrom(ctx context.Context, batchID models.ULID, stage int) error
}

// RightsRepository defines operations for rights record persistence.
type RightsRepository interface {
	Create(ctx context.Context, rights *models.ProvenanceAndRights) error
	GetByID(ctx context.Context, id models.ULID) (*models.ProvenanceAndRights, error)
	GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.ProvenanceAndRights, error)
	CountByBatch(ctx context.Context, batchID models.ULID) (int64, error)
	CountAmbiguous(ctx context.Context, batchID models.ULID) (int64, error)
}

// LexiconRepository defines operations for lexicon persistence.
type LexiconRepository interface {
	Create(ctx context.Context, entry *models.LexiconEntry) error
	Update(ctx context.Context, entry *models.LexiconEntry) error
	GetByTerm(ctx context.Context, batchID models.ULID, canonicalTerm string) (*models.LexiconEntry, error)
	GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.LexiconEntry, error)
	CountByBatch(ctx context.Context, batchID models.ULID) (int64, error)
	// Transaction executes fn within a database transaction; the callback
	// receives a transactional repository.
	Transaction(ctx context.Context, fn func(LexiconRepository) error) error
}

// PoolRepository defines operations for pool entity persistence across all
// twelve pools.
type PoolRepository interface {
	CreateEntity(ctx context.Context, entity models.PoolEntity) error
	// ListByPool returns all entities of one pool for a batch.
	ListByPool(ctx context.Context, batchID models.ULID, label models.PoolLabel) ([]models.PoolEntity, error)
	// CountByPool returns entity counts keyed by pool label.
	CountByPool(ctx context.Context, batchID models.ULID) (map[models.PoolLabel]int64, error)
	// CountAll returns the total entity count across pools.
	CountAll(ctx context.Context, batchID models.ULID) (int64, error)
}

// RelationRepository defines operations for typed relation persistence.
type RelationRepository interface {
	Create(ctx context.Context, relation *models.Relation) error
	CreateBatch(ctx context.Context, relations []*models.Relation) error
	GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.Relation, error)
	CountByBatch(ctx context.Context, batchID models.ULID) (int64, error)
}

// RunRepository defines operations for pipeline run persistence. State
// transitions go through WithLock so runner updates are serialized per run.
type RunRepository interface {
	Create(ctx context.Context, run *models.PipelineRun) error
	GetByID(ctx context.Context, id models.ULID) (*models.PipelineRun, error)
	GetByBatchID(ctx context.Context, batchID models.ULID) ([]*models.PipelineRun, error)
	GetActive(ctx context.Context) ([]*models.PipelineRun, error)
	// WithLock loads the run under a row lock, applies fn, and persists the
	// result in the same transaction. fn returning an error rolls back.
	WithLock(ctx context.Context, id models.ULID, fn func(run *models.PipelineRun) error) error
	// AcquireDue atomically leases one run that is running, unleased, has a
	// pending current stage, and whose NextAttemptAt is due.
	AcquireDue(ctx context.Context, workerID string, now time.Time) (*models.PipelineRun, error)
	// ReleaseLease clears the lease if held by workerID.
	ReleaseLease(ctx context.Context, id models.ULID, workerID string) error
	// RecoverStaleLeases clears leases older than the cutoff.
	RecoverStaleLeases(ctx context.Context, olderThan time.Time) (int64, error)
	// DeleteFinishedBefore prunes completed/failed runs finished before the cutoff.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
