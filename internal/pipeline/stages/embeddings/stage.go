// Package embeddings implements the embedding stage: trainable entities
// with a graph node get a repr_text vector stored on the node, behind a
// vector index per pool label.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/services"
)

// Stage generates and stores embeddings.
type Stage struct {
	shared.BaseStage
}

// New creates the embedding stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageEmbeddings), models.StageEmbeddings, deps)}
}

// Execute encodes repr_text for every training-eligible entity whose node
// made it into the assembled graph. Entities whose encoding is rejected
// outright are left without a vector and counted as fallback; an
// unavailable service fails the stage so the runner can retry.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusEmbedding); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	databaseName := batch.GraphDatabaseName()
	if !s.Deps.Config.Graph.MultiDatabaseSupported {
		databaseName = ""
	}
	sess := s.Deps.Graph.Session(databaseName)
	defer sess.Close(ctx)

	dims := s.Deps.EmbeddingService.Dimensions()
	if err := s.ensureVectorIndexes(ctx, sess, dims); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	rightsByID, err := s.loadRights(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	pause := s.PauseCheck(run.ID)
	model := s.Deps.EmbeddingService.Model()

	for _, pool := range models.AllPools {
		entities, err := s.Deps.Pools.ListByPool(ctx, batch.ID, pool)
		if err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
		for _, entity := range entities {
			if paused, perr := pause(ctx); perr == nil && paused {
				return result, shared.ErrPaused
			}
			rights, ok := rightsByID[entity.Rights()]
			if !ok || !rights.TrainingEligibility {
				result.Add("entities_ineligible", 1)
				continue
			}
			stored, err := s.embedEntity(ctx, sess, entity, model)
			if err != nil {
				if errors.Is(err, services.ErrRejected) {
					s.Logger.Warn("embedding rejected, leaving node without vector",
						slog.String("pool", string(entity.Pool())),
						slog.String("entity_id", entity.GetID().String()))
					result.Add("embeddings_fallback_used", 1)
					continue
				}
				return result, core.WrapError(s.StageIndex, err)
			}
			if stored {
				result.Add("embeddings_stored", 1)
			} else {
				result.Add("entities_without_node", 1)
			}
		}
	}

	items, err := s.Deps.Items.ListEligibleByStageStatus(ctx, batch.ID, repository.StageFieldEmbedding, shared.WorkStatuses(run)...)
	if err != nil {
		return result, core.WrapError(s.StageIndex, err)
	}
	for _, item := range items {
		if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldEmbedding, models.StageStatusCompleted, ""); err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
	}
	result.ItemsUpdated = len(items)
	return result, nil
}

// ensureVectorIndexes confirms the embedding index on every pool label.
// Index creation is idempotent, so repeated runs are harmless.
func (s *Stage) ensureVectorIndexes(ctx context.Context, sess graph.Session, dims int) error {
	return sess.ExecuteSchema(ctx, func(tx graph.SchemaTx) error {
		for _, pool := range models.AllPools {
			name := fmt.Sprintf("idx_%s_embedding", strings.ToLower(string(pool)))
			if err := tx.EnsureVectorIndex(name, string(pool), "embedding", dims); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Stage) loadRights(ctx context.Context, batchID models.ULID) (map[models.ULID]*models.ProvenanceAndRights, error) {
	records, err := s.Deps.Rights.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	byID := make(map[models.ULID]*models.ProvenanceAndRights, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}
	return byID, nil
}

// embedEntity encodes the entity's repr_text and stores the vector on its
// graph node. Entities dropped during dedup or orphan removal no longer
// have a node; those are skipped, not failed.
func (s *Stage) embedEntity(ctx context.Context, sess graph.Session, entity models.PoolEntity, model string) (bool, error) {
	label := string(entity.Pool())
	id := entity.GetID().String()

	var exists bool
	err := sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		var rerr error
		exists, rerr = tx.NodeExists(label, id)
		return rerr
	})
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	vector, err := s.Deps.EmbeddingService.Encode(ctx, entity.Repr())
	if err != nil {
		return false, err
	}

	err = sess.ExecuteWrite(ctx, func(tx graph.DataTx) error {
		return tx.SetProperties(label, id, map[string]any{
			"embedding":       vector,
			"embedding_model": model,
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
