// Package finetune implements the terminal stage: it counts what the
// fine-tune dataset builder will receive and records the handoff. The
// builder itself consumes the delivered graph outside the pipeline.
package finetune

import (
	"context"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
)

// Stage records the fine-tune dataset handoff.
type Stage struct {
	shared.BaseStage
}

// New creates the fine-tune handoff stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageFinetune), models.StageFinetune, deps)}
}

// Execute counts training-eligible entities per pool. One entity yields one
// prompt/completion pair keyed on repr_text, so pair counts equal eligible
// entity counts.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	rights, err := s.Deps.Rights.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	trainable := make(map[models.ULID]bool, len(rights))
	for _, record := range rights {
		trainable[record.ID] = record.TrainingEligibility
	}

	var total int
	for _, pool := range models.AllPools {
		entities, err := s.Deps.Pools.ListByPool(ctx, batch.ID, pool)
		if err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
		var eligible int
		for _, entity := range entities {
			if trainable[entity.Rights()] {
				eligible++
			}
		}
		if eligible > 0 {
			result.Set("training_pairs_"+string(pool), float64(eligible))
		}
		total += eligible
	}
	result.Set("training_pairs", float64(total))
	s.Logger.Info("fine-tune dataset handoff recorded",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("training_pairs", total))
	return result, nil
}
