// Package graphassembly implements the graph assembly stage: the batch's
// relational state is projected into its isolated graph database through the
// phased assembler, and the verified result is reported back as run metrics.
package graphassembly

import (
	"context"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// Stage assembles the batch graph.
type Stage struct {
	shared.BaseStage
}

// New creates the graph assembly stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageGraph), models.StageGraph, deps)}
}

// Execute runs single-threaded: assembly phases are ordered and the
// assembler owns its own batching. Idempotence comes from the assembler
// itself, every phase is a merge, so a re-run converges on the same graph.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusGraph); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	input, err := s.gatherInput(ctx, batch)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	databaseName := batch.GraphDatabaseName()
	if !s.Deps.Config.Graph.MultiDatabaseSupported {
		databaseName = ""
	}
	result.Set("graph_multi_database_supported", boolMetric(s.Deps.Config.Graph.MultiDatabaseSupported))

	assembler := &graph.Assembler{
		Store:                s.Deps.Graph,
		Glossary:             s.Deps.Glossary,
		Logger:               s.Logger,
		OnlineWaitTimeout:    s.Deps.Config.Graph.OnlineWaitTimeout,
		DedupBatchSize:       s.Deps.Config.Graph.DedupBatchSize,
		OrphanBatchSize:      s.Deps.Config.Graph.OrphanBatchSize,
		OrphanPreserveWindow: s.Deps.Config.Pipeline.OrphanPreserveWindow,
	}

	assembled, aerr := assembler.Assemble(ctx, databaseName, input)
	if assembled != nil {
		result.Set("nodes_rights", float64(assembled.RightsNodes))
		result.Set("nodes_lexicon", float64(assembled.LexiconNodes))
		result.Set("nodes_pool", float64(assembled.PoolNodes))
		result.Set("edges_merged", float64(assembled.Edges.Merged))
		result.Set("edges_reversed", float64(assembled.Edges.Reversed))
		result.Set("edges_skipped", float64(assembled.Edges.Skipped))
		result.Set("rights_links", float64(assembled.RightsLinks))
		result.Set("dedup_removed", float64(assembled.Deduplicated.Total()))
		result.Set("orphans_removed", float64(assembled.OrphansRemoved))
		if assembled.Integrity != nil {
			result.Set("integrity_warnings", float64(len(assembled.Integrity.Warnings)))
			for _, warning := range assembled.Integrity.Warnings {
				s.Logger.Warn("graph integrity warning", slog.String("detail", warning))
			}
		}
	}
	if aerr != nil {
		if assembled != nil && assembled.Integrity != nil && !assembled.Integrity.OK() {
			return result, core.Errorf(core.KindIntegrity, s.StageIndex, "graph assembly: %v", aerr)
		}
		return result, core.WrapError(s.StageIndex, aerr)
	}

	// The graph column tracks which items made it into an assembled graph.
	items, err := s.Deps.Items.ListEligibleByStageStatus(ctx, batch.ID, repository.StageFieldGraph, shared.WorkStatuses(run)...)
	if err != nil {
		return result, core.WrapError(s.StageIndex, err)
	}
	for _, item := range items {
		if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldGraph, models.StageStatusCompleted, ""); err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
		if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldEmbedding, models.StageStatusPending, ""); err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
	}
	result.ItemsUpdated = len(items)
	return result, nil
}

// gatherInput loads the batch's full graph projection from the relational
// store: rights records, lexicon, every pool, and the typed relations.
func (s *Stage) gatherInput(ctx context.Context, batch *models.IngestBatch) (graph.AssemblyInput, error) {
	var input graph.AssemblyInput
	var err error

	if input.Rights, err = s.Deps.Rights.GetByBatchID(ctx, batch.ID); err != nil {
		return input, err
	}
	if input.Lexicon, err = s.Deps.Lexicon.GetByBatchID(ctx, batch.ID); err != nil {
		return input, err
	}
	for _, pool := range models.AllPools {
		entities, err := s.Deps.Pools.ListByPool(ctx, batch.ID, pool)
		if err != nil {
			return input, err
		}
		input.Entities = append(input.Entities, entities...)
	}
	if input.Relations, err = s.Deps.Relations.GetByBatchID(ctx, batch.ID); err != nil {
		return input, err
	}
	return input, nil
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
