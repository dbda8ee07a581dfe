// Package literacy implements the scoring stage: coverage analytics over
// the assembled graph plus rights clarity collapse into the batch's 0-100
// literacy score.
package literacy

import (
	"context"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/analytics"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
)

// Stage scores batch literacy.
type Stage struct {
	shared.BaseStage
}

// New creates the literacy scoring stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageLiteracy), models.StageLiteracy, deps)}
}

// Execute reads the graph once, computes coverage, and persists the score
// on the batch. Scoring touches no item state; re-runs simply recompute.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusScoring); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	databaseName := batch.GraphDatabaseName()
	if !s.Deps.Config.Graph.MultiDatabaseSupported {
		databaseName = ""
	}
	sess := s.Deps.Graph.Session(databaseName)
	defer sess.Close(ctx)

	stats, err := analytics.CollectGraphStats(ctx, sess)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	coverage := analytics.ComputeCoverage(stats)

	clarity, err := s.rightsClarity(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	score := analytics.LiteracyScore(coverage, clarity)
	if err := s.Deps.Batches.SetLiteracyScore(ctx, batch.ID, score); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	s.Logger.Info("batch literacy scored",
		slog.String("batch_id", batch.ID.String()),
		slog.Float64("score", score))

	result.Set("literacy_score", score)
	result.Set("idea_coverage", coverage.IdeaCoverage)
	result.Set("average_degree", coverage.AverageDegree)
	result.Set("orphan_share", coverage.OrphanShare)
	result.Set("path_completeness", coverage.PathCompleteness)
	result.Set("temporal_coverage", coverage.TemporalCoverage)
	result.Set("spatial_coverage", coverage.SpatialCoverage)
	result.Set("pool_balance_cv", coverage.PoolBalanceCV)
	result.Set("rights_clarity", clarity)
	return result, nil
}

// rightsClarity is the unambiguous share of the batch's rights records.
// A batch with no rights records scores zero clarity; that state cannot
// normally reach this stage.
func (s *Stage) rightsClarity(ctx context.Context, batchID models.ULID) (float64, error) {
	total, err := s.Deps.Rights.CountByBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	ambiguous, err := s.Deps.Rights.CountAmbiguous(ctx, batchID)
	if err != nil {
		return 0, err
	}
	return 1 - float64(ambiguous)/float64(total), nil
}
