// Package deliverables implements the delivery stage: the batch manifest,
// node and edge counts, maturity, coverage, and prioritized gaps, is
// materialized as run metrics and the batch is marked delivered.
package deliverables

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/enliterate-io/enliterate/internal/analytics"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// Stage delivers the batch manifest.
type Stage struct {
	shared.BaseStage
}

// New creates the deliverables stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageDeliverables), models.StageDeliverables, deps)}
}

// Execute assembles the manifest from the relational store and the graph,
// then stamps the batch delivered. Everything it writes to the run metric
// map is recomputable, so re-runs converge.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

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

	for label, count := range stats.NodesByLabel {
		result.Set("nodes_"+strings.ToLower(label), float64(count))
	}
	for edgeType, count := range stats.EdgesByType {
		result.Set("edges_"+strings.ToLower(edgeType), float64(count))
	}
	result.Set("nodes_total", float64(stats.TotalNodes()))

	coverage := analytics.ComputeCoverage(stats)
	result.Set("idea_coverage", coverage.IdeaCoverage)
	result.Set("path_completeness", coverage.PathCompleteness)
	result.Set("orphan_share", coverage.OrphanShare)
	result.Set("temporal_coverage", coverage.TemporalCoverage)
	result.Set("spatial_coverage", coverage.SpatialCoverage)

	snapshot, err := s.snapshot(ctx, batch, stats)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	maturity := analytics.AssessMaturity(snapshot)
	result.Set("maturity_level", float64(maturity))
	s.Logger.Info("batch maturity assessed",
		slog.String("batch_id", batch.ID.String()),
		slog.String("maturity", maturity.String()))

	rights, err := s.Deps.Rights.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	lexicon, err := s.Deps.Lexicon.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	for _, gap := range analytics.AnalyzeGaps(stats, rights, lexicon) {
		result.Set("gap_"+string(gap.Kind)+"_count", float64(gap.Count))
		result.Set("gap_"+string(gap.Kind)+"_priority", gap.Priority)
	}

	batch.Status = models.BatchStatusDelivered
	now := time.Now()
	batch.DeliveredAt = &now
	if err := s.Deps.Batches.Update(ctx, batch); err != nil {
		return result, core.WrapError(s.StageIndex, err)
	}
	return result, nil
}

func (s *Stage) snapshot(ctx context.Context, batch *models.IngestBatch, stats *analytics.GraphStats) (analytics.Snapshot, error) {
	var snap analytics.Snapshot
	var err error

	if snap.Items, err = s.Deps.Items.CountByBatch(ctx, batch.ID); err != nil {
		return snap, err
	}
	if snap.TriageCompleted, err = s.Deps.Items.CountByStageStatus(ctx, batch.ID, repository.StageFieldTriage, models.StageStatusCompleted); err != nil {
		return snap, err
	}
	if snap.RightsRecords, err = s.Deps.Rights.CountByBatch(ctx, batch.ID); err != nil {
		return snap, err
	}
	if snap.LexiconTerms, err = s.Deps.Lexicon.CountByBatch(ctx, batch.ID); err != nil {
		return snap, err
	}
	if snap.PoolEntities, err = s.Deps.Pools.CountAll(ctx, batch.ID); err != nil {
		return snap, err
	}
	snap.GraphNodes = int64(stats.TotalNodes())
	snap.Embeddings = int64(stats.EmbeddingCount())
	snap.LiteracyScore = batch.LiteracyScore
	return snap, nil
}
