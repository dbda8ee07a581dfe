package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/enliterate-io/enliterate/internal/analytics"
	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// AnalyticsHandler serves maturity, coverage, and gap reports for a batch.
type AnalyticsHandler struct {
	batches repository.BatchRepository
	items   repository.ItemRepository
	rights  repository.RightsRepository
	lexicon repository.LexiconRepository
	pools   repository.PoolRepository
	store   graph.Store
	cfg     *config.Config
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(
	batches repository.BatchRepository,
	items repository.ItemRepository,
	rights repository.RightsRepository,
	lexicon repository.LexiconRepository,
	pools repository.PoolRepository,
	store graph.Store,
	cfg *config.Config,
	logger *slog.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		batches: batches,
		items:   items,
		rights:  rights,
		lexicon: lexicon,
		pools:   pools,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
}

// Register registers the analytics routes with the API.
func (h *AnalyticsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getBatchMaturity",
		Method:      "GET",
		Path:        "/api/v1/batches/{id}/maturity",
		Summary:     "Assess batch maturity",
		Tags:        []string{"Analytics"},
	}, h.GetMaturity)

	huma.Register(api, huma.Operation{
		OperationID: "getBatchCoverage",
		Method:      "GET",
		Path:        "/api/v1/batches/{id}/coverage",
		Summary:     "Batch coverage metrics",
		Tags:        []string{"Analytics"},
	}, h.GetCoverage)

	huma.Register(api, huma.Operation{
		OperationID: "getBatchGaps",
		Method:      "GET",
		Path:        "/api/v1/batches/{id}/gaps",
		Summary:     "Batch gap analysis",
		Description: "Returns the six gap kinds scored and ordered by priority",
		Tags:        []string{"Analytics"},
	}, h.GetGaps)
}

// BatchIDInput is the path input shared by the analytics operations.
type BatchIDInput struct {
	ID string `path:"id" doc:"Batch ULID"`
}

func (h *AnalyticsHandler) loadBatch(ctx context.Context, rawID string) (*models.IngestBatch, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid batch id")
	}
	batch, err := h.batches.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading batch")
	}
	if batch == nil {
		return nil, huma.Error404NotFound("batch not found")
	}
	return batch, nil
}

func (h *AnalyticsHandler) graphStats(ctx context.Context, batch *models.IngestBatch) (*analytics.GraphStats, error) {
	databaseName := batch.GraphDatabaseName()
	if !h.cfg.Graph.MultiDatabaseSupported {
		databaseName = ""
	}
	sess := h.store.Session(databaseName)
	defer sess.Close(ctx)
	return analytics.CollectGraphStats(ctx, sess)
}

// MaturityOutput is the output for the maturity endpoint.
type MaturityOutput struct {
	Body struct {
		Level    int                `json:"level"`
		Name     string             `json:"name"`
		Snapshot analytics.Snapshot `json:"snapshot"`
	}
}

// GetMaturity assesses the batch's maturity level.
func (h *AnalyticsHandler) GetMaturity(ctx context.Context, input *BatchIDInput) (*MaturityOutput, error) {
	batch, err := h.loadBatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	stats, err := h.graphStats(ctx, batch)
	if err != nil {
		h.logger.Error("collecting graph stats", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("collecting graph stats")
	}

	snap := analytics.Snapshot{
		GraphNodes:    int64(stats.TotalNodes()),
		Embeddings:    int64(stats.EmbeddingCount()),
		LiteracyScore: batch.LiteracyScore,
	}
	if snap.Items, err = h.items.CountByBatch(ctx, batch.ID); err != nil {
		return nil, huma.Error500InternalServerError("counting items")
	}
	if snap.TriageCompleted, err = h.items.CountByStageStatus(ctx, batch.ID, repository.StageFieldTriage, models.StageStatusCompleted); err != nil {
		return nil, huma.Error500InternalServerError("counting triaged items")
	}
	if snap.RightsRecords, err = h.rights.CountByBatch(ctx, batch.ID); err != nil {
		return nil, huma.Error500InternalServerError("counting rights")
	}
	if snap.LexiconTerms, err = h.lexicon.CountByBatch(ctx, batch.ID); err != nil {
		return nil, huma.Error500InternalServerError("counting lexicon terms")
	}
	if snap.PoolEntities, err = h.pools.CountAll(ctx, batch.ID); err != nil {
		return nil, huma.Error500InternalServerError("counting entities")
	}

	level := analytics.AssessMaturity(snap)
	out := &MaturityOutput{}
	out.Body.Level = int(level)
	out.Body.Name = level.String()
	out.Body.Snapshot = snap
	return out, nil
}

// CoverageOutput is the output for the coverage endpoint.
type CoverageOutput struct {
	Body analytics.CoverageReport
}

// GetCoverage computes the coverage report over the batch graph.
func (h *AnalyticsHandler) GetCoverage(ctx context.Context, input *BatchIDInput) (*CoverageOutput, error) {
	batch, err := h.loadBatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	stats, err := h.graphStats(ctx, batch)
	if err != nil {
		h.logger.Error("collecting graph stats", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("collecting graph stats")
	}
	return &CoverageOutput{Body: analytics.ComputeCoverage(stats)}, nil
}

// GapsOutput is the output for the gap analysis endpoint.
type GapsOutput struct {
	Body struct {
		Gaps []analytics.Gap `json:"gaps"`
	}
}

// GetGaps runs gap analysis over the batch.
func (h *AnalyticsHandler) GetGaps(ctx context.Context, input *BatchIDInput) (*GapsOutput, error) {
	batch, err := h.loadBatch(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	stats, err := h.graphStats(ctx, batch)
	if err != nil {
		h.logger.Error("collecting graph stats", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("collecting graph stats")
	}
	rights, err := h.rights.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading rights")
	}
	lexicon, err := h.lexicon.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading lexicon")
	}
	out := &GapsOutput{}
	out.Body.Gaps = analytics.AnalyzeGaps(stats, rights, lexicon)
	return out, nil
}
