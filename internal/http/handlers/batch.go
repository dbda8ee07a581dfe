// Package handlers provides the HTTP API handlers for enliterate.
package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/runner"
)

// BatchHandler handles batch lifecycle endpoints.
type BatchHandler struct {
	batches repository.BatchRepository
	items   repository.ItemRepository
	runs    repository.RunRepository
	runner  *runner.Runner
	logger  *slog.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(batches repository.BatchRepository, items repository.ItemRepository, runs repository.RunRepository, r *runner.Runner, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		batches: batches,
		items:   items,
		runs:    runs,
		runner:  r,
		logger:  logger,
	}
}

// Register registers the batch routes with the API.
func (h *BatchHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createBatch",
		Method:      "POST",
		Path:        "/api/v1/batches",
		Summary:     "Create a batch",
		Description: "Creates an ingest batch and its pipeline run",
		Tags:        []string{"Batches"},
	}, h.CreateBatch)

	huma.Register(api, huma.Operation{
		OperationID: "listBatches",
		Method:      "GET",
		Path:        "/api/v1/batches",
		Summary:     "List batches",
		Tags:        []string{"Batches"},
	}, h.ListBatches)

	huma.Register(api, huma.Operation{
		OperationID: "getBatch",
		Method:      "GET",
		Path:        "/api/v1/batches/{id}",
		Summary:     "Get batch by ID",
		Tags:        []string{"Batches"},
	}, h.GetBatch)
}

// BatchResponse is the API representation of a batch.
type BatchResponse struct {
	ID               string  `json:"id"`
	Seq              int64   `json:"seq"`
	Name             string  `json:"name"`
	SourceDescriptor string  `json:"source_descriptor"`
	SourceSynthetic  bool    `json:"source_synthetic"`
	Status           string  `json:"status"`
	GraphDatabase    string  `json:"graph_database"`
	LiteracyScore    float64 `json:"literacy_score"`
	DeliveredAt      *string `json:"delivered_at,omitempty"`
}

func batchResponse(batch *models.IngestBatch) BatchResponse {
	resp := BatchResponse{
		ID:               batch.ID.String(),
		Seq:              batch.Seq,
		Name:             batch.Name,
		SourceDescriptor: batch.SourceDescriptor,
		SourceSynthetic:  batch.SourceSynthetic,
		Status:           string(batch.Status),
		GraphDatabase:    batch.GraphDatabaseName(),
		LiteracyScore:    batch.LiteracyScore,
	}
	if batch.DeliveredAt != nil {
		s := batch.DeliveredAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.DeliveredAt = &s
	}
	return resp
}

// CreateBatchInput is the input for creating a batch.
type CreateBatchInput struct {
	Body struct {
		Name             string `json:"name" minLength:"1" maxLength:"255"`
		SourceDescriptor string `json:"source_descriptor" minLength:"1" maxLength:"1024" doc:"Directory holding the batch documents"`
		SourceSynthetic  bool   `json:"source_synthetic,omitempty" doc:"Marks synthetic test content; enables the rights override"`
	}
}

// CreateBatchOutput is the output for creating a batch.
type CreateBatchOutput struct {
	Body struct {
		Batch BatchResponse `json:"batch"`
		RunID string        `json:"run_id"`
	}
}

// CreateBatch creates a batch and an initialized run for it.
func (h *BatchHandler) CreateBatch(ctx context.Context, input *CreateBatchInput) (*CreateBatchOutput, error) {
	batch := &models.IngestBatch{
		Name:             input.Body.Name,
		SourceDescriptor: input.Body.SourceDescriptor,
		SourceSynthetic:  input.Body.SourceSynthetic,
		Status:           models.BatchStatusInitialized,
	}
	if err := h.batches.Create(ctx, batch); err != nil {
		h.logger.Error("creating batch", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("creating batch")
	}

	run, err := h.runner.CreateRun(ctx, batch.ID)
	if err != nil {
		h.logger.Error("creating run", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("creating run")
	}

	out := &CreateBatchOutput{}
	out.Body.Batch = batchResponse(batch)
	out.Body.RunID = run.ID.String()
	return out, nil
}

// ListBatchesOutput is the output for listing batches.
type ListBatchesOutput struct {
	Body struct {
		Items []BatchResponse `json:"items"`
		Total int             `json:"total"`
	}
}

// ListBatches returns all batches.
func (h *BatchHandler) ListBatches(ctx context.Context, _ *struct{}) (*ListBatchesOutput, error) {
	batches, err := h.batches.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing batches")
	}
	out := &ListBatchesOutput{}
	out.Body.Items = make([]BatchResponse, 0, len(batches))
	for _, batch := range batches {
		out.Body.Items = append(out.Body.Items, batchResponse(batch))
	}
	out.Body.Total = len(batches)
	return out, nil
}

// GetBatchInput is the input for fetching one batch.
type GetBatchInput struct {
	ID string `path:"id" doc:"Batch ULID"`
}

// GetBatchOutput is the output for fetching one batch.
type GetBatchOutput struct {
	Body struct {
		Batch  BatchResponse `json:"batch"`
		Items  int64         `json:"items"`
		RunIDs []string      `json:"run_ids"`
	}
}

// GetBatch returns one batch with its item count and runs.
func (h *BatchHandler) GetBatch(ctx context.Context, input *GetBatchInput) (*GetBatchOutput, error) {
	id, err := models.ParseULID(input.ID)
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

	count, err := h.items.CountByBatch(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting items")
	}
	runs, err := h.runs.GetByBatchID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading runs")
	}

	out := &GetBatchOutput{}
	out.Body.Batch = batchResponse(batch)
	out.Body.Items = count
	out.Body.RunIDs = make([]string, 0, len(runs))
	for _, run := range runs {
		out.Body.RunIDs = append(out.Body.RunIDs, run.ID.String())
	}
	return out, nil
}
