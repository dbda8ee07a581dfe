package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/runner"
)

// RunHandler handles pipeline run control endpoints.
type RunHandler struct {
	runs   repository.RunRepository
	runner *runner.Runner
	logger *slog.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runs repository.RunRepository, r *runner.Runner, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, runner: r, logger: logger}
}

// Register registers the run routes with the API.
func (h *RunHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      "GET",
		Path:        "/api/v1/runs/{id}",
		Summary:     "Get run status",
		Description: "Returns the run state, stage statuses, metrics, and error",
		Tags:        []string{"Runs"},
	}, h.GetRun)

	huma.Register(api, huma.Operation{
		OperationID: "startRun",
		Method:      "POST",
		Path:        "/api/v1/runs/{id}/start",
		Summary:     "Start a run",
		Tags:        []string{"Runs"},
	}, h.StartRun)

	huma.Register(api, huma.Operation{
		OperationID: "pauseRun",
		Method:      "POST",
		Path:        "/api/v1/runs/{id}/pause",
		Summary:     "Pause a run",
		Description: "Sets the cooperative pause flag; the in-flight stage stops at the next item boundary",
		Tags:        []string{"Runs"},
	}, h.PauseRun)

	huma.Register(api, huma.Operation{
		OperationID: "resumeRun",
		Method:      "POST",
		Path:        "/api/v1/runs/{id}/resume",
		Summary:     "Resume a run",
		Tags:        []string{"Runs"},
	}, h.ResumeRun)

	huma.Register(api, huma.Operation{
		OperationID: "skipStage",
		Method:      "POST",
		Path:        "/api/v1/runs/{id}/skip",
		Summary:     "Skip the current stage",
		Description: "Operator override: marks the current stage skipped and advances",
		Tags:        []string{"Runs"},
	}, h.SkipStage)

	huma.Register(api, huma.Operation{
		OperationID: "resetRun",
		Method:      "POST",
		Path:        "/api/v1/runs/{id}/reset",
		Summary:     "Reset a run to a stage",
		Description: "Operator override: rewinds the run and resets per-item statuses for the stage and later",
		Tags:        []string{"Runs"},
	}, h.ResetRun)
}

// RunResponse is the API representation of a run.
type RunResponse struct {
	ID            string                     `json:"id"`
	BatchID       string                     `json:"batch_id"`
	State         string                     `json:"state"`
	CurrentStage  int                        `json:"current_stage"`
	StageName     string                     `json:"stage_name"`
	Paused        bool                       `json:"paused"`
	RetryCount    int                        `json:"retry_count"`
	MaxRetries    int                        `json:"max_retries"`
	StageStatuses map[int]string             `json:"stage_statuses"`
	Metrics       map[int]map[string]float64 `json:"metrics,omitempty"`
	ErrorMessage  string                     `json:"error_message,omitempty"`
}

func runResponse(run *models.PipelineRun) RunResponse {
	statuses := make(map[int]string, len(run.StageStatuses))
	for stage, status := range run.StageStatuses {
		statuses[stage] = string(status)
	}
	return RunResponse{
		ID:            run.ID.String(),
		BatchID:       run.BatchID.String(),
		State:         string(run.State),
		CurrentStage:  run.CurrentStage,
		StageName:     models.StageName(run.CurrentStage),
		Paused:        run.Paused,
		RetryCount:    run.RetryCount,
		MaxRetries:    run.MaxRetries,
		StageStatuses: statuses,
		Metrics:       run.Metrics,
		ErrorMessage:  run.ErrorMessage,
	}
}

// RunIDInput is the path input shared by the run operations.
type RunIDInput struct {
	ID string `path:"id" doc:"Run ULID"`
}

// RunOutput wraps a run response.
type RunOutput struct {
	Body RunResponse
}

func (h *RunHandler) loadRun(ctx context.Context, rawID string) (*models.PipelineRun, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid run id")
	}
	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading run")
	}
	if run == nil {
		return nil, huma.Error404NotFound("run not found")
	}
	return run, nil
}

// GetRun returns the run with statuses and metrics.
func (h *RunHandler) GetRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	run, err := h.loadRun(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &RunOutput{Body: runResponse(run)}, nil
}

// control reloads the run after a transition so the response reflects the
// persisted state, including recorded conflicts.
func (h *RunHandler) control(ctx context.Context, rawID string, op func(ctx context.Context, id models.ULID) error) (*RunOutput, error) {
	run, err := h.loadRun(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := op(ctx, run.ID); err != nil {
		h.logger.Error("run transition failed",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("run transition failed")
	}
	run, err = h.loadRun(ctx, rawID)
	if err != nil {
		return nil, err
	}
	return &RunOutput{Body: runResponse(run)}, nil
}

// StartRun starts the run.
func (h *RunHandler) StartRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	return h.control(ctx, input.ID, h.runner.Start)
}

// PauseRun pauses the run.
func (h *RunHandler) PauseRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	return h.control(ctx, input.ID, h.runner.Pause)
}

// ResumeRun resumes the run.
func (h *RunHandler) ResumeRun(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	return h.control(ctx, input.ID, h.runner.Resume)
}

// SkipStage skips the current stage.
func (h *RunHandler) SkipStage(ctx context.Context, input *RunIDInput) (*RunOutput, error) {
	return h.control(ctx, input.ID, h.runner.SkipStage)
}

// ResetRunInput is the input for resetting a run.
type ResetRunInput struct {
	ID   string `path:"id" doc:"Run ULID"`
	Body struct {
		Stage int `json:"stage" minimum:"1" maximum:"9" doc:"Stage to rewind to"`
	}
}

// ResetRun rewinds the run to the given stage.
func (h *RunHandler) ResetRun(ctx context.Context, input *ResetRunInput) (*RunOutput, error) {
	return h.control(ctx, input.ID, func(ctx context.Context, id models.ULID) error {
		return h.runner.ResetToStage(ctx, id, input.Body.Stage)
	})
}
