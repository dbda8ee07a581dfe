package handlers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/runner"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func newRunHandler(t *testing.T) (*RunHandler, *runner.Runner, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	r := runner.New(env.Config, env.Runs, env.Batches, env.Items, slog.New(slog.DiscardHandler))
	return NewRunHandler(env.Runs, r, slog.New(slog.DiscardHandler)), r, env
}

func createTestRun(t *testing.T, r *runner.Runner, env *testutil.Env) *models.PipelineRun {
	t.Helper()
	batch := env.SeedBatch(t, "src")
	run, err := r.CreateRun(context.Background(), batch.ID)
	require.NoError(t, err)
	return run
}

func TestStartRunTransitionsToRunning(t *testing.T) {
	handler, r, env := newRunHandler(t)
	run := createTestRun(t, r, env)

	out, err := handler.StartRun(context.Background(), &RunIDInput{ID: run.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, "running", out.Body.State)
	assert.Equal(t, models.StageIntake, out.Body.CurrentStage)
	assert.Equal(t, "intake", out.Body.StageName)
	assert.Equal(t, "completed", out.Body.StageStatuses[models.StageFrame])
}

func TestIllegalTransitionSurfacesConflictMessage(t *testing.T) {
	handler, r, env := newRunHandler(t)
	run := createTestRun(t, r, env)

	// Pausing an initialized run is a recorded no-op, not an HTTP error.
	out, err := handler.PauseRun(context.Background(), &RunIDInput{ID: run.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "initialized", out.Body.State)
	assert.Contains(t, out.Body.ErrorMessage, "pause is illegal")
}

func TestPauseResumeThroughAPI(t *testing.T) {
	handler, r, env := newRunHandler(t)
	run := createTestRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	out, err := handler.PauseRun(context.Background(), &RunIDInput{ID: run.ID.String()})
	require.NoError(t, err)
	assert.True(t, out.Body.Paused)

	require.NoError(t, r.MarkPaused(context.Background(), run.ID, models.StageIntake))

	out, err = handler.ResumeRun(context.Background(), &RunIDInput{ID: run.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "running", out.Body.State)
	assert.False(t, out.Body.Paused)
}

func TestResetRunThroughAPI(t *testing.T) {
	handler, r, env := newRunHandler(t)
	run := createTestRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))
	for stage := models.StageIntake; stage <= models.StagePools; stage++ {
		require.NoError(t, r.Advance(context.Background(), run.ID, stage, nil))
	}

	input := &ResetRunInput{ID: run.ID.String()}
	input.Body.Stage = models.StageLexicon
	out, err := handler.ResetRun(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, models.StageLexicon, out.Body.CurrentStage)
	assert.Equal(t, "running", out.Body.State)
	assert.Equal(t, "pending", out.Body.StageStatuses[models.StageLexicon])
}

func TestGetRunNotFound(t *testing.T) {
	handler, _, _ := newRunHandler(t)

	_, err := handler.GetRun(context.Background(), &RunIDInput{ID: models.NewULID().String()})
	require.Error(t, err)
}
