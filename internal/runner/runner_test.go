package runner

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func newRunner(t *testing.T) (*Runner, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	r := New(env.Config, env.Runs, env.Batches, env.Items, slog.New(slog.DiscardHandler))
	return r, env
}

func createRun(t *testing.T, r *Runner, env *testutil.Env) *models.PipelineRun {
	t.Helper()
	batch := env.SeedBatch(t, "src")
	run, err := r.CreateRun(context.Background(), batch.ID)
	require.NoError(t, err)
	return run
}

func reload(t *testing.T, env *testutil.Env, id models.ULID) *models.PipelineRun {
	t.Helper()
	run, err := env.Runs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func TestCreateRunStartsInitialized(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)

	assert.Equal(t, models.RunStateInitialized, run.State)
	assert.Equal(t, models.StageFrame, run.CurrentStage)
	assert.Equal(t, env.Config.Pipeline.MaxRetries, run.MaxRetries)
}

func TestStartCompletesFrameAndPointsAtIntake(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)

	require.NoError(t, r.Start(context.Background(), run.ID))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, models.StageIntake, got.CurrentStage)
	assert.Equal(t, models.RunStageCompleted, got.StageStatus(models.StageFrame))
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageIntake))
	assert.NotNil(t, got.StartedAt)
}

func TestStartFromRunningIsRecordedNoOp(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	require.NoError(t, r.Start(context.Background(), run.ID))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, models.StageIntake, got.CurrentStage)
	assert.Contains(t, got.ErrorMessage, "start is illegal from state running")
}

func TestAdvanceMovesThroughStagesToCompletion(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	for stage := models.StageIntake; stage <= models.StageFinetune; stage++ {
		require.NoError(t, r.BeginStage(context.Background(), run.ID, stage))
		require.NoError(t, r.Advance(context.Background(), run.ID, stage, map[string]float64{"items_updated": 1}))
	}

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateCompleted, got.State)
	assert.NotNil(t, got.FinishedAt)
	assert.True(t, got.Terminal())
	for stage := models.StageIntake; stage <= models.StageFinetune; stage++ {
		assert.Equal(t, models.RunStageCompleted, got.StageStatus(stage))
	}
}

func TestAdvanceWithStaleStageIsNoOp(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))
	require.NoError(t, r.Advance(context.Background(), run.ID, models.StageIntake, nil))

	// A duplicate completion for intake arrives after the pointer moved on.
	require.NoError(t, r.Advance(context.Background(), run.ID, models.StageIntake, nil))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.StageRights, got.CurrentStage)
	assert.Contains(t, got.ErrorMessage, "advance_from_stage_1 is illegal")
}

func TestTransientFailureSchedulesRetryWithBackoff(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	stageErr := core.Errorf(core.KindExternalTransient, models.StageIntake, "service timeout")
	before := time.Now()
	require.NoError(t, r.Fail(context.Background(), run.ID, models.StageIntake, stageErr))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageIntake))
	require.NotNil(t, got.NextAttemptAt)
	assert.WithinDuration(t, before.Add(env.Config.Pipeline.RetryBackoffInitial), *got.NextAttemptAt, 5*time.Second)
	assert.Contains(t, got.ErrorMessage, "service timeout")
}

func TestPermanentFailureFailsWithoutRetry(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	stageErr := core.Errorf(core.KindInvalidInput, models.StageIntake, "source missing")
	require.NoError(t, r.Fail(context.Background(), run.ID, models.StageIntake, stageErr))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateFailed, got.State)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, models.RunStageFailed, got.StageStatus(models.StageIntake))
	assert.Nil(t, got.NextAttemptAt)
	assert.False(t, got.Terminal())
}

func TestRetriesExhaustTerminally(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	stageErr := core.Errorf(core.KindExternalTransient, models.StageIntake, "flaky")
	for i := 0; i < env.Config.Pipeline.MaxRetries; i++ {
		require.NoError(t, r.Fail(context.Background(), run.ID, models.StageIntake, stageErr))
	}
	require.NoError(t, r.Fail(context.Background(), run.ID, models.StageIntake, stageErr))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateFailed, got.State)
	assert.Equal(t, env.Config.Pipeline.MaxRetries, got.RetryCount)
	assert.NotNil(t, got.FinishedAt)
	assert.True(t, got.Terminal())

	// Neither start nor resume revives an exhausted run.
	require.NoError(t, r.Start(context.Background(), run.ID))
	require.NoError(t, r.Resume(context.Background(), run.ID))
	got = reload(t, env, run.ID)
	assert.Equal(t, models.RunStateFailed, got.State)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	r, env := newRunner(t)
	env.Config.Pipeline.RetryBackoffInitial = 5 * time.Second
	env.Config.Pipeline.RetryBackoffCap = 15 * time.Second

	assert.Equal(t, 5*time.Second, r.backoff(1))
	assert.Equal(t, 10*time.Second, r.backoff(2))
	assert.Equal(t, 15*time.Second, r.backoff(3))
	assert.Equal(t, 15*time.Second, r.backoff(10))
}

func TestPauseResumeRoundTrip(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))

	require.NoError(t, r.Pause(context.Background(), run.ID))
	got := reload(t, env, run.ID)
	assert.True(t, got.Paused)
	assert.Equal(t, models.RunStateRunning, got.State)

	require.NoError(t, r.MarkPaused(context.Background(), run.ID, models.StageIntake))
	got = reload(t, env, run.ID)
	assert.Equal(t, models.RunStatePaused, got.State)
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageIntake))

	require.NoError(t, r.Resume(context.Background(), run.ID))
	got = reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.False(t, got.Paused)
}

func TestPauseFromInitializedIsRecordedNoOp(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)

	require.NoError(t, r.Pause(context.Background(), run.ID))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateInitialized, got.State)
	assert.False(t, got.Paused)
	assert.Contains(t, got.ErrorMessage, "pause is illegal")
}

func TestFailedRunRestartsFromFailedStage(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))
	require.NoError(t, r.Advance(context.Background(), run.ID, models.StageIntake, nil))

	stageErr := core.Errorf(core.KindInvalidInput, models.StageRights, "bad input")
	require.NoError(t, r.Fail(context.Background(), run.ID, models.StageRights, stageErr))

	require.NoError(t, r.Start(context.Background(), run.ID))
	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, models.StageRights, got.CurrentStage)
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageRights))
	assert.Empty(t, got.ErrorMessage)
}

func TestSkipStageAdvancesFromFailed(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))
	require.NoError(t, r.Fail(context.Background(), run.ID, models.StageIntake, errors.New("boom")))

	require.NoError(t, r.SkipStage(context.Background(), run.ID))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Equal(t, models.StageRights, got.CurrentStage)
	assert.Equal(t, models.RunStageSkipped, got.StageStatus(models.StageIntake))
}

func TestResetToStageRewindsRunAndItems(t *testing.T) {
	r, env := newRunner(t)
	batch := env.SeedBatch(t, "src")
	run, err := r.CreateRun(context.Background(), batch.ID)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), run.ID))
	for stage := models.StageIntake; stage <= models.StageGraph; stage++ {
		require.NoError(t, r.Advance(context.Background(), run.ID, stage, nil))
	}

	item := &models.IngestItem{
		BatchID:       batch.ID,
		ContentHash:   "hash-reset",
		TriageStatus:  models.StageStatusCompleted,
		LexiconStatus: models.StageStatusCompleted,
		PoolStatus:    models.StageStatusCompleted,
		GraphStatus:   models.StageStatusCompleted,
	}
	require.NoError(t, env.Items.Create(context.Background(), item))

	require.NoError(t, r.ResetToStage(context.Background(), run.ID, models.StagePools))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.StagePools, got.CurrentStage)
	assert.Equal(t, models.RunStateRunning, got.State)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StagePools))
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageGraph))
	assert.Equal(t, models.RunStageCompleted, got.StageStatus(models.StageLexicon))

	gotItem, err := env.Items.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, gotItem.LexiconStatus)
	assert.Equal(t, models.StageStatusPending, gotItem.PoolStatus)
	assert.Equal(t, models.StageStatusPending, gotItem.GraphStatus)
}

func TestResetToStageValidatesRange(t *testing.T) {
	r, env := newRunner(t)
	run := createRun(t, r, env)

	err := r.ResetToStage(context.Background(), run.ID, models.StageFrame)
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))

	err = r.ResetToStage(context.Background(), run.ID, models.StageCount)
	require.Error(t, err)
}
