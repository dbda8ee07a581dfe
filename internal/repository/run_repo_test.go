package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func seedRunningRun(t *testing.T, env *testutil.Env) *models.PipelineRun {
	t.Helper()
	batch := env.SeedBatch(t, "src")
	run := &models.PipelineRun{
		BatchID:      batch.ID,
		State:        models.RunStateRunning,
		CurrentStage: models.StageIntake,
		MaxRetries:   3,
	}
	require.NoError(t, env.Runs.Create(context.Background(), run))
	return run
}

func TestAcquireDueLeasesOldestRunOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	first := seedRunningRun(t, env)
	seedRunningRun(t, env)

	got, err := env.Runs.AcquireDue(ctx, "worker-1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "worker-1", got.LeaseOwner)

	// The leased run is invisible to other workers; the second run is next.
	second, err := env.Runs.AcquireDue(ctx, "worker-2", time.Now())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	third, err := env.Runs.AcquireDue(ctx, "worker-3", time.Now())
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestAcquireDueHonorsNextAttemptAt(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	run := seedRunningRun(t, env)

	future := time.Now().Add(time.Hour)
	require.NoError(t, env.Runs.WithLock(ctx, run.ID, func(r *models.PipelineRun) error {
		r.NextAttemptAt = &future
		return nil
	}))

	got, err := env.Runs.AcquireDue(ctx, "worker-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = env.Runs.AcquireDue(ctx, "worker-1", future.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.ID, got.ID)
}

func TestAcquireDueSkipsPausedAndNonRunning(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	run := seedRunningRun(t, env)
	require.NoError(t, env.Runs.WithLock(ctx, run.ID, func(r *models.PipelineRun) error {
		r.Paused = true
		return nil
	}))

	got, err := env.Runs.AcquireDue(ctx, "worker-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReleaseLeaseOnlyByOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	seedRunningRun(t, env)

	got, err := env.Runs.AcquireDue(ctx, "worker-1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, env.Runs.ReleaseLease(ctx, got.ID, "worker-2"))
	reloaded, err := env.Runs.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", reloaded.LeaseOwner)

	require.NoError(t, env.Runs.ReleaseLease(ctx, got.ID, "worker-1"))
	reloaded, err = env.Runs.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.LeaseOwner)
}

func TestRecoverStaleLeases(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	seedRunningRun(t, env)

	leasedAt := time.Now().Add(-time.Hour)
	got, err := env.Runs.AcquireDue(ctx, "dead-worker", leasedAt)
	require.NoError(t, err)
	require.NotNil(t, got)

	recovered, err := env.Runs.RecoverStaleLeases(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	reacquired, err := env.Runs.AcquireDue(ctx, "worker-1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, reacquired)
	assert.Equal(t, got.ID, reacquired.ID)
}

func TestDeleteFinishedBeforePrunesOnlyFinishedRuns(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	active := seedRunningRun(t, env)

	batch := env.SeedBatch(t, "src2")
	finished := time.Now().Add(-48 * time.Hour)
	old := &models.PipelineRun{
		BatchID:      batch.ID,
		State:        models.RunStateCompleted,
		CurrentStage: models.StageFinetune,
		FinishedAt:   &finished,
	}
	require.NoError(t, env.Runs.Create(ctx, old))

	deleted, err := env.Runs.DeleteFinishedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	still, err := env.Runs.GetByID(ctx, active.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)

	gone, err := env.Runs.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestWithLockPersistsMutation(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	run := seedRunningRun(t, env)

	require.NoError(t, env.Runs.WithLock(ctx, run.ID, func(r *models.PipelineRun) error {
		r.SetStageStatus(models.StageIntake, models.RunStageRunning)
		r.ErrorMessage = "observed"
		return nil
	}))

	got, err := env.Runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStageRunning, got.StageStatus(models.StageIntake))
	assert.Equal(t, "observed", got.ErrorMessage)
}
