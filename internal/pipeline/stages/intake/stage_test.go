package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func TestExecuteCreatesItems(t *testing.T) {
	env := testutil.NewEnv(t)
	root := testutil.WriteDocs(t, map[string]string{
		"intro.md":       "# Welcome\n\nThis is the introduction.",
		"notes/deep.txt": "Deeper file in a subdirectory.",
	})
	batch := env.SeedBatch(t, root)
	run := env.SeedRun(t, batch, models.StageIntake)

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(2), result.Get("items_created"))
	assert.Equal(t, 2, result.ItemsUpdated)

	items, err := env.Items.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, models.StageStatusPending, item.TriageStatus)
		assert.Len(t, item.ContentHash, 64)
		assert.NotEmpty(t, item.Content)
	}

	got, err := env.Batches.GetByID(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusTriaging, got.Status)
}

func TestExecuteRerunSkipsExistingHashes(t *testing.T) {
	env := testutil.NewEnv(t)
	root := testutil.WriteDocs(t, map[string]string{
		"a.md": "alpha content",
		"b.md": "beta content",
	})
	batch := env.SeedBatch(t, root)
	run := env.SeedRun(t, batch, models.StageIntake)
	stage := New(env.Deps())

	_, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Get("items_created"))
	assert.Equal(t, float64(2), result.Get("items_duplicate"))

	count, err := env.Items.CountByBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExecuteSkipsOversizedItems(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Config.Pipeline.MaxItemSizeBytes = 10
	root := testutil.WriteDocs(t, map[string]string{
		"small.md": "tiny",
		"large.md": "this file body exceeds the ten byte cap",
	})
	batch := env.SeedBatch(t, root)
	run := env.SeedRun(t, batch, models.StageIntake)

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(1), result.Get("items_created"))
	assert.Equal(t, float64(1), result.Get("items_skipped"))
}

func TestExecuteRejectsMissingSource(t *testing.T) {
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "/nonexistent/enliterate-docs")
	run := env.SeedRun(t, batch, models.StageIntake)

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}

func TestExecutePausesAtFileBoundary(t *testing.T) {
	env := testutil.NewEnv(t)
	root := testutil.WriteDocs(t, map[string]string{"a.md": "alpha"})
	batch := env.SeedBatch(t, root)
	run := env.SeedRun(t, batch, models.StageIntake)
	require.NoError(t, env.Runs.WithLock(context.Background(), run.ID, func(r *models.PipelineRun) error {
		r.Paused = true
		return nil
	}))

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	assert.ErrorIs(t, err, shared.ErrPaused)

	count, err := env.Items.CountByBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
