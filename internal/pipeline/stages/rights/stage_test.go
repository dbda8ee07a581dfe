package rights

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/services"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func seedItem(t *testing.T, env *testutil.Env, batch *models.IngestBatch, name string) *models.IngestItem {
	t.Helper()
	item := &models.IngestItem{
		BatchID:      batch.ID,
		SourcePath:   name,
		ContentHash:  fmt.Sprintf("hash-%s", name),
		Content:      "content of " + name,
		TriageStatus: models.StageStatusPending,
	}
	require.NoError(t, env.Items.Create(context.Background(), item))
	return item
}

func TestTriageAssignsRights(t *testing.T) {
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "a")
	seedItem(t, env, batch, "b")

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(2), result.Get("items_completed"))
	assert.Equal(t, 2, env.RightsService.Calls)

	items, err := env.Items.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, models.StageStatusCompleted, item.TriageStatus)
		assert.Equal(t, models.StageStatusPending, item.LexiconStatus)
		assert.False(t, item.Quarantined)
		require.NotNil(t, item.RightsID)
	}

	count, err := env.Rights.CountByBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestLowConfidenceQuarantines(t *testing.T) {
	env := testutil.NewEnv(t)
	env.RightsService.InferFunc = func(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error) {
		return &services.RightsInference{
			Confidence:    0.3,
			LicenseType:   models.LicenseUnknown,
			ConsentStatus: models.ConsentAbsent,
			Publishable:   true,
			Trainable:     true,
		}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "dubious")

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Get("items_quarantined"))

	items, err := env.Items.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Quarantined)
	assert.Equal(t, models.StageStatusQuarantined, items[0].TriageStatus)

	// A low-confidence record exists but can never publish or train.
	records, err := env.Rights.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Publishability)
	assert.False(t, records[0].TrainingEligibility)
	assert.True(t, records[0].Ambiguous())
}

func TestRejectedItemFailsAlone(t *testing.T) {
	env := testutil.NewEnv(t)
	env.RightsService.InferFunc = func(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error) {
		if item.SourcePath == "bad" {
			return nil, fmt.Errorf("payload: %w", services.ErrRejected)
		}
		return &services.RightsInference{Confidence: 0.9, Publishable: true, Trainable: true}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "good")
	bad := seedItem(t, env, batch, "bad")

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Get("items_completed"))
	assert.Equal(t, float64(1), result.Get("items_failed"))

	got, err := env.Items.GetByID(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusFailed, got.TriageStatus)
	assert.NotEmpty(t, got.TriageError)
}

func TestAllItemsFailingFailsStage(t *testing.T) {
	env := testutil.NewEnv(t)
	env.RightsService.InferFunc = func(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error) {
		return nil, services.ErrUnavailable
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "a")

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.Error(t, err)
}

func TestSyntheticOverrideSkipsService(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Config.Services.TestRightsOverride = true
	batch := env.SeedBatch(t, "src")
	batch.SourceSynthetic = true
	require.NoError(t, env.Batches.Update(context.Background(), batch))
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "synthetic")

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Get("items_completed"))
	assert.Zero(t, env.RightsService.Calls)

	records, err := env.Rights.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RightsMethodOverride, records[0].Method)
	assert.True(t, records[0].TrainingEligibility)
}

func TestRetryReincludesFailedItems(t *testing.T) {
	env := testutil.NewEnv(t)
	calls := 0
	env.RightsService.InferFunc = func(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error) {
		calls++
		if calls == 1 {
			return nil, services.ErrUnavailable
		}
		return &services.RightsInference{Confidence: 0.9, Publishable: true, Trainable: true}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageRights)
	seedItem(t, env, batch, "flaky")

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.Error(t, err)

	run.RetryCount = 1
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Get("items_completed"))
}
