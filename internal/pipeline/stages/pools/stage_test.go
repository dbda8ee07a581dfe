package pools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/services"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

func seedPooledItem(t *testing.T, env *testutil.Env, batch *models.IngestBatch, name string) *models.IngestItem {
	t.Helper()

	record := &models.ProvenanceAndRights{
		BatchID:             batch.ID,
		LicenseType:         models.LicensePublicDomain,
		ConsentStatus:       models.ConsentExplicit,
		Publishability:      true,
		TrainingEligibility: true,
		Confidence:          0.9,
		ValidTimeStart:      models.Now(),
	}
	require.NoError(t, env.Rights.Create(context.Background(), record))

	item := &models.IngestItem{
		BatchID:       batch.ID,
		SourcePath:    name,
		ContentHash:   fmt.Sprintf("hash-%s", name),
		Content:       "content of " + name,
		RightsID:      &record.ID,
		TriageStatus:  models.StageStatusCompleted,
		LexiconStatus: models.StageStatusCompleted,
		PoolStatus:    models.StageStatusPending,
	}
	require.NoError(t, env.Items.Create(context.Background(), item))
	return item
}

func TestExecutePersistsEntitiesAndRelations(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Extraction.PoolsFunc = func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
		return &services.PoolExtraction{
			Entities: []services.EntityProposal{
				{Key: "e1", Pool: models.PoolIdea, ReprText: "federated learning", Label: "federated learning"},
				{Key: "e2", Pool: models.PoolManifest, ReprText: "the 2017 paper", Label: "FL paper"},
			},
			Relations: []services.RelationProposal{
				{SourceKey: "e1", TargetKey: "e2", Verb: "embodies", Strength: 0.8},
				{SourceKey: "e1", TargetKey: "missing", Verb: "embodies"},
				{SourceKey: "e1", TargetKey: "e2", Verb: "not_a_verb"},
			},
		}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StagePools)
	item := seedPooledItem(t, env, batch, "doc")

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(2), result.Get("entities_created"))
	assert.Equal(t, float64(1), result.Get("relations_created"))
	assert.Equal(t, float64(1), result.Get("relations_dangling"))
	assert.Equal(t, float64(1), result.Get("relations_unknown_verb"))

	ideas, err := env.Pools.ListByPool(context.Background(), batch.ID, models.PoolIdea)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "federated learning", ideas[0].Repr())

	relations, err := env.Relations.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "embodies", relations[0].Verb)
	assert.InDelta(t, 0.8, relations[0].Strength, 1e-9)

	got, err := env.Items.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, got.PoolStatus)
	assert.Equal(t, models.StageStatusPending, got.GraphStatus)
}

func TestExecuteSkipsItemsLexiconNeverAdvanced(t *testing.T) {
	env := testutil.NewEnv(t)
	var calls int
	env.Extraction.PoolsFunc = func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
		calls++
		return &services.PoolExtraction{}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StagePools)

	// Lexicon failed for this item, so it was never advanced and its pool
	// column is still unset.
	stalled := &models.IngestItem{
		BatchID:       batch.ID,
		ContentHash:   "hash-stalled",
		TriageStatus:  models.StageStatusCompleted,
		LexiconStatus: models.StageStatusFailed,
	}
	require.NoError(t, env.Items.Create(context.Background(), stalled))

	stage := New(env.Deps())
	result, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	assert.Zero(t, calls, "unadvanced items must not be pool-extracted")
	assert.Zero(t, result.Get("entities_created"))

	got, err := env.Items.GetByID(context.Background(), stalled.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PoolStatus)
}

func TestExecuteClampsRelationStrength(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Extraction.PoolsFunc = func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
		return &services.PoolExtraction{
			Entities: []services.EntityProposal{
				{Key: "a", Pool: models.PoolIdea, ReprText: "a"},
				{Key: "b", Pool: models.PoolIdea, ReprText: "b"},
			},
			Relations: []services.RelationProposal{
				{SourceKey: "a", TargetKey: "b", Verb: "influences", Strength: 3.5},
			},
		}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StagePools)
	seedPooledItem(t, env, batch, "doc")

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.NoError(t, err)

	relations, err := env.Relations.GetByBatchID(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, float64(1), relations[0].Strength)
}

func TestExecuteRejectsInvalidEnums(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Extraction.PoolsFunc = func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
		return &services.PoolExtraction{
			Entities: []services.EntityProposal{
				{Key: "r", Pool: models.PoolRelational, ReprText: "bond", RelationType: "frenemy"},
			},
		}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StagePools)
	item := seedPooledItem(t, env, batch, "doc")

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))

	got, err := env.Items.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusFailed, got.PoolStatus)
	assert.Contains(t, got.PoolError, "relation_type")
}

func TestExecuteRejectsPracticalWithoutSteps(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Extraction.PoolsFunc = func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
		return &services.PoolExtraction{
			Entities: []services.EntityProposal{
				{Key: "p", Pool: models.PoolPractical, ReprText: "how to deploy", Steps: []string{"  ", ""}},
			},
		}, nil
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StagePools)
	seedPooledItem(t, env, batch, "doc")

	stage := New(env.Deps())
	_, err := stage.Execute(context.Background(), run, batch)
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}
