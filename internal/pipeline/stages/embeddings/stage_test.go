package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/services"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

// seedEntity persists an Idea with the given training eligibility and, when
// withNode is set, merges its node into the batch graph.
func seedEntity(t *testing.T, env *testutil.Env, batch *models.IngestBatch, trainable, withNode bool) *models.Idea {
	t.Helper()
	ctx := context.Background()

	rights := &models.ProvenanceAndRights{
		BatchID:             batch.ID,
		LicenseType:         models.LicensePublicDomain,
		ConsentStatus:       models.ConsentExplicit,
		Publishability:      true,
		TrainingEligibility: trainable,
		Confidence:          0.9,
		ValidTimeStart:      models.Now(),
	}
	require.NoError(t, env.Rights.Create(ctx, rights))

	idea := &models.Idea{
		PoolEntityBase: models.PoolEntityBase{
			BatchID:  batch.ID,
			ReprText: "the sublime",
			RightsID: rights.ID,
		},
		Label: "the sublime",
	}
	require.NoError(t, env.Pools.CreateEntity(ctx, idea))

	require.NoError(t, env.Graph.EnsureDatabase(ctx, batch.GraphDatabaseName()))
	if withNode {
		sess := env.Graph.Session(batch.GraphDatabaseName())
		defer sess.Close(ctx)
		require.NoError(t, sess.ExecuteWrite(ctx, func(tx graph.DataTx) error {
			return tx.MergeNode("Idea", idea.ID.String(), map[string]any{
				"repr_text": idea.ReprText,
				"rights_id": rights.ID.String(),
			})
		}))
	}
	return idea
}

func TestExecuteStoresVectorOnNode(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageEmbeddings)
	idea := seedEntity(t, env, batch, true, true)

	item := &models.IngestItem{
		BatchID:         batch.ID,
		SourcePath:      "doc.txt",
		ContentHash:     "hash-doc",
		TriageStatus:    models.StageStatusCompleted,
		EmbeddingStatus: models.StageStatusPending,
	}
	require.NoError(t, env.Items.Create(ctx, item))

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(1), result.Get("embeddings_stored"))
	assert.Equal(t, 1, env.Embedding.Calls)

	sess := env.Graph.Session(batch.GraphDatabaseName())
	defer sess.Close(ctx)
	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		node, err := tx.GetNode("Idea", idea.ID.String())
		require.NoError(t, err)
		require.NotNil(t, node)
		vector, ok := node.Props["embedding"].([]float64)
		require.True(t, ok)
		assert.Len(t, vector, env.Embedding.Dims)
		assert.Equal(t, "test-embedding", node.Props["embedding_model"])
		return nil
	})
	require.NoError(t, err)

	got, err := env.Items.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, got.EmbeddingStatus)
}

func TestExecuteSkipsIneligibleEntities(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageEmbeddings)
	seedEntity(t, env, batch, false, true)

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(1), result.Get("entities_ineligible"))
	assert.Zero(t, env.Embedding.Calls)
}

func TestExecuteSkipsEntitiesWithoutNode(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageEmbeddings)
	seedEntity(t, env, batch, true, false)

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(1), result.Get("entities_without_node"))
	assert.Zero(t, env.Embedding.Calls)
}

func TestExecuteRejectedEncodingLeavesNodeBare(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	env.Embedding.EncodeFunc = func(ctx context.Context, text string) ([]float64, error) {
		return nil, services.ErrRejected
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageEmbeddings)
	idea := seedEntity(t, env, batch, true, true)

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(1), result.Get("embeddings_fallback_used"))

	sess := env.Graph.Session(batch.GraphDatabaseName())
	defer sess.Close(ctx)
	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		node, err := tx.GetNode("Idea", idea.ID.String())
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.NotContains(t, node.Props, "embedding")
		return nil
	})
	require.NoError(t, err)
}

func TestExecuteUnavailableServiceFailsStage(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	env.Embedding.EncodeFunc = func(ctx context.Context, text string) ([]float64, error) {
		return nil, services.ErrUnavailable
	}
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageEmbeddings)
	seedEntity(t, env, batch, true, true)

	stage := New(env.Deps())
	_, err := stage.Execute(ctx, run, batch)
	require.Error(t, err)
	assert.Equal(t, core.KindExternalTransient, core.KindOf(err))
}
