package graphassembly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

type fixture struct {
	rights   *models.ProvenanceAndRights
	idea     *models.Idea
	manifest *models.Manifest
	item     *models.IngestItem
}

// seedAssembled writes one rights record, a connected Idea/Manifest pair,
// and an item waiting on graph assembly.
func seedAssembled(t *testing.T, env *testutil.Env, batch *models.IngestBatch) fixture {
	t.Helper()
	ctx := context.Background()

	rights := &models.ProvenanceAndRights{
		BatchID:             batch.ID,
		LicenseType:         models.LicensePublicDomain,
		ConsentStatus:       models.ConsentExplicit,
		Publishability:      true,
		TrainingEligibility: true,
		Confidence:          0.9,
		ValidTimeStart:      models.Now(),
	}
	require.NoError(t, env.Rights.Create(ctx, rights))

	idea := &models.Idea{
		PoolEntityBase: models.PoolEntityBase{
			BatchID:  batch.ID,
			ReprText: "the picturesque",
			RightsID: rights.ID,
		},
		Label: "the picturesque",
	}
	require.NoError(t, env.Pools.CreateEntity(ctx, idea))

	manifest := &models.Manifest{
		PoolEntityBase: models.PoolEntityBase{
			BatchID:  batch.ID,
			ReprText: "Guide to the Lakes",
			RightsID: rights.ID,
		},
		Label: "Guide to the Lakes",
	}
	require.NoError(t, env.Pools.CreateEntity(ctx, manifest))

	require.NoError(t, env.Relations.Create(ctx, &models.Relation{
		BatchID:     batch.ID,
		SourceLabel: models.PoolIdea,
		SourceID:    idea.ID,
		TargetLabel: models.PoolManifest,
		TargetID:    manifest.ID,
		Verb:        "embodies",
		Strength:    0.9,
		RightsID:    rights.ID,
	}))

	item := &models.IngestItem{
		BatchID:      batch.ID,
		SourcePath:   "doc.txt",
		ContentHash:  "hash-doc",
		Content:      "content",
		RightsID:     &rights.ID,
		TriageStatus: models.StageStatusCompleted,
		GraphStatus:  models.StageStatusPending,
	}
	require.NoError(t, env.Items.Create(ctx, item))

	return fixture{rights: rights, idea: idea, manifest: manifest, item: item}
}

func TestExecuteAssemblesBatchGraph(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageGraph)
	fix := seedAssembled(t, env, batch)

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)

	assert.Equal(t, float64(1), result.Get("nodes_rights"))
	assert.Equal(t, float64(2), result.Get("nodes_pool"))
	assert.Equal(t, float64(1), result.Get("edges_merged"))
	assert.Equal(t, float64(2), result.Get("rights_links"))
	assert.Equal(t, 1, result.ItemsUpdated)

	sess := env.Graph.Session(batch.GraphDatabaseName())
	defer sess.Close(ctx)
	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		exists, err := tx.NodeExists("Idea", fix.idea.ID.String())
		require.NoError(t, err)
		assert.True(t, exists)

		edges, err := tx.ListEdgesFrom(graph.NodeRef{Label: "Idea", ID: fix.idea.ID.String()})
		require.NoError(t, err)
		var embodies bool
		for _, edge := range edges {
			if edge.Type == "EMBODIES" && edge.Target.ID == fix.manifest.ID.String() {
				embodies = true
			}
		}
		assert.True(t, embodies)
		return nil
	})
	require.NoError(t, err)

	item, err := env.Items.GetByID(ctx, fix.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusCompleted, item.GraphStatus)
	assert.Equal(t, models.StageStatusPending, item.EmbeddingStatus)

	got, err := env.Batches.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusGraph, got.Status)
}

func TestExecuteRerunConvergesOnSameGraph(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageGraph)
	seedAssembled(t, env, batch)

	stage := New(env.Deps())
	first, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)
	second, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)

	assert.Equal(t, first.Get("nodes_pool"), second.Get("nodes_pool"))
	assert.Equal(t, first.Get("edges_merged"), second.Get("edges_merged"))
}

func TestExecuteFallsBackToDefaultDatabase(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	env.Config.Graph.MultiDatabaseSupported = false
	batch := env.SeedBatch(t, "src")
	run := env.SeedRun(t, batch, models.StageGraph)
	fix := seedAssembled(t, env, batch)

	stage := New(env.Deps())
	result, err := stage.Execute(ctx, run, batch)
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Get("graph_multi_database_supported"))

	// Nodes land in the default database, still tagged with the batch id.
	sess := env.Graph.Session("")
	defer sess.Close(ctx)
	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		node, err := tx.GetNode("Idea", fix.idea.ID.String())
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, batch.ID.String(), node.Props["batch_id"])
		return nil
	})
	require.NoError(t, err)
}
