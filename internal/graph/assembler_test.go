package graph_test

import (
	"context"
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/graph/memgraph"
	"github.com/enliterate-io/enliterate/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ulidAt(t *testing.T, at time.Time) models.ULID {
	t.Helper()
	return models.ULID(ulid.MustNew(ulid.Timestamp(at), rand.Reader))
}

func newRights(batchID models.ULID) *models.ProvenanceAndRights {
	return &models.ProvenanceAndRights{
		BaseModel:           models.BaseModel{ID: models.NewULID()},
		BatchID:             batchID,
		LicenseType:         models.LicensePublicDomain,
		ConsentStatus:       models.ConsentImplied,
		Publishability:      true,
		TrainingEligibility: true,
		ValidTimeStart:      time.Now(),
		Confidence:          0.95,
	}
}

func newIdea(t *testing.T, batchID, rightsID models.ULID, label string, at time.Time) *models.Idea {
	return &models.Idea{
		PoolEntityBase: models.PoolEntityBase{
			BaseModel: models.BaseModel{ID: ulidAt(t, at)},
			BatchID:   batchID,
			ReprText:  label,
			RightsID:  rightsID,
		},
		Label: label,
	}
}

func newManifest(t *testing.T, batchID, rightsID models.ULID, label string, at time.Time) *models.Manifest {
	return &models.Manifest{
		PoolEntityBase: models.PoolEntityBase{
			BaseModel: models.BaseModel{ID: ulidAt(t, at)},
			BatchID:   batchID,
			ReprText:  label,
			RightsID:  rightsID,
		},
		Label: label,
	}
}

func TestAssembleFullPipeline(t *testing.T) {
	ctx := context.Background()
	batchID := models.NewULID()
	now := time.Now()

	rights := newRights(batchID)

	// Two ideas with the same label; the older one must win the merge.
	older := newIdea(t, batchID, rights.ID, "picturesque landscape", now.Add(-2*time.Hour))
	newer := newIdea(t, batchID, rights.ID, "Picturesque  Landscape", now.Add(-time.Hour))
	manifest := newManifest(t, batchID, rights.ID, "Guide to the Lakes", now.Add(-2*time.Hour))

	entry := &models.LexiconEntry{
		BaseModel:      models.BaseModel{ID: models.NewULID()},
		BatchID:        batchID,
		CanonicalTerm:  "picturesque",
		SurfaceForms:   models.StringList{"picturesque"},
		ValidTimeStart: now,
		SourceItemID:   models.NewULID(),
	}

	relations := []*models.Relation{
		{
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			BatchID:     batchID,
			SourceLabel: models.PoolIdea,
			SourceID:    newer.ID,
			TargetLabel: models.PoolManifest,
			TargetID:    manifest.ID,
			Verb:        "embodies",
			Strength:    0.9,
			RightsID:    rights.ID,
		},
		{
			// Unknown verbs are skipped, not fatal.
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			BatchID:     batchID,
			SourceLabel: models.PoolIdea,
			SourceID:    older.ID,
			TargetLabel: models.PoolManifest,
			TargetID:    manifest.ID,
			Verb:        "invented_verb",
			RightsID:    rights.ID,
		},
	}

	store := memgraph.New()
	assembler := &graph.Assembler{
		Store:                store,
		Glossary:             graph.DefaultGlossary(),
		Logger:               testLogger(),
		OnlineWaitTimeout:    time.Second,
		OrphanPreserveWindow: time.Hour,
	}

	result, err := assembler.Assemble(ctx, "ekn-1", graph.AssemblyInput{
		Rights:    []*models.ProvenanceAndRights{rights},
		Lexicon:   []*models.LexiconEntry{entry},
		Entities:  []models.PoolEntity{older, newer, manifest},
		Relations: relations,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RightsNodes)
	assert.Equal(t, 1, result.LexiconNodes)
	assert.Equal(t, 3, result.PoolNodes)
	assert.Equal(t, 1, result.Edges.Merged)
	assert.Equal(t, 1, result.Edges.Reversed)
	assert.Equal(t, 1, result.Edges.Skipped)
	assert.Equal(t, 1, result.Deduplicated[string(models.PoolIdea)])
	require.NotNil(t, result.Integrity)
	assert.True(t, result.Integrity.OK())

	sess := store.Session("ekn-1")
	defer sess.Close(ctx)

	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		ideas, err := tx.CountNodes("Idea")
		require.NoError(t, err)
		assert.Equal(t, int64(1), ideas, "duplicate idea should be merged away")

		survivor, err := tx.GetNode("Idea", older.ID.String())
		require.NoError(t, err)
		require.NotNil(t, survivor, "the older id wins the merge")

		gone, err := tx.NodeExists("Idea", newer.ID.String())
		require.NoError(t, err)
		assert.False(t, gone)

		// The edge held by the loser must survive on the winner.
		edges, err := tx.ListEdgesFrom(graph.NodeRef{Label: "Idea", ID: older.ID.String()})
		require.NoError(t, err)
		var embodies int
		for _, edge := range edges {
			if edge.Type == "EMBODIES" {
				embodies++
				assert.Equal(t, manifest.ID.String(), edge.Target.ID)
			}
		}
		assert.Equal(t, 1, embodies)

		reversed, err := tx.ListEdgesFrom(graph.NodeRef{Label: "Manifest", ID: manifest.ID.String()})
		require.NoError(t, err)
		var found bool
		for _, edge := range reversed {
			if edge.Type == "IS_EMBODIMENT_OF" {
				found = true
			}
		}
		assert.True(t, found, "reverse edge should be materialized")
		return nil
	})
	require.NoError(t, err)
}

func TestAssembleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	batchID := models.NewULID()
	now := time.Now()

	rights := newRights(batchID)
	idea := newIdea(t, batchID, rights.ID, "sublime", now.Add(-2*time.Hour))
	manifest := newManifest(t, batchID, rights.ID, "Tintern Abbey", now.Add(-2*time.Hour))
	input := graph.AssemblyInput{
		Rights:   []*models.ProvenanceAndRights{rights},
		Entities: []models.PoolEntity{idea, manifest},
		Relations: []*models.Relation{{
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			BatchID:     batchID,
			SourceLabel: models.PoolIdea,
			SourceID:    idea.ID,
			TargetLabel: models.PoolManifest,
			TargetID:    manifest.ID,
			Verb:        "embodies",
			Strength:    1,
			RightsID:    rights.ID,
		}},
	}

	store := memgraph.New()
	assembler := &graph.Assembler{
		Store:                store,
		Glossary:             graph.DefaultGlossary(),
		Logger:               testLogger(),
		OnlineWaitTimeout:    time.Second,
		OrphanPreserveWindow: time.Hour,
	}

	first, err := assembler.Assemble(ctx, "ekn-2", input)
	require.NoError(t, err)
	second, err := assembler.Assemble(ctx, "ekn-2", input)
	require.NoError(t, err)

	assert.Equal(t, first.Integrity.NodeCounts, second.Integrity.NodeCounts)
	assert.Equal(t, first.Integrity.EdgeCounts, second.Integrity.EdgeCounts)
}

func TestAssembleRejectsInvalidDatabaseName(t *testing.T) {
	assembler := &graph.Assembler{
		Store:    memgraph.New(),
		Glossary: graph.DefaultGlossary(),
		Logger:   testLogger(),
	}
	_, err := assembler.Assemble(context.Background(), "notekn", graph.AssemblyInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid graph database name")
}

func TestRemoveOrphansHonorsPreserveWindow(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	require.NoError(t, store.EnsureDatabase(ctx, "ekn-3"))
	sess := store.Session("ekn-3")
	defer sess.Close(ctx)

	now := time.Now()
	oldID := ulidAt(t, now.Add(-3*time.Hour)).String()
	freshID := ulidAt(t, now.Add(-10*time.Minute)).String()

	err := sess.ExecuteWrite(ctx, func(tx graph.DataTx) error {
		if err := tx.MergeNode("Idea", oldID, map[string]any{"label": "stale"}); err != nil {
			return err
		}
		return tx.MergeNode("Idea", freshID, map[string]any{"label": "fresh"})
	})
	require.NoError(t, err)

	removed, err := graph.RemoveOrphans(ctx, sess, time.Hour, 100, now, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		exists, err := tx.NodeExists("Idea", freshID)
		require.NoError(t, err)
		assert.True(t, exists, "node inside the preserve window survives")

		exists, err = tx.NodeExists("Idea", oldID)
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestVerifyIntegrityFlagsUnlinkedContentNodes(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	require.NoError(t, store.EnsureDatabase(ctx, "ekn-4"))
	sess := store.Session("ekn-4")
	defer sess.Close(ctx)

	err := sess.ExecuteWrite(ctx, func(tx graph.DataTx) error {
		return tx.MergeNode("Idea", models.NewULID().String(), map[string]any{
			"label":     "unlinked",
			"repr_text": "unlinked",
			"rights_id": models.NewULID().String(),
		})
	})
	require.NoError(t, err)

	report, err := graph.VerifyIntegrity(ctx, sess, graph.DefaultGlossary())
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "HAS_RIGHTS")
}

func TestLexiconDedupUnionsSurfaceForms(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	require.NoError(t, store.EnsureDatabase(ctx, "ekn-5"))
	sess := store.Session("ekn-5")
	defer sess.Close(ctx)

	now := time.Now()
	winnerID := ulidAt(t, now.Add(-2*time.Hour)).String()
	loserID := ulidAt(t, now.Add(-time.Hour)).String()

	err := sess.ExecuteWrite(ctx, func(tx graph.DataTx) error {
		if err := tx.MergeNode(graph.LexiconLabel, winnerID, map[string]any{
			"canonical_term":        "aqueduct",
			"canonical_description": "Water channel",
			"surface_forms":         []string{"aqueduct"},
		}); err != nil {
			return err
		}
		return tx.MergeNode(graph.LexiconLabel, loserID, map[string]any{
			"canonical_term":        "Aqueduct",
			"canonical_description": "Water channel",
			"surface_forms":         []string{"aqueducts", "aqueduct"},
		})
	})
	require.NoError(t, err)

	result, err := graph.Deduplicate(ctx, sess, 100, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, result[graph.LexiconLabel])

	err = sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		winner, err := tx.GetNode(graph.LexiconLabel, winnerID)
		require.NoError(t, err)
		require.NotNil(t, winner)
		assert.ElementsMatch(t, []string{"aqueduct", "aqueducts"}, winner.Props["surface_forms"])
		assert.Equal(t, "Water channel", winner.Props["canonical_description"])
		return nil
	})
	require.NoError(t, err)
}
