package graph_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/graph/memgraph"
)

func mergeExperience(t *testing.T, sess graph.Session, id, agent, narrative string, observed time.Time) {
	t.Helper()
	err := sess.ExecuteWrite(context.Background(), func(tx graph.DataTx) error {
		return tx.MergeNode("Experience", id, map[string]any{
			"agent_label":    agent,
			"observed_at":    observed.UnixMilli(),
			"narrative_text": narrative,
		})
	})
	require.NoError(t, err)
}

// The duplicate key truncates narratives at 100 characters. Multibyte
// narratives that agree for the first 100 bytes but diverge within the first
// 100 characters are distinct experiences and must both survive.
func TestDeduplicateExperienceKeyCountsCharacters(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	require.NoError(t, store.EnsureDatabase(ctx, "ekn-6"))
	sess := store.Session("ekn-6")
	defer sess.Close(ctx)

	// 60 two-byte runes: identical for well past 100 bytes, divergent well
	// before 100 characters.
	prefix := strings.Repeat("ä", 60)
	observed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := time.Now()

	mergeExperience(t, sess, ulidAt(t, now.Add(-2*time.Hour)).String(),
		"kapitän", prefix+" erste fahrt", observed)
	mergeExperience(t, sess, ulidAt(t, now.Add(-time.Hour)).String(),
		"kapitän", prefix+" zweite fahrt", observed)

	result, err := graph.Deduplicate(ctx, sess, 100, testLogger())
	require.NoError(t, err)
	assert.Zero(t, result.Total())

	require.NoError(t, sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		count, err := tx.CountNodes("Experience")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		return nil
	}))
}

func TestDeduplicateExperienceMergesIdenticalNarratives(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	require.NoError(t, store.EnsureDatabase(ctx, "ekn-7"))
	sess := store.Session("ekn-7")
	defer sess.Close(ctx)

	narrative := strings.Repeat("ä", 120)
	observed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := time.Now()
	winnerID := ulidAt(t, now.Add(-2*time.Hour)).String()
	loserID := ulidAt(t, now.Add(-time.Hour)).String()

	mergeExperience(t, sess, winnerID, "kapitän", narrative, observed)
	mergeExperience(t, sess, loserID, "kapitän", narrative, observed)

	result, err := graph.Deduplicate(ctx, sess, 100, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total())

	require.NoError(t, sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		winner, err := tx.NodeExists("Experience", winnerID)
		require.NoError(t, err)
		assert.True(t, winner, "the older node wins")

		loser, err := tx.NodeExists("Experience", loserID)
		require.NoError(t, err)
		assert.False(t, loser)
		return nil
	}))
}
