package graph

import (
	"context"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/models"
)

// EnsureSchema applies the graph schema: unique id constraints on every
// label, existence constraints on rights and repr text for content pools,
// authority flags on rights nodes, canonical descriptions on lexicon nodes,
// and batch lookup indexes. All statements are idempotent.
//
// The canonical_description constraint needs a backfill first: a re-run
// against an already populated database may hold lexicon nodes written
// before the constraint existed. The backfill runs in a data transaction,
// then the constraint lands in its own schema transaction.
func EnsureSchema(ctx context.Context, sess Session, logger *slog.Logger) error {
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		ids, err := tx.ListNodeIDsMissing(LexiconLabel, "canonical_description")
		if err != nil {
			return err
		}
		for _, id := range ids {
			err := tx.SetProperties(LexiconLabel, id, map[string]any{
				"canonical_description": models.LexiconDefaultDescription,
			})
			if err != nil {
				return err
			}
		}
		if len(ids) > 0 {
			logger.Warn("backfilled lexicon descriptions", slog.Int("count", len(ids)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return sess.ExecuteSchema(ctx, func(tx SchemaTx) error {
		for _, label := range AllNodeLabels() {
			if err := tx.EnsureUniqueConstraint(label, "id"); err != nil {
				return err
			}
		}
		for _, pool := range models.ContentPools {
			if err := tx.EnsureExistenceConstraint(string(pool), "rights_id"); err != nil {
				return err
			}
			if err := tx.EnsureExistenceConstraint(string(pool), "repr_text"); err != nil {
				return err
			}
		}
		if err := tx.EnsureExistenceConstraint(RightsLabel, "publishability"); err != nil {
			return err
		}
		if err := tx.EnsureExistenceConstraint(RightsLabel, "training_eligibility"); err != nil {
			return err
		}
		if err := tx.EnsureExistenceConstraint(LexiconLabel, "canonical_description"); err != nil {
			return err
		}
		for _, pool := range models.AllPools {
			if err := tx.EnsureIndex(string(pool), "batch_id"); err != nil {
				return err
			}
		}
		if err := tx.EnsureIndex(LexiconLabel, "canonical_term"); err != nil {
			return err
		}
		return tx.EnsureIndex(RightsLabel, "batch_id")
	})
}

// AllNodeLabels returns every label the assembler writes.
func AllNodeLabels() []string {
	labels := make([]string, 0, len(models.AllPools)+2)
	for _, pool := range models.AllPools {
		labels = append(labels, string(pool))
	}
	return append(labels, LexiconLabel, RightsLabel)
}
