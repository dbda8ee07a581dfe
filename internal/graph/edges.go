package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/models"
)

// EdgeLoadResult summarizes one edge loading pass.
type EdgeLoadResult struct {
	Merged      int
	Reversed    int
	RightsEdges int
	Skipped     int
}

// LoadRelationEdges merges the typed edges for a batch. Verbs outside the
// glossary are logged and skipped, never fatal; a later extraction fix plus
// re-run picks them up. Declared reverses are materialized alongside the
// forward edge, and symmetric verbs get the mirror edge with the same type.
func LoadRelationEdges(ctx context.Context, sess Session, glossary *Glossary, relations []*models.Relation, logger *slog.Logger) (EdgeLoadResult, error) {
	var result EdgeLoadResult
	if len(relations) == 0 {
		return result, nil
	}
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		for _, relation := range relations {
			verb, ok := glossary.Lookup(relation.Verb)
			if !ok {
				logger.Warn("skipping edge with unknown verb",
					slog.String("verb", relation.Verb),
					slog.String("relation_id", relation.ID.String()))
				result.Skipped++
				continue
			}
			if !verb.AllowsSource(relation.SourceLabel) || !verb.AllowsTarget(relation.TargetLabel) {
				logger.Warn("skipping edge with disallowed endpoints",
					slog.String("verb", relation.Verb),
					slog.String("source_label", string(relation.SourceLabel)),
					slog.String("target_label", string(relation.TargetLabel)))
				result.Skipped++
				continue
			}

			src := NodeRef{Label: string(relation.SourceLabel), ID: relation.SourceID.String()}
			dst := NodeRef{Label: string(relation.TargetLabel), ID: relation.TargetID.String()}
			props := edgeProperties(relation)

			if err := tx.MergeEdge(src, verb.EdgeType(), dst, props); err != nil {
				return err
			}
			result.Merged++

			switch {
			case verb.Symmetric:
				if err := tx.MergeEdge(dst, verb.EdgeType(), src, props); err != nil {
					return err
				}
				result.Reversed++
			case verb.Reverse != "":
				if err := tx.MergeEdge(dst, glossary.ReverseOf(verb.Name), src, props); err != nil {
					return err
				}
				result.Reversed++
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("loading relation edges: %w", err)
	}
	return result, nil
}

func edgeProperties(relation *models.Relation) map[string]any {
	props := map[string]any{
		"strength":   relation.Strength,
		"rights_id":  relation.RightsID.String(),
		"created_at": relation.ID.Timestamp().UnixMilli(),
	}
	if relation.ValidTimeStart != nil {
		props["valid_time_start"] = relation.ValidTimeStart.UnixMilli()
	}
	if relation.ValidTimeEnd != nil {
		props["valid_time_end"] = relation.ValidTimeEnd.UnixMilli()
	}
	return props
}

// LinkRightsEdges attaches every pool entity to its rights node.
func LinkRightsEdges(ctx context.Context, sess Session, entities []models.PoolEntity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	var linked int
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		for _, entity := range entities {
			if entity.Rights().IsZero() {
				return fmt.Errorf("%s entity %s has no rights reference", entity.Pool(), entity.GetID())
			}
			src := NodeRef{Label: string(entity.Pool()), ID: entity.GetID().String()}
			dst := NodeRef{Label: RightsLabel, ID: entity.Rights().String()}
			if err := tx.MergeEdge(src, HasRightsEdge, dst, nil); err != nil {
				return err
			}
			linked++
		}
		return nil
	})
	if err != nil {
		return linked, fmt.Errorf("linking rights edges: %w", err)
	}
	return linked, nil
}
