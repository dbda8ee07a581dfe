package graph

import (
	"context"
	"fmt"

	"github.com/enliterate-io/enliterate/internal/models"
)

// NodeLoadResult summarizes one node loading pass.
type NodeLoadResult struct {
	RightsNodes  int
	LexiconNodes int
	PoolNodes    map[models.PoolLabel]int
}

// Total returns the number of nodes merged.
func (r NodeLoadResult) Total() int {
	total := r.RightsNodes + r.LexiconNodes
	for _, n := range r.PoolNodes {
		total += n
	}
	return total
}

// LoadRightsNodes merges one node per rights record. Rights nodes go in
// first so HAS_RIGHTS edges always find their target.
func LoadRightsNodes(ctx context.Context, sess Session, rights []*models.ProvenanceAndRights) (int, error) {
	if len(rights) == 0 {
		return 0, nil
	}
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		for _, record := range rights {
			props := map[string]any{
				"batch_id":             record.BatchID.String(),
				"license_type":         string(record.LicenseType),
				"consent_status":       string(record.ConsentStatus),
				"publishability":       record.Publishability,
				"training_eligibility": record.TrainingEligibility,
				"confidence":           record.Confidence,
				"valid_time_start":     record.ValidTimeStart.UnixMilli(),
				"created_at":           record.ID.Timestamp().UnixMilli(),
			}
			if record.ValidTimeEnd != nil {
				props["valid_time_end"] = record.ValidTimeEnd.UnixMilli()
			}
			if record.Method != "" {
				props["method"] = record.Method
			}
			if record.SourceType != "" {
				props["source_type"] = record.SourceType
			}
			if err := tx.MergeNode(RightsLabel, record.ID.String(), props); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("loading rights nodes: %w", err)
	}
	return len(rights), nil
}

// LoadLexiconNodes merges one node per lexicon entry. A missing description
// gets the extracted-term placeholder so the existence constraint holds.
func LoadLexiconNodes(ctx context.Context, sess Session, entries []*models.LexiconEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		for _, entry := range entries {
			props := map[string]any{
				"batch_id":              entry.BatchID.String(),
				"canonical_term":        entry.CanonicalTerm,
				"canonical_description": entry.DescriptionOrDefault(),
				"surface_forms":         []string(entry.SurfaceForms),
				"valid_time_start":      entry.ValidTimeStart.UnixMilli(),
				"created_at":            entry.ID.Timestamp().UnixMilli(),
			}
			if len(entry.NegativeSurfaceForms) > 0 {
				props["negative_surface_forms"] = []string(entry.NegativeSurfaceForms)
			}
			if entry.Pool != "" {
				props["pool"] = entry.Pool
			}
			if entry.TermType != "" {
				props["term_type"] = entry.TermType
			}
			if entry.ValidTimeEnd != nil {
				props["valid_time_end"] = entry.ValidTimeEnd.UnixMilli()
			}
			if err := tx.MergeNode(LexiconLabel, entry.ID.String(), props); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("loading lexicon nodes: %w", err)
	}
	return len(entries), nil
}

// LoadPoolNodes merges one node per pool entity. Properties pass through the
// sanitizer; MERGE on id keeps re-runs idempotent.
func LoadPoolNodes(ctx context.Context, sess Session, entities []models.PoolEntity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
		for _, entity := range entities {
			props, err := SanitizeProperties(entity.GraphProperties())
			if err != nil {
				return fmt.Errorf("%s entity %s: %w", entity.Pool(), entity.GetID(), err)
			}
			props["batch_id"] = entity.Batch().String()
			props["created_at"] = entity.GetID().Timestamp().UnixMilli()
			if err := tx.MergeNode(string(entity.Pool()), entity.GetID().String(), props); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("loading pool nodes: %w", err)
	}
	return len(entities), nil
}
