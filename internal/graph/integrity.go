package graph

import (
	"context"
	"fmt"

	"github.com/enliterate-io/enliterate/internal/models"
)

// IntegrityReport is the outcome of post-assembly verification. Errors fail
// the assembly stage; warnings are recorded in the stage metrics only.
type IntegrityReport struct {
	Errors     []string         `json:"errors,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	NodeCounts map[string]int64 `json:"node_counts"`
	EdgeCounts map[string]int64 `json:"edge_counts"`
}

// OK reports whether the graph passed every hard check.
func (r *IntegrityReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *IntegrityReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *IntegrityReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// VerifyIntegrity checks the assembled graph: required properties present,
// every content node tied to a rights node, all edge types inside the
// glossary, and no lingering orphans among the connected pools.
func VerifyIntegrity(ctx context.Context, sess Session, glossary *Glossary) (*IntegrityReport, error) {
	report := &IntegrityReport{
		NodeCounts: make(map[string]int64),
		EdgeCounts: make(map[string]int64),
	}
	err := sess.ExecuteRead(ctx, func(tx ReadTx) error {
		for _, label := range AllNodeLabels() {
			count, err := tx.CountNodes(label)
			if err != nil {
				return err
			}
			report.NodeCounts[label] = count
		}

		for _, pool := range models.ContentPools {
			label := string(pool)
			for _, property := range []string{"rights_id", "repr_text"} {
				missing, err := tx.CountNodesMissing(label, property)
				if err != nil {
					return err
				}
				if missing > 0 {
					report.errorf("%d %s nodes missing %s", missing, label, property)
				}
			}
			nodes, err := tx.ListNodes(label)
			if err != nil {
				return err
			}
			var unlinked int64
			for _, node := range nodes {
				has, err := tx.HasEdge(NodeRef{Label: label, ID: node.ID}, HasRightsEdge)
				if err != nil {
					return err
				}
				if !has {
					unlinked++
				}
			}
			if unlinked > 0 {
				report.errorf("%d %s nodes lack a %s edge", unlinked, label, HasRightsEdge)
			}
		}

		for _, property := range []string{"publishability", "training_eligibility"} {
			missing, err := tx.CountNodesMissing(RightsLabel, property)
			if err != nil {
				return err
			}
			if missing > 0 {
				report.errorf("%d %s nodes missing %s", missing, RightsLabel, property)
			}
		}
		for _, property := range []string{"canonical_description", "canonical_term"} {
			missing, err := tx.CountNodesMissing(LexiconLabel, property)
			if err != nil {
				return err
			}
			if missing > 0 {
				report.errorf("%d %s nodes missing %s", missing, LexiconLabel, property)
			}
		}

		// Missing time fields degrade gracefully: partial data sets are
		// allowed, so these are warnings only.
		for _, pool := range models.ContentPools {
			property := "valid_time_start"
			if pool == models.PoolExperience {
				property = "observed_at"
			}
			missing, err := tx.CountNodesMissing(string(pool), property)
			if err != nil {
				return err
			}
			if missing > 0 {
				report.warnf("%d %s nodes missing %s", missing, pool, property)
			}
		}

		allowed := make(map[string]struct{})
		for _, edgeType := range glossary.EdgeTypes() {
			allowed[edgeType] = struct{}{}
		}
		edgeTypes, err := tx.EdgeTypes()
		if err != nil {
			return err
		}
		for _, edgeType := range edgeTypes {
			count, err := tx.CountEdges(edgeType)
			if err != nil {
				return err
			}
			report.EdgeCounts[edgeType] = count
			if _, ok := allowed[edgeType]; !ok {
				report.warnf("%d edges of type %s outside the verb glossary", count, edgeType)
			}
		}

		// Directed verbs mirror exactly; symmetric verbs always appear as
		// edge pairs, so their directed count must be even.
		for _, verb := range glossary.Verbs() {
			switch {
			case verb.Symmetric:
				if report.EdgeCounts[verb.EdgeType()]%2 != 0 {
					report.errorf("symmetric verb %s has odd edge count %d",
						verb.Name, report.EdgeCounts[verb.EdgeType()])
				}
			case verb.Reverse != "":
				forward := report.EdgeCounts[verb.EdgeType()]
				reverse := report.EdgeCounts[glossary.ReverseOf(verb.Name)]
				if forward != reverse {
					report.errorf("verb %s has %d forward but %d reverse edges",
						verb.Name, forward, reverse)
				}
			}
		}

		for _, pool := range models.ConnectedPools {
			orphans, err := tx.ListOrphanIDs(string(pool), []string{HasRightsEdge})
			if err != nil {
				return err
			}
			if len(orphans) > 0 {
				report.warnf("%d %s nodes remain disconnected", len(orphans), pool)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verifying graph integrity: %w", err)
	}
	return report, nil
}
