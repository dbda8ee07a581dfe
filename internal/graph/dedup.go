package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/enliterate-io/enliterate/internal/models"
)

// DedupResult maps labels to the number of duplicate nodes removed.
type DedupResult map[string]int

// Total returns the number of nodes removed across labels.
func (r DedupResult) Total() int {
	var total int
	for _, n := range r {
		total += n
	}
	return total
}

// dedupKeyFuncs defines, per label, how a node's duplicate key is derived
// from its properties. Labels without an entry are never deduplicated.
var dedupKeyFuncs = map[string]func(props map[string]any) string{
	string(models.PoolIdea): func(props map[string]any) string {
		return foldKey(stringProp(props, "label"))
	},
	string(models.PoolManifest): func(props map[string]any) string {
		return foldKey(stringProp(props, "label")) + "\x00" + foldKey(stringProp(props, "type"))
	},
	string(models.PoolExperience): func(props map[string]any) string {
		// First 100 characters, not bytes: a byte slice could split a rune
		// and over-merge narratives that only diverge later.
		narrative := []rune(stringProp(props, "narrative_text"))
		if len(narrative) > 100 {
			narrative = narrative[:100]
		}
		return foldKey(stringProp(props, "agent_label")) + "\x00" +
			fmt.Sprint(props["observed_at"]) + "\x00" + foldKey(string(narrative))
	},
	string(models.PoolSpatial): func(props map[string]any) string {
		return foldKey(stringProp(props, "name")) + "\x00" + fmt.Sprint(props["year"])
	},
	LexiconLabel: func(props map[string]any) string {
		return foldKey(stringProp(props, "canonical_term"))
	},
}

// Deduplicate collapses duplicate nodes label by label. Within a duplicate
// group the node with the smallest id wins; ids are ULIDs, so the winner is
// also the oldest. Loser edges are redirected onto the winner before the
// loser is removed, and the winner's own properties are never overwritten.
// Lexicon winners absorb the loser's surface forms as a set union.
func Deduplicate(ctx context.Context, sess Session, batchSize int, logger *slog.Logger) (DedupResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	result := make(DedupResult)
	for _, label := range AllNodeLabels() {
		keyFunc, ok := dedupKeyFuncs[label]
		if !ok {
			continue
		}
		removed, err := deduplicateLabel(ctx, sess, label, keyFunc, batchSize, logger)
		if err != nil {
			return result, fmt.Errorf("deduplicating %s nodes: %w", label, err)
		}
		if removed > 0 {
			result[label] = removed
		}
	}
	return result, nil
}

type dedupGroup struct {
	winner Node
	losers []Node
}

func deduplicateLabel(ctx context.Context, sess Session, label string, keyFunc func(map[string]any) string, batchSize int, logger *slog.Logger) (int, error) {
	var groups []dedupGroup
	err := sess.ExecuteRead(ctx, func(tx ReadTx) error {
		nodes, err := tx.ListNodes(label)
		if err != nil {
			return err
		}
		byKey := make(map[string][]Node)
		for _, node := range nodes {
			key := keyFunc(node.Props)
			if strings.Trim(key, "\x00 ") == "" {
				continue
			}
			byKey[key] = append(byKey[key], node)
		}
		for _, group := range byKey {
			if len(group) < 2 {
				continue
			}
			sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
			groups = append(groups, dedupGroup{winner: group[0], losers: group[1:]})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].winner.ID < groups[j].winner.ID })

	var removed int
	pending := groups
	for len(pending) > 0 {
		chunk := pending
		if len(chunk) > batchSize {
			chunk = chunk[:batchSize]
		}
		pending = pending[len(chunk):]

		err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
			for _, group := range chunk {
				for _, loser := range group.losers {
					if label == LexiconLabel {
						if err := absorbSurfaceForms(tx, group.winner, loser); err != nil {
							return err
						}
					}
					if err := tx.RedirectEdges(label, loser.ID, group.winner.ID); err != nil {
						return err
					}
					if err := tx.DetachDelete(label, loser.ID); err != nil {
						return err
					}
					removed++
				}
				logger.Debug("merged duplicate nodes",
					slog.String("label", label),
					slog.String("winner", group.winner.ID),
					slog.Int("removed", len(group.losers)))
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func absorbSurfaceForms(tx DataTx, winner, loser Node) error {
	merged := models.StringList(stringSliceProp(winner.Props, "surface_forms")).
		Union(models.StringList(stringSliceProp(loser.Props, "surface_forms")))
	props := map[string]any{"surface_forms": []string(merged)}
	if negatives := models.StringList(stringSliceProp(winner.Props, "negative_surface_forms")).
		Union(models.StringList(stringSliceProp(loser.Props, "negative_surface_forms"))); len(negatives) > 0 {
		props["negative_surface_forms"] = []string(negatives)
	}
	return tx.SetProperties(LexiconLabel, winner.ID, props)
}

// foldKey normalizes text for duplicate comparison: NFKC fold, lowercase,
// collapsed whitespace.
func foldKey(s string) string {
	folded := strings.ToLower(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// stringSliceProp tolerates both []string (in-memory store) and []any (Bolt
// deserialization).
func stringSliceProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
