package analytics

import (
	"fmt"
	"sort"

	"github.com/enliterate-io/enliterate/internal/models"
)

// GapKind names one of the six gap categories surfaced to operators.
type GapKind string

const (
	GapOrphanedEntities    GapKind = "orphaned_entities"
	GapMissingCanonicals   GapKind = "missing_canonicals"
	GapAmbiguousRights     GapKind = "ambiguous_rights"
	GapSparseRelationships GapKind = "sparse_relationships"
	GapTemporalGaps        GapKind = "temporal_gaps"
	GapMissingEmbeddings   GapKind = "missing_embeddings"
)

// Fixed priority weights per gap kind. Missing embeddings shares the
// temporal weight; it is the most mechanical gap to close.
var gapWeights = map[GapKind]float64{
	GapOrphanedEntities:    0.30,
	GapMissingCanonicals:   0.25,
	GapAmbiguousRights:     0.20,
	GapSparseRelationships: 0.15,
	GapTemporalGaps:        0.10,
	GapMissingEmbeddings:   0.10,
}

// Severity grades how bad a gap is relative to its population.
type Severity string

const (
	SeverityMinimal  Severity = "minimal"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityValues = map[Severity]float64{
	SeverityMinimal:  0,
	SeverityLow:      0.25,
	SeverityMedium:   0.5,
	SeverityHigh:     0.75,
	SeverityCritical: 1,
}

func severityOf(share float64) Severity {
	switch {
	case share <= 0:
		return SeverityMinimal
	case share < 0.05:
		return SeverityLow
	case share < 0.15:
		return SeverityMedium
	case share < 0.35:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Gap is one scored finding.
type Gap struct {
	Kind     GapKind  `json:"kind"`
	Count    int      `json:"count"`
	Share    float64  `json:"share"`
	Severity Severity `json:"severity"`
	Weight   float64  `json:"weight"`
	Priority float64  `json:"priority"`
	Detail   string   `json:"detail"`
}

// AnalyzeGaps scores all six gap kinds and returns them ordered by
// descending priority. Priority is the fixed kind weight scaled by
// severity, so a critical low-weight gap can outrank a minimal high-weight
// one.
func AnalyzeGaps(stats *GraphStats, rights []*models.ProvenanceAndRights, lexicon []*models.LexiconEntry) []Gap {
	gaps := []Gap{
		orphanGap(stats),
		canonicalGap(lexicon),
		rightsGap(rights),
		sparseGap(stats),
		temporalGap(stats),
		embeddingGap(stats),
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].Priority > gaps[j].Priority
	})
	return gaps
}

func score(kind GapKind, count, population int, detail string) Gap {
	var share float64
	if population > 0 {
		share = float64(count) / float64(population)
	}
	severity := severityOf(share)
	weight := gapWeights[kind]
	return Gap{
		Kind:     kind,
		Count:    count,
		Share:    share,
		Severity: severity,
		Weight:   weight,
		Priority: weight * severityValues[severity],
		Detail:   detail,
	}
}

func orphanGap(stats *GraphStats) Gap {
	connected := stats.nodesOf(models.ConnectedPools...)
	var orphans int
	for _, key := range connected {
		if stats.degree(key) == 0 {
			orphans++
		}
	}
	return score(GapOrphanedEntities, orphans, len(connected),
		fmt.Sprintf("%d of %d connected-pool nodes have no relationships", orphans, len(connected)))
}

func canonicalGap(lexicon []*models.LexiconEntry) Gap {
	var missing int
	for _, entry := range lexicon {
		if entry.CanonicalDescription == "" && entry.Definition == "" {
			missing++
		}
	}
	return score(GapMissingCanonicals, missing, len(lexicon),
		fmt.Sprintf("%d of %d lexicon terms lack a description", missing, len(lexicon)))
}

func rightsGap(rights []*models.ProvenanceAndRights) Gap {
	var ambiguous int
	for _, record := range rights {
		if record.Ambiguous() {
			ambiguous++
		}
	}
	return score(GapAmbiguousRights, ambiguous, len(rights),
		fmt.Sprintf("%d of %d rights records are low confidence or unknown license", ambiguous, len(rights)))
}

func sparseGap(stats *GraphStats) Gap {
	connected := stats.nodesOf(models.ConnectedPools...)
	var sparse int
	for _, key := range connected {
		if stats.degree(key) == 1 {
			sparse++
		}
	}
	return score(GapSparseRelationships, sparse, len(connected),
		fmt.Sprintf("%d of %d connected-pool nodes have exactly one relationship", sparse, len(connected)))
}

// temporalGap counts years between the earliest and latest Manifest year
// that no Manifest covers.
func temporalGap(stats *GraphStats) Gap {
	years := make(map[int]struct{})
	minYear, maxYear := 0, 0
	for _, key := range stats.nodesOf(models.PoolManifest) {
		info := stats.nodes[key]
		if info.year == nil {
			continue
		}
		y := *info.year
		years[y] = struct{}{}
		if minYear == 0 || y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}
	if len(years) < 2 {
		return score(GapTemporalGaps, 0, 0, "insufficient dated manifests for a timeline")
	}
	span := maxYear - minYear + 1
	missing := span - len(years)
	return score(GapTemporalGaps, missing, span,
		fmt.Sprintf("%d of %d years between %d and %d have no manifest", missing, span, minYear, maxYear))
}

func embeddingGap(stats *GraphStats) Gap {
	content := stats.nodesOf(models.ContentPools...)
	var missing int
	for _, key := range content {
		if !stats.nodes[key].hasEmbedding {
			missing++
		}
	}
	return score(GapMissingEmbeddings, missing, len(content),
		fmt.Sprintf("%d of %d content nodes have no embedding", missing, len(content)))
}
