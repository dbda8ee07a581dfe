package analytics

import (
	"math"

	"github.com/enliterate-io/enliterate/internal/models"
)

// pathHops bounds reachability checks between Ideas and their grounding.
const pathHops = 3

// CoverageReport holds the coverage percentages, all in [0,1] except
// AverageDegree and PoolBalanceCV.
type CoverageReport struct {
	// IdeaCoverage is the share of Manifest and Experience nodes with an
	// Idea reachable within pathHops.
	IdeaCoverage float64

	// AverageDegree is the mean non-rights degree over connected pools.
	AverageDegree float64

	// OrphanShare is the share of connected-pool nodes with no non-rights
	// relationships.
	OrphanShare float64

	// PathCompleteness is the share of Idea nodes with a Manifest reachable
	// within pathHops.
	PathCompleteness float64

	// TemporalCoverage is the share of content-pool nodes carrying a
	// valid-time start (observed_at for Experience).
	TemporalCoverage float64

	// SpatialCoverage is the share of Manifest and Experience nodes
	// directly linked to a Spatial node.
	SpatialCoverage float64

	// PoolBalanceCV is the coefficient of variation of node counts across
	// pools. Lower is more balanced.
	PoolBalanceCV float64
}

// ComputeCoverage derives the coverage report from a graph snapshot.
func ComputeCoverage(stats *GraphStats) CoverageReport {
	report := CoverageReport{}

	grounded := stats.nodesOf(models.PoolManifest, models.PoolExperience)
	if len(grounded) > 0 {
		var covered, spatial int
		for _, key := range grounded {
			if stats.withinHops(key, string(models.PoolIdea), pathHops) {
				covered++
			}
			for neighbor := range stats.adj[key] {
				if neighbor.Label == string(models.PoolSpatial) {
					spatial++
					break
				}
			}
		}
		report.IdeaCoverage = float64(covered) / float64(len(grounded))
		report.SpatialCoverage = float64(spatial) / float64(len(grounded))
	}

	connected := stats.nodesOf(models.ConnectedPools...)
	if len(connected) > 0 {
		var degreeSum, orphans int
		for _, key := range connected {
			d := stats.degree(key)
			degreeSum += d
			if d == 0 {
				orphans++
			}
		}
		report.AverageDegree = float64(degreeSum) / float64(len(connected))
		report.OrphanShare = float64(orphans) / float64(len(connected))
	}

	ideas := stats.nodesOf(models.PoolIdea)
	if len(ideas) > 0 {
		var complete int
		for _, key := range ideas {
			if stats.withinHops(key, string(models.PoolManifest), pathHops) {
				complete++
			}
		}
		report.PathCompleteness = float64(complete) / float64(len(ideas))
	}

	content := stats.nodesOf(models.ContentPools...)
	if len(content) > 0 {
		var temporal int
		for _, key := range content {
			if stats.nodes[key].hasTemporal {
				temporal++
			}
		}
		report.TemporalCoverage = float64(temporal) / float64(len(content))
	}

	report.PoolBalanceCV = poolBalanceCV(stats.NodesByLabel)
	return report
}

// poolBalanceCV computes stddev/mean of node counts across the pools that
// have any nodes at all. Empty optional pools do not count against balance.
func poolBalanceCV(nodesByLabel map[string]int) float64 {
	var counts []float64
	for _, pool := range models.AllPools {
		if n := nodesByLabel[string(pool)]; n > 0 {
			counts = append(counts, float64(n))
		}
	}
	if len(counts) < 2 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += c
	}
	mean := sum / float64(len(counts))
	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(counts))
	return math.Sqrt(variance) / mean
}

// Literacy score component weights, summing to 100.
const (
	weightIdeaCoverage     = 25.0
	weightDensity          = 20.0
	weightPathCompleteness = 20.0
	weightTemporal         = 15.0
	weightRightsClarity    = 20.0

	// densityTargetDegree is the average degree at which the density
	// component saturates.
	densityTargetDegree = 3.0
)

// LiteracyScore blends coverage with rights clarity into a 0-100 scalar.
// rightsClarity is the share of unambiguous rights records in [0,1].
func LiteracyScore(coverage CoverageReport, rightsClarity float64) float64 {
	density := math.Min(coverage.AverageDegree/densityTargetDegree, 1)
	score := weightIdeaCoverage*coverage.IdeaCoverage +
		weightDensity*density +
		weightPathCompleteness*coverage.PathCompleteness +
		weightTemporal*coverage.TemporalCoverage +
		weightRightsClarity*clamp01(rightsClarity)
	return math.Min(math.Max(score, 0), 100)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
