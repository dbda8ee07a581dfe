package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCoverageOnSmallGraph(t *testing.T) {
	stats := newStats()
	idea := stats.addNode("Idea", "i1", nodeInfo{hasTemporal: true})
	covered := stats.addNode("Manifest", "m1", nodeInfo{hasTemporal: true})
	orphan := stats.addNode("Manifest", "m2", nodeInfo{})
	spatial := stats.addNode("Spatial", "s1", nodeInfo{})
	stats.addEdge(idea, covered)
	stats.addEdge(covered, spatial)
	_ = orphan

	report := ComputeCoverage(stats)

	// One of two grounded nodes reaches an Idea; the same one touches Spatial.
	assert.InDelta(t, 0.5, report.IdeaCoverage, 1e-9)
	assert.InDelta(t, 0.5, report.SpatialCoverage, 1e-9)

	// The single Idea reaches a Manifest.
	assert.InDelta(t, 1.0, report.PathCompleteness, 1e-9)

	// Connected pools here are i1 (degree 1), m1 (degree 2), and m2
	// (degree 0); Spatial does not count.
	assert.InDelta(t, 1.0, report.AverageDegree, 1e-9)
	assert.InDelta(t, 1.0/3.0, report.OrphanShare, 1e-9)

	// Two of three content nodes carry temporal bounds.
	assert.InDelta(t, 2.0/3.0, report.TemporalCoverage, 1e-9)

	assert.Greater(t, report.PoolBalanceCV, 0.0)
}

func TestComputeCoverageEmptyGraph(t *testing.T) {
	report := ComputeCoverage(newStats())
	assert.Zero(t, report.IdeaCoverage)
	assert.Zero(t, report.AverageDegree)
	assert.Zero(t, report.OrphanShare)
	assert.Zero(t, report.PathCompleteness)
	assert.Zero(t, report.TemporalCoverage)
	assert.Zero(t, report.PoolBalanceCV)
}

func TestPoolBalanceCV(t *testing.T) {
	// Perfectly balanced pools have zero variation.
	assert.Zero(t, poolBalanceCV(map[string]int{"Idea": 5, "Manifest": 5, "Actor": 5}))

	// A single populated pool cannot be judged for balance.
	assert.Zero(t, poolBalanceCV(map[string]int{"Idea": 9}))

	skewed := poolBalanceCV(map[string]int{"Idea": 1, "Manifest": 99})
	assert.Greater(t, skewed, 0.9)
}

func TestLiteracyScoreBounds(t *testing.T) {
	full := CoverageReport{
		IdeaCoverage:     1,
		AverageDegree:    densityTargetDegree,
		PathCompleteness: 1,
		TemporalCoverage: 1,
	}
	assert.InDelta(t, 100, LiteracyScore(full, 1), 1e-9)
	assert.InDelta(t, 0, LiteracyScore(CoverageReport{}, 0), 1e-9)
}

func TestLiteracyScoreDensitySaturates(t *testing.T) {
	atTarget := LiteracyScore(CoverageReport{AverageDegree: densityTargetDegree}, 0)
	beyond := LiteracyScore(CoverageReport{AverageDegree: densityTargetDegree * 10}, 0)
	assert.InDelta(t, weightDensity, atTarget, 1e-9)
	assert.Equal(t, atTarget, beyond)
}

func TestLiteracyScoreClampsRightsClarity(t *testing.T) {
	assert.InDelta(t, weightRightsClarity, LiteracyScore(CoverageReport{}, 7), 1e-9)
	assert.InDelta(t, 0, LiteracyScore(CoverageReport{}, -2), 1e-9)
}
