// Package analytics computes maturity, coverage, and gap reports over an
// assembled batch graph. The math is pure; GraphStats is the one piece that
// talks to the graph store, snapshotting what the calculations need.
package analytics

import (
	"context"

	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
)

type nodeKey struct {
	Label string
	ID    string
}

type nodeInfo struct {
	hasTemporal  bool
	hasEmbedding bool
	year         *int
}

// GraphStats is a read snapshot of one batch graph: node counts, edge
// counts, and the adjacency needed for degree and hop calculations.
// HAS_RIGHTS edges are excluded from adjacency; rights links say nothing
// about how well content is connected.
type GraphStats struct {
	NodesByLabel map[string]int
	EdgesByType  map[string]int64

	nodes map[nodeKey]nodeInfo
	adj   map[nodeKey]map[nodeKey]struct{}
}

// CollectGraphStats reads every pool node and its relationships in one read
// transaction.
func CollectGraphStats(ctx context.Context, sess graph.Session) (*GraphStats, error) {
	stats := &GraphStats{
		NodesByLabel: make(map[string]int),
		EdgesByType:  make(map[string]int64),
		nodes:        make(map[nodeKey]nodeInfo),
		adj:          make(map[nodeKey]map[nodeKey]struct{}),
	}

	err := sess.ExecuteRead(ctx, func(tx graph.ReadTx) error {
		for _, pool := range models.AllPools {
			label := string(pool)
			nodes, err := tx.ListNodes(label)
			if err != nil {
				return err
			}
			stats.NodesByLabel[label] = len(nodes)
			for _, node := range nodes {
				key := nodeKey{Label: label, ID: node.ID}
				stats.nodes[key] = describeNode(pool, node.Props)
				edges, err := tx.ListEdgesFrom(graph.NodeRef{Label: label, ID: node.ID})
				if err != nil {
					return err
				}
				for _, edge := range edges {
					stats.EdgesByType[edge.Type]++
					if edge.Type == graph.HasRightsEdge {
						continue
					}
					src := nodeKey{Label: edge.Source.Label, ID: edge.Source.ID}
					dst := nodeKey{Label: edge.Target.Label, ID: edge.Target.ID}
					stats.link(src, dst)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func describeNode(pool models.PoolLabel, props map[string]any) nodeInfo {
	info := nodeInfo{}
	temporalProp := "valid_time_start"
	if pool == models.PoolExperience {
		temporalProp = "observed_at"
	}
	if _, ok := props[temporalProp]; ok {
		info.hasTemporal = true
	}
	if _, ok := props["embedding"]; ok {
		info.hasEmbedding = true
	}
	if year, ok := props["year"]; ok {
		switch v := year.(type) {
		case int:
			info.year = &v
		case int64:
			y := int(v)
			info.year = &y
		case float64:
			y := int(v)
			info.year = &y
		}
	}
	return info
}

func (s *GraphStats) link(a, b nodeKey) {
	if a == b {
		return
	}
	if s.adj[a] == nil {
		s.adj[a] = make(map[nodeKey]struct{})
	}
	if s.adj[b] == nil {
		s.adj[b] = make(map[nodeKey]struct{})
	}
	s.adj[a][b] = struct{}{}
	s.adj[b][a] = struct{}{}
}

// TotalNodes returns the pool node count.
func (s *GraphStats) TotalNodes() int {
	var total int
	for _, n := range s.NodesByLabel {
		total += n
	}
	return total
}

// EmbeddingCount returns how many pool nodes carry an embedding property.
func (s *GraphStats) EmbeddingCount() int {
	var total int
	for _, info := range s.nodes {
		if info.hasEmbedding {
			total++
		}
	}
	return total
}

func (s *GraphStats) degree(k nodeKey) int {
	return len(s.adj[k])
}

// withinHops reports whether a node with targetLabel is reachable from
// start within maxHops undirected steps.
func (s *GraphStats) withinHops(start nodeKey, targetLabel string, maxHops int) bool {
	visited := map[nodeKey]struct{}{start: {}}
	frontier := []nodeKey{start}
	for hop := 0; hop < maxHops; hop++ {
		var next []nodeKey
		for _, key := range frontier {
			for neighbor := range s.adj[key] {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				if neighbor.Label == targetLabel {
					return true
				}
				visited[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return false
}

func (s *GraphStats) nodesOf(labels ...models.PoolLabel) []nodeKey {
	var keys []nodeKey
	for key := range s.nodes {
		for _, label := range labels {
			if key.Label == string(label) {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}
