package neograph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/enliterate-io/enliterate/internal/graph"
)

type readTx struct {
	ctx context.Context
	tx  neo4j.ManagedTransaction
}

func (t *readTx) single(query string, params map[string]any) (*neo4j.Record, error) {
	result, err := t.tx.Run(t.ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Single(t.ctx)
}

func (t *readTx) collect(query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(t.ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(t.ctx)
}

func (t *readTx) CountNodes(label string) (int64, error) {
	if err := checkIdent("label", label); err != nil {
		return 0, err
	}
	record, err := t.single(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", label), nil)
	if err != nil {
		return 0, fmt.Errorf("counting %s nodes: %w", label, err)
	}
	return record.Values[0].(int64), nil
}

func (t *readTx) CountNodesMissing(label, property string) (int64, error) {
	if err := checkIdent("label", label); err != nil {
		return 0, err
	}
	if err := checkIdent("property", property); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("MATCH (n:%s) WHERE n.%s IS NULL RETURN count(n)", label, property)
	record, err := t.single(query, nil)
	if err != nil {
		return 0, fmt.Errorf("counting %s nodes missing %s: %w", label, property, err)
	}
	return record.Values[0].(int64), nil
}

func (t *readTx) NodeExists(label, id string) (bool, error) {
	if err := checkIdent("label", label); err != nil {
		return false, err
	}
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN count(n) > 0", label)
	record, err := t.single(query, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("checking %s node %s: %w", label, id, err)
	}
	return record.Values[0].(bool), nil
}

func (t *readTx) GetNode(label, id string) (*graph.Node, error) {
	if err := checkIdent("label", label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN properties(n)", label)
	records, err := t.collect(query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("getting %s node %s: %w", label, id, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	props, _ := records[0].Values[0].(map[string]any)
	return &graph.Node{Label: label, ID: id, Props: props}, nil
}

func (t *readTx) ListNodes(label string) ([]graph.Node, error) {
	if err := checkIdent("label", label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("MATCH (n:%s) RETURN n.id, properties(n) ORDER BY n.id", label)
	records, err := t.collect(query, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s nodes: %w", label, err)
	}
	out := make([]graph.Node, 0, len(records))
	for _, record := range records {
		id, _ := record.Values[0].(string)
		props, _ := record.Values[1].(map[string]any)
		out = append(out, graph.Node{Label: label, ID: id, Props: props})
	}
	return out, nil
}

func (t *readTx) ListNodeIDsMissing(label, property string) ([]string, error) {
	if err := checkIdent("label", label); err != nil {
		return nil, err
	}
	if err := checkIdent("property", property); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("MATCH (n:%s) WHERE n.%s IS NULL RETURN n.id ORDER BY n.id", label, property)
	records, err := t.collect(query, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s nodes missing %s: %w", label, property, err)
	}
	return stringColumn(records), nil
}

func (t *readTx) ListOrphanIDs(label string, ignoreTypes []string) ([]string, error) {
	if err := checkIdent("label", label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"MATCH (n:%s) WHERE NOT EXISTS { MATCH (n)-[r]-() WHERE NOT type(r) IN $ignore } "+
			"RETURN n.id ORDER BY n.id", label)
	records, err := t.collect(query, map[string]any{"ignore": ignoreTypes})
	if err != nil {
		return nil, fmt.Errorf("listing orphan %s nodes: %w", label, err)
	}
	return stringColumn(records), nil
}

func (t *readTx) CountEdges(edgeType string) (int64, error) {
	if err := checkIdent("relationship type", edgeType); err != nil {
		return 0, err
	}
	record, err := t.single(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", edgeType), nil)
	if err != nil {
		return 0, fmt.Errorf("counting %s edges: %w", edgeType, err)
	}
	return record.Values[0].(int64), nil
}

func (t *readTx) ListEdgesFrom(ref graph.NodeRef) ([]graph.Edge, error) {
	if err := checkIdent("label", ref.Label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"MATCH (a:%s {id: $id})-[r]->(b) "+
			"RETURN type(r), labels(b)[0], b.id, properties(r) ORDER BY type(r), b.id",
		ref.Label)
	records, err := t.collect(query, map[string]any{"id": ref.ID})
	if err != nil {
		return nil, fmt.Errorf("listing edges from %s/%s: %w", ref.Label, ref.ID, err)
	}
	out := make([]graph.Edge, 0, len(records))
	for _, record := range records {
		edgeType, _ := record.Values[0].(string)
		targetLabel, _ := record.Values[1].(string)
		targetID, _ := record.Values[2].(string)
		props, _ := record.Values[3].(map[string]any)
		out = append(out, graph.Edge{
			Type:   edgeType,
			Source: ref,
			Target: graph.NodeRef{Label: targetLabel, ID: targetID},
			Props:  props,
		})
	}
	return out, nil
}

func (t *readTx) EdgeTypes() ([]string, error) {
	records, err := t.collect("MATCH ()-[r]->() RETURN DISTINCT type(r) ORDER BY type(r)", nil)
	if err != nil {
		return nil, fmt.Errorf("listing edge types: %w", err)
	}
	return stringColumn(records), nil
}

func (t *readTx) HasEdge(src graph.NodeRef, edgeType string) (bool, error) {
	if err := checkIdent("label", src.Label); err != nil {
		return false, err
	}
	if err := checkIdent("relationship type", edgeType); err != nil {
		return false, err
	}
	query := fmt.Sprintf("MATCH (a:%s {id: $id})-[r:%s]->() RETURN count(r) > 0", src.Label, edgeType)
	record, err := t.single(query, map[string]any{"id": src.ID})
	if err != nil {
		return false, fmt.Errorf("checking %s edge from %s/%s: %w", edgeType, src.Label, src.ID, err)
	}
	return record.Values[0].(bool), nil
}

func stringColumn(records []*neo4j.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		if s, ok := record.Values[0].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type dataTx struct {
	readTx
}

func (t *dataTx) run(query string, params map[string]any) (neo4j.ResultSummary, error) {
	result, err := t.tx.Run(t.ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Consume(t.ctx)
}

// MergeNode overlays props onto the node matched by id. The map sent to the
// server never carries an id key, so identity survives every re-run.
func (t *dataTx) MergeNode(label, id string, props map[string]any) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("merging %s node: empty id", label)
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if k == "id" {
			continue
		}
		clean[k] = v
	}
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label)
	if _, err := t.run(query, map[string]any{"id": id, "props": clean}); err != nil {
		return fmt.Errorf("merging %s node %s: %w", label, id, err)
	}
	return nil
}

func (t *dataTx) MergeEdge(src graph.NodeRef, edgeType string, dst graph.NodeRef, props map[string]any) error {
	if err := checkIdent("label", src.Label); err != nil {
		return err
	}
	if err := checkIdent("label", dst.Label); err != nil {
		return err
	}
	if err := checkIdent("relationship type", edgeType); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"MATCH (a:%s {id: $src}), (b:%s {id: $dst}) "+
			"MERGE (a)-[r:%s]->(b) SET r += $props RETURN count(r)",
		src.Label, dst.Label, edgeType)
	record, err := t.single(query, map[string]any{"src": src.ID, "dst": dst.ID, "props": props})
	if err != nil {
		return fmt.Errorf("merging %s edge %s/%s -> %s/%s: %w",
			edgeType, src.Label, src.ID, dst.Label, dst.ID, err)
	}
	if record.Values[0].(int64) == 0 {
		return fmt.Errorf("merging %s edge: endpoint %s/%s or %s/%s does not exist",
			edgeType, src.Label, src.ID, dst.Label, dst.ID)
	}
	return nil
}

func (t *dataTx) SetProperties(label, id string, props map[string]any) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if k == "id" {
			continue
		}
		clean[k] = v
	}
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props RETURN count(n)", label)
	record, err := t.single(query, map[string]any{"id": id, "props": clean})
	if err != nil {
		return fmt.Errorf("setting properties on %s/%s: %w", label, id, err)
	}
	if record.Values[0].(int64) == 0 {
		return fmt.Errorf("setting properties: node %s/%s does not exist", label, id)
	}
	return nil
}

// RedirectEdges re-creates every relationship of fromID on toID then strips
// fromID bare. Relationship types come out of the closed glossary, so the
// per-type literal interpolation stays safe.
func (t *dataTx) RedirectEdges(label, fromID, toID string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	exists, err := t.NodeExists(label, toID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("redirecting edges: node %s/%s does not exist", label, toID)
	}

	outgoing, err := t.collectEndpoints(fmt.Sprintf(
		"MATCH (a:%s {id: $id})-[r]->(b) RETURN type(r), labels(b)[0], b.id, properties(r)", label), fromID)
	if err != nil {
		return fmt.Errorf("redirecting edges from %s/%s: %w", label, fromID, err)
	}
	incoming, err := t.collectEndpoints(fmt.Sprintf(
		"MATCH (a:%s {id: $id})<-[r]-(b) RETURN type(r), labels(b)[0], b.id, properties(r)", label), fromID)
	if err != nil {
		return fmt.Errorf("redirecting edges into %s/%s: %w", label, fromID, err)
	}

	to := graph.NodeRef{Label: label, ID: toID}
	for _, edge := range outgoing {
		if edge.Target.Label == label && edge.Target.ID == fromID {
			continue
		}
		if edge.Target == to {
			continue
		}
		if err := t.MergeEdge(to, edge.Type, edge.Target, edge.Props); err != nil {
			return err
		}
	}
	for _, edge := range incoming {
		if edge.Target == to {
			continue
		}
		if err := t.MergeEdge(edge.Target, edge.Type, to, edge.Props); err != nil {
			return err
		}
	}

	query := fmt.Sprintf("MATCH (a:%s {id: $id})-[r]-() DELETE r", label)
	if _, err := t.run(query, map[string]any{"id": fromID}); err != nil {
		return fmt.Errorf("deleting edges of %s/%s: %w", label, fromID, err)
	}
	return nil
}

// collectEndpoints returns edges with Target set to the far endpoint,
// regardless of direction in the query.
func (t *dataTx) collectEndpoints(query, id string) ([]graph.Edge, error) {
	records, err := t.collect(query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := make([]graph.Edge, 0, len(records))
	for _, record := range records {
		edgeType, _ := record.Values[0].(string)
		farLabel, _ := record.Values[1].(string)
		farID, _ := record.Values[2].(string)
		props, _ := record.Values[3].(map[string]any)
		out = append(out, graph.Edge{
			Type:   edgeType,
			Target: graph.NodeRef{Label: farLabel, ID: farID},
			Props:  props,
		})
	}
	return out, nil
}

func (t *dataTx) DetachDelete(label, id string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label)
	if _, err := t.run(query, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("deleting %s node %s: %w", label, id, err)
	}
	return nil
}
