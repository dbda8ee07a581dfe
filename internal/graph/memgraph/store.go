// Package memgraph provides an in-memory graph.Store. It backs tests and
// deployments without a graph database configured.
package memgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/enliterate-io/enliterate/internal/graph"
)

type nodeKey struct {
	label string
	id    string
}

type edgeKey struct {
	src      nodeKey
	edgeType string
	dst      nodeKey
}

type constraintKey struct {
	label    string
	property string
}

type database struct {
	nodes       map[nodeKey]map[string]any
	edges       map[edgeKey]map[string]any
	unique      map[constraintKey]struct{}
	existence   map[constraintKey]struct{}
	indexes     map[constraintKey]struct{}
	vectorIdx   map[string]vectorIndex
	createdAt   time.Time
	lastWriteAt time.Time
}

type vectorIndex struct {
	label      string
	property   string
	dimensions int
}

func newDatabase() *database {
	return &database{
		nodes:     make(map[nodeKey]map[string]any),
		edges:     make(map[edgeKey]map[string]any),
		unique:    make(map[constraintKey]struct{}),
		existence: make(map[constraintKey]struct{}),
		indexes:   make(map[constraintKey]struct{}),
		vectorIdx: make(map[string]vectorIndex),
		createdAt: time.Now(),
	}
}

// Store is a mutex-guarded in-memory graph store.
type Store struct {
	mu        sync.RWMutex
	databases map[string]*database
}

// New creates an empty store. The default database, named by the empty
// string, always exists, matching servers without multi-database support.
func New() *Store {
	return &Store{databases: map[string]*database{"": newDatabase()}}
}

func (s *Store) EnsureDatabase(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[name]; !ok {
		s.databases[name] = newDatabase()
	}
	return nil
}

// WaitOnline succeeds immediately once the database exists.
func (s *Store) WaitOnline(_ context.Context, name string, _ time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.databases[name]; !ok {
		return fmt.Errorf("database %q does not exist", name)
	}
	return nil
}

func (s *Store) DropDatabase(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.databases, name)
	return nil
}

func (s *Store) Session(name string) graph.Session {
	return &session{store: s, database: name}
}

func (s *Store) Close(context.Context) error {
	return nil
}

func (s *Store) get(name string) (*database, error) {
	db, ok := s.databases[name]
	if !ok {
		return nil, fmt.Errorf("database %q does not exist", name)
	}
	return db, nil
}

type session struct {
	store    *Store
	database string
}

func (s *session) ExecuteSchema(_ context.Context, fn func(graph.SchemaTx) error) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	db, err := s.store.get(s.database)
	if err != nil {
		return err
	}
	return fn(&schemaTx{db: db})
}

func (s *session) ExecuteWrite(_ context.Context, fn func(graph.DataTx) error) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	db, err := s.store.get(s.database)
	if err != nil {
		return err
	}
	db.lastWriteAt = time.Now()
	return fn(&dataTx{readTx: readTx{db: db}, db: db})
}

func (s *session) ExecuteRead(_ context.Context, fn func(graph.ReadTx) error) error {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	db, err := s.store.get(s.database)
	if err != nil {
		return err
	}
	return fn(&readTx{db: db})
}

func (s *session) Close(context.Context) error {
	return nil
}

type schemaTx struct {
	db *database
}

func (t *schemaTx) EnsureUniqueConstraint(label, property string) error {
	t.db.unique[constraintKey{label, property}] = struct{}{}
	return nil
}

func (t *schemaTx) EnsureExistenceConstraint(label, property string) error {
	key := constraintKey{label, property}
	for nk, props := range t.db.nodes {
		if nk.label != label {
			continue
		}
		if _, ok := props[property]; !ok {
			return fmt.Errorf("existence constraint on %s.%s violated by node %s", label, property, nk.id)
		}
	}
	t.db.existence[key] = struct{}{}
	return nil
}

func (t *schemaTx) EnsureIndex(label, property string) error {
	t.db.indexes[constraintKey{label, property}] = struct{}{}
	return nil
}

func (t *schemaTx) EnsureVectorIndex(name, label, property string, dimensions int) error {
	t.db.vectorIdx[name] = vectorIndex{label: label, property: property, dimensions: dimensions}
	return nil
}

type readTx struct {
	db *database
}

func (t *readTx) CountNodes(label string) (int64, error) {
	var count int64
	for nk := range t.db.nodes {
		if nk.label == label {
			count++
		}
	}
	return count, nil
}

func (t *readTx) CountNodesMissing(label, property string) (int64, error) {
	var count int64
	for nk, props := range t.db.nodes {
		if nk.label != label {
			continue
		}
		if _, ok := props[property]; !ok {
			count++
		}
	}
	return count, nil
}

func (t *readTx) NodeExists(label, id string) (bool, error) {
	_, ok := t.db.nodes[nodeKey{label, id}]
	return ok, nil
}

func (t *readTx) GetNode(label, id string) (*graph.Node, error) {
	props, ok := t.db.nodes[nodeKey{label, id}]
	if !ok {
		return nil, nil
	}
	return &graph.Node{Label: label, ID: id, Props: copyProps(props)}, nil
}

func (t *readTx) ListNodes(label string) ([]graph.Node, error) {
	var out []graph.Node
	for nk, props := range t.db.nodes {
		if nk.label != label {
			continue
		}
		out = append(out, graph.Node{Label: nk.label, ID: nk.id, Props: copyProps(props)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *readTx) ListNodeIDsMissing(label, property string) ([]string, error) {
	var out []string
	for nk, props := range t.db.nodes {
		if nk.label != label {
			continue
		}
		if _, ok := props[property]; !ok {
			out = append(out, nk.id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *readTx) ListOrphanIDs(label string, ignoreTypes []string) ([]string, error) {
	ignore := make(map[string]struct{}, len(ignoreTypes))
	for _, et := range ignoreTypes {
		ignore[et] = struct{}{}
	}
	connected := make(map[nodeKey]struct{})
	for ek := range t.db.edges {
		if _, skip := ignore[ek.edgeType]; skip {
			continue
		}
		connected[ek.src] = struct{}{}
		connected[ek.dst] = struct{}{}
	}
	var out []string
	for nk := range t.db.nodes {
		if nk.label != label {
			continue
		}
		if _, ok := connected[nk]; !ok {
			out = append(out, nk.id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *readTx) CountEdges(edgeType string) (int64, error) {
	var count int64
	for ek := range t.db.edges {
		if ek.edgeType == edgeType {
			count++
		}
	}
	return count, nil
}

func (t *readTx) ListEdgesFrom(ref graph.NodeRef) ([]graph.Edge, error) {
	src := nodeKey{ref.Label, ref.ID}
	var out []graph.Edge
	for ek, props := range t.db.edges {
		if ek.src != src {
			continue
		}
		out = append(out, graph.Edge{
			Type:   ek.edgeType,
			Source: graph.NodeRef{Label: ek.src.label, ID: ek.src.id},
			Target: graph.NodeRef{Label: ek.dst.label, ID: ek.dst.id},
			Props:  copyProps(props),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Target.ID < out[j].Target.ID
	})
	return out, nil
}

func (t *readTx) EdgeTypes() ([]string, error) {
	seen := make(map[string]struct{})
	for ek := range t.db.edges {
		seen[ek.edgeType] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for et := range seen {
		out = append(out, et)
	}
	sort.Strings(out)
	return out, nil
}

func (t *readTx) HasEdge(src graph.NodeRef, edgeType string) (bool, error) {
	key := nodeKey{src.Label, src.ID}
	for ek := range t.db.edges {
		if ek.src == key && ek.edgeType == edgeType {
			return true, nil
		}
	}
	return false, nil
}

type dataTx struct {
	readTx
	db *database
}

func (t *dataTx) MergeNode(label, id string, props map[string]any) error {
	if id == "" {
		return fmt.Errorf("merging %s node: empty id", label)
	}
	for ck := range t.db.existence {
		if ck.label != label {
			continue
		}
		if _, ok := props[ck.property]; !ok {
			if existing, present := t.db.nodes[nodeKey{label, id}]; !present || existing[ck.property] == nil {
				return fmt.Errorf("existence constraint on %s.%s violated by node %s", label, ck.property, id)
			}
		}
	}
	key := nodeKey{label, id}
	existing, ok := t.db.nodes[key]
	if !ok {
		existing = map[string]any{"id": id}
		t.db.nodes[key] = existing
	}
	for k, v := range props {
		if k == "id" {
			continue
		}
		existing[k] = v
	}
	return nil
}

func (t *dataTx) MergeEdge(src graph.NodeRef, edgeType string, dst graph.NodeRef, props map[string]any) error {
	srcKey := nodeKey{src.Label, src.ID}
	dstKey := nodeKey{dst.Label, dst.ID}
	if _, ok := t.db.nodes[srcKey]; !ok {
		return fmt.Errorf("merging %s edge: source %s/%s does not exist", edgeType, src.Label, src.ID)
	}
	if _, ok := t.db.nodes[dstKey]; !ok {
		return fmt.Errorf("merging %s edge: target %s/%s does not exist", edgeType, dst.Label, dst.ID)
	}
	key := edgeKey{src: srcKey, edgeType: edgeType, dst: dstKey}
	existing, ok := t.db.edges[key]
	if !ok {
		existing = make(map[string]any)
		t.db.edges[key] = existing
	}
	for k, v := range props {
		existing[k] = v
	}
	return nil
}

func (t *dataTx) SetProperties(label, id string, props map[string]any) error {
	key := nodeKey{label, id}
	existing, ok := t.db.nodes[key]
	if !ok {
		return fmt.Errorf("setting properties: node %s/%s does not exist", label, id)
	}
	for k, v := range props {
		if k == "id" {
			continue
		}
		existing[k] = v
	}
	return nil
}

func (t *dataTx) RedirectEdges(label, fromID, toID string) error {
	from := nodeKey{label, fromID}
	to := nodeKey{label, toID}
	if _, ok := t.db.nodes[to]; !ok {
		return fmt.Errorf("redirecting edges: node %s/%s does not exist", label, toID)
	}
	for ek, props := range t.db.edges {
		if ek.src != from && ek.dst != from {
			continue
		}
		next := ek
		if next.src == from {
			next.src = to
		}
		if next.dst == from {
			next.dst = to
		}
		delete(t.db.edges, ek)
		if next.src == next.dst {
			continue
		}
		if existing, ok := t.db.edges[next]; ok {
			for k, v := range props {
				existing[k] = v
			}
			continue
		}
		t.db.edges[next] = props
	}
	return nil
}

func (t *dataTx) DetachDelete(label, id string) error {
	key := nodeKey{label, id}
	delete(t.db.nodes, key)
	for ek := range t.db.edges {
		if ek.src == key || ek.dst == key {
			delete(t.db.edges, ek)
		}
	}
	return nil
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
