// Package graph defines the semantic operations the knowledge graph needs
// and the assembly phases that populate it. Implementations live in the
// neograph (Neo4j) and memgraph (in-memory) subpackages.
package graph

import (
	"context"
	"time"
)

// RightsLabel is the node label for provenance and rights records.
const RightsLabel = "ProvenanceAndRights"

// LexiconLabel is the node label for lexicon entries.
const LexiconLabel = "Lexicon"

// HasRightsEdge is the relationship type linking content nodes to rights.
const HasRightsEdge = "HAS_RIGHTS"

// NodeRef identifies a node by label and id.
type NodeRef struct {
	Label string
	ID    string
}

// Node is a labeled node with its property map.
type Node struct {
	Label string
	ID    string
	Props map[string]any
}

// Edge is a typed relationship between two nodes.
type Edge struct {
	Type   string
	Source NodeRef
	Target NodeRef
	Props  map[string]any
}

// Store provisions per-batch databases and opens sessions against them.
type Store interface {
	// EnsureDatabase creates the named database if it does not exist.
	// Implementations without multi-database support treat this as a no-op.
	EnsureDatabase(ctx context.Context, name string) error

	// WaitOnline blocks until the named database accepts queries or the
	// timeout elapses.
	WaitOnline(ctx context.Context, name string, timeout time.Duration) error

	// DropDatabase removes the named database and its contents.
	DropDatabase(ctx context.Context, name string) error

	// Session opens a session bound to the named database.
	Session(name string) Session

	Close(ctx context.Context) error
}

// Session executes transactions against one database. Schema and data
// operations never share a transaction.
type Session interface {
	ExecuteSchema(ctx context.Context, fn func(SchemaTx) error) error
	ExecuteWrite(ctx context.Context, fn func(DataTx) error) error
	ExecuteRead(ctx context.Context, fn func(ReadTx) error) error
	Close(ctx context.Context) error
}

// SchemaTx applies idempotent schema operations.
type SchemaTx interface {
	EnsureUniqueConstraint(label, property string) error
	EnsureExistenceConstraint(label, property string) error
	EnsureIndex(label, property string) error
	EnsureVectorIndex(name, label, property string, dimensions int) error
}

// ReadTx runs read-only queries.
type ReadTx interface {
	CountNodes(label string) (int64, error)
	CountNodesMissing(label, property string) (int64, error)
	NodeExists(label, id string) (bool, error)
	GetNode(label, id string) (*Node, error)
	ListNodes(label string) ([]Node, error)
	ListNodeIDsMissing(label, property string) ([]string, error)

	// ListOrphanIDs returns ids of nodes under label whose only
	// relationships, if any, have a type in ignoreTypes.
	ListOrphanIDs(label string, ignoreTypes []string) ([]string, error)

	CountEdges(edgeType string) (int64, error)
	ListEdgesFrom(ref NodeRef) ([]Edge, error)
	EdgeTypes() ([]string, error)

	// HasEdge reports whether src has at least one outgoing edge of the
	// given type.
	HasEdge(src NodeRef, edgeType string) (bool, error)
}

// DataTx runs data mutations. It embeds ReadTx so read-modify-write phases
// such as dedup stay in one transaction.
type DataTx interface {
	ReadTx

	// MergeNode creates the node if absent and overlays props onto it.
	// The id property itself is never overwritten.
	MergeNode(label, id string, props map[string]any) error

	// MergeEdge creates the relationship if absent and overlays props.
	MergeEdge(src NodeRef, edgeType string, dst NodeRef, props map[string]any) error

	SetProperties(label, id string, props map[string]any) error

	// RedirectEdges moves every relationship touching fromID onto toID,
	// preserving direction and type. Self-loops produced by the move are
	// dropped.
	RedirectEdges(label, fromID, toID string) error

	DetachDelete(label, id string) error
}
