// Package graph implements the spec.md §4.5 Property Graph (C7): 64-bit
// arena-indexed nodes and edges with type tags, property maps, and
// incoming/outgoing adjacency keyed by edge type. New package — the
// teacher carries no graph component — grounded on
// katalvlaran-lvlath/core's Graph/Vertex/Edge shape (map-of-maps
// adjacency, functional GraphOptions, split mutation/query/clone files)
// and its bfs/dfs/dijkstra traversal packages, adapted from
// string-keyed, in-memory-only vertices to arena-indexed ids with
// event-emitting mutations and striped per-node locking (spec.md §5
// "Shared resources": "the property graph uses striped locks keyed by
// node id").
package graph

import "time"

// NodeID and EdgeID are the arena-allocated identifiers from spec.md §3's
// Property Graph: "Nodes identified by 64-bit ids."
type NodeID uint64
type EdgeID uint64

// OverflowPolicy governs what happens when a node's adjacency for one
// edge type would exceed max_edges_per_node, per spec.md §4.5.
type OverflowPolicy int

const (
	OverflowReject OverflowPolicy = iota
	OverflowEvictLRU
	OverflowPromote
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowEvictLRU:
		return "evict_lru"
	case OverflowPromote:
		return "promote"
	default:
		return "unknown"
	}
}

// Node is a property-graph vertex. Tombstoned nodes (Deleted true) are
// retained until no edge references them, per spec.md §4.5's NodeDelete
// contract.
type Node struct {
	ID         NodeID
	Type       string
	Properties map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Deleted    bool

	// out/in are edge-type -> ordered edge ids, each entry's insertion
	// order doubling as its recency for OverflowEvictLRU.
	out map[string][]EdgeID
	in  map[string][]EdgeID
}

func newNode(id NodeID, typ string, props map[string]interface{}) *Node {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Node{
		ID:         id,
		Type:       typ,
		Properties: props,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		out:        make(map[string][]EdgeID),
		in:         make(map[string][]EdgeID),
	}
}

// OutEdges returns a copy of the outgoing edge ids of the given type.
func (n *Node) OutEdges(edgeType string) []EdgeID {
	return append([]EdgeID(nil), n.out[edgeType]...)
}

// InEdges returns a copy of the incoming edge ids of the given type.
func (n *Node) InEdges(edgeType string) []EdgeID {
	return append([]EdgeID(nil), n.in[edgeType]...)
}

// Edge is a directed, typed, weighted property-graph edge. Invariant from
// spec.md §3: "edge endpoints reference live nodes; edges reference their
// inverse via symmetric adjacency entries" — enforced by Graph.EdgeCreate.
type Edge struct {
	ID         EdgeID
	Type       string
	From       NodeID
	To         NodeID
	Weight     float64
	Properties map[string]interface{}
	CreatedAt  time.Time
}
