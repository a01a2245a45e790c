package graph

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/lspecian/vexfs-sub008/internal/boundary"
	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
	"github.com/lspecian/vexfs-sub008/internal/obs"
)

const stripeCount = 32

// Config holds the overflow policy from spec.md §4.5.
type Config struct {
	MaxEdgesPerNode int
	Overflow        OverflowPolicy
}

// Graph is the property graph. Node/edge state lives in plain maps
// protected by a fixed set of striped mutexes keyed by node id, per
// spec.md §5's "striped locks keyed by node id" — a global RWMutex would
// serialize every mutation across unrelated nodes.
type Graph struct {
	cfg Config

	stripes [stripeCount]sync.Mutex
	nodesMu sync.RWMutex
	nodes   map[NodeID]*Node
	edgesMu sync.RWMutex
	edges   map[EdgeID]*Edge

	nextNodeID uint64
	nextEdgeID uint64

	emitter *boundary.Emitter
	metrics *obs.Metrics

	quarantinedMu sync.Mutex
	quarantined   map[NodeID]string
}

// New creates an empty Graph. emitter may be nil in tests that do not
// exercise the event path.
func New(cfg Config, emitter *boundary.Emitter, metrics *obs.Metrics) *Graph {
	if cfg.MaxEdgesPerNode <= 0 {
		cfg.MaxEdgesPerNode = 4096
	}
	return &Graph{
		cfg:         cfg,
		nodes:       make(map[NodeID]*Node),
		edges:       make(map[EdgeID]*Edge),
		emitter:     emitter,
		metrics:     metrics,
		quarantined: make(map[NodeID]string),
	}
}

func (g *Graph) stripe(id NodeID) *sync.Mutex {
	return &g.stripes[uint64(id)%stripeCount]
}

func (g *Graph) emit(typ event.Type, ctx event.Context) {
	if g.emitter == nil {
		return
	}
	_ = g.emitter.Emit(&event.Event{Type: typ, Category: typ.Category(), Context: ctx})
}

// NodeCreate allocates a new node, per spec.md §4.5.
func (g *Graph) NodeCreate(typ string, props map[string]interface{}) (*Node, error) {
	id := NodeID(atomic.AddUint64(&g.nextNodeID, 1))
	node := newNode(id, typ, props)

	g.nodesMu.Lock()
	g.nodes[id] = node
	g.nodesMu.Unlock()

	if g.metrics != nil {
		g.metrics.GraphNodeOps.WithLabelValues("create").Inc()
	}
	g.emit(event.TypeGraphNodeCreate, event.GraphContext{NodeID: uint64(id), Op: "create"})
	return node, nil
}

// NodeUpdate merges props into the node's existing property map.
func (g *Graph) NodeUpdate(id NodeID, props map[string]interface{}) error {
	g.nodesMu.RLock()
	node, ok := g.nodes[id]
	g.nodesMu.RUnlock()
	if !ok || node.Deleted {
		return errs.Wrap(errs.ErrNotFound, "graph", "node-update")
	}

	stripe := g.stripe(id)
	stripe.Lock()
	for k, v := range props {
		node.Properties[k] = v
	}
	node.UpdatedAt = time.Now()
	stripe.Unlock()

	if g.metrics != nil {
		g.metrics.GraphNodeOps.WithLabelValues("update").Inc()
	}
	g.emit(event.TypeGraphNodeUpdate, event.GraphContext{NodeID: uint64(id), Op: "update"})
	return nil
}

// NodeDelete tombstones a node; it is only removed from the arena once
// its last referencing edge is gone.
func (g *Graph) NodeDelete(id NodeID) error {
	g.nodesMu.RLock()
	node, ok := g.nodes[id]
	g.nodesMu.RUnlock()
	if !ok {
		return errs.Wrap(errs.ErrNotFound, "graph", "node-delete")
	}

	stripe := g.stripe(id)
	stripe.Lock()
	node.Deleted = true
	g.finalizeIfOrphaned(node)
	stripe.Unlock()

	if g.metrics != nil {
		g.metrics.GraphNodeOps.WithLabelValues("delete").Inc()
	}
	g.emit(event.TypeGraphNodeDelete, event.GraphContext{NodeID: uint64(id), Op: "delete"})
	return nil
}

// Node returns the node for id, or errs.ErrNotFound.
func (g *Graph) Node(id NodeID) (*Node, error) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil, errs.Wrap(errs.ErrNotFound, "graph", "node-get")
	}
	return node, nil
}

// EdgeCreate links from->to with the given type/weight, enforcing the
// live-endpoint and overflow-policy invariants from spec.md §4.5.
func (g *Graph) EdgeCreate(typ string, from, to NodeID, weight float64, props map[string]interface{}) (*Edge, error) {
	g.nodesMu.RLock()
	fromNode, fromOK := g.nodes[from]
	toNode, toOK := g.nodes[to]
	g.nodesMu.RUnlock()
	if !fromOK || !toOK || fromNode.Deleted || toNode.Deleted {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "graph", "edge-create-endpoint")
	}

	id := EdgeID(atomic.AddUint64(&g.nextEdgeID, 1))
	e := &Edge{ID: id, Type: typ, From: from, To: to, Weight: weight, Properties: props, CreatedAt: time.Now()}
	if e.Properties == nil {
		e.Properties = make(map[string]interface{})
	}

	firstStripe, secondStripe := orderedStripes(g.stripe(from), g.stripe(to))
	firstStripe.Lock()
	if firstStripe != secondStripe {
		secondStripe.Lock()
	}

	if err := appendWithOverflow(&fromNode.out, typ, id, g.cfg); err != nil {
		if firstStripe != secondStripe {
			secondStripe.Unlock()
		}
		firstStripe.Unlock()
		return nil, err
	}
	toNode.in[typ] = append(toNode.in[typ], id)

	if firstStripe != secondStripe {
		secondStripe.Unlock()
	}
	firstStripe.Unlock()

	g.edgesMu.Lock()
	g.edges[id] = e
	g.edgesMu.Unlock()

	if g.metrics != nil {
		g.metrics.GraphEdgeOps.WithLabelValues("create").Inc()
	}
	g.emit(event.TypeGraphEdgeCreate, event.GraphContext{EdgeID: uint64(id), NodeID: uint64(from), Op: "create"})
	return e, nil
}

// EdgeDelete removes an edge and, if its endpoints are tombstoned and now
// unreferenced, finalizes their removal from the arena.
func (g *Graph) EdgeDelete(id EdgeID) error {
	g.edgesMu.Lock()
	e, ok := g.edges[id]
	if !ok {
		g.edgesMu.Unlock()
		return errs.Wrap(errs.ErrNotFound, "graph", "edge-delete")
	}
	delete(g.edges, id)
	g.edgesMu.Unlock()

	g.nodesMu.RLock()
	fromNode, fromOK := g.nodes[e.From]
	toNode, toOK := g.nodes[e.To]
	g.nodesMu.RUnlock()

	firstStripe, secondStripe := orderedStripes(g.stripe(e.From), g.stripe(e.To))
	firstStripe.Lock()
	if firstStripe != secondStripe {
		secondStripe.Lock()
	}
	if fromOK {
		fromNode.out[e.Type] = removeID(fromNode.out[e.Type], id)
		g.finalizeIfOrphaned(fromNode)
	}
	if toOK {
		toNode.in[e.Type] = removeID(toNode.in[e.Type], id)
		g.finalizeIfOrphaned(toNode)
	}
	if firstStripe != secondStripe {
		secondStripe.Unlock()
	}
	firstStripe.Unlock()

	if g.metrics != nil {
		g.metrics.GraphEdgeOps.WithLabelValues("delete").Inc()
	}
	g.emit(event.TypeGraphEdgeDelete, event.GraphContext{EdgeID: uint64(id), Op: "delete"})
	return nil
}

// finalizeIfOrphaned drops a tombstoned node once no edge references it.
// Caller must hold n's stripe lock, the same lock that guards n.out/n.in,
// so the emptiness check is consistent with any concurrent EdgeCreate/
// EdgeDelete on n.
func (g *Graph) finalizeIfOrphaned(n *Node) {
	if !n.Deleted {
		return
	}
	for _, ids := range n.out {
		if len(ids) > 0 {
			return
		}
	}
	for _, ids := range n.in {
		if len(ids) > 0 {
			return
		}
	}
	g.nodesMu.Lock()
	delete(g.nodes, n.ID)
	g.nodesMu.Unlock()
}

// Quarantine marks a subgraph rooted at id as unrecoverable, per spec.md
// §4.10's "unrecoverable violations mark the affected subgraph
// quarantined".
func (g *Graph) Quarantine(id NodeID, reason string) {
	g.quarantinedMu.Lock()
	g.quarantined[id] = reason
	g.quarantinedMu.Unlock()
	if g.metrics != nil {
		g.metrics.GraphQuarantined.Set(float64(len(g.quarantined)))
	}
}

// IsQuarantined reports whether id has been quarantined, and why.
func (g *Graph) IsQuarantined(id NodeID) (string, bool) {
	g.quarantinedMu.Lock()
	defer g.quarantinedMu.Unlock()
	reason, ok := g.quarantined[id]
	return reason, ok
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()
	return len(g.edges)
}

func orderedStripes(a, b *sync.Mutex) (*sync.Mutex, *sync.Mutex) {
	if a == b {
		return a, a
	}
	// Lock in a stable address order to avoid deadlocks between
	// concurrent EdgeCreate calls with swapped endpoints.
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		return a, b
	}
	return b, a
}

func appendWithOverflow(list *map[string][]EdgeID, edgeType string, id EdgeID, cfg Config) error {
	current := (*list)[edgeType]
	if len(current) < cfg.MaxEdgesPerNode {
		(*list)[edgeType] = append(current, id)
		return nil
	}
	switch cfg.Overflow {
	case OverflowEvictLRU:
		(*list)[edgeType] = append(current[1:], id)
		return nil
	case OverflowPromote:
		// Promotion to a dedicated overflow structure is a storage
		// concern beyond this in-memory arena; accept past the soft
		// limit rather than losing the edge.
		(*list)[edgeType] = append(current, id)
		return nil
	default:
		return errs.Wrap(errs.ErrBusy, "graph", "edge-create-overflow")
	}
}

func removeID(ids []EdgeID, target EdgeID) []EdgeID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
