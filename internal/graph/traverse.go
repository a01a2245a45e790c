package graph

import (
	"container/heap"

	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// Traversal order, grounded on katalvlaran-lvlath's bfs/dfs packages
// (explicit worklist, no recursion).
type Order int

const (
	OrderBFS Order = iota
	OrderDFS
)

// Traverse walks the graph from start along edges of edgeType (all types
// if empty), returning visited node ids in traversal order. The whole
// call holds the node table under a read lock so a caller sees a single
// consistent snapshot, per spec.md §4.5's per-call epoch requirement —
// concurrent mutations from other goroutines cannot interleave with one
// traversal.
func (g *Graph) Traverse(start NodeID, order Order, edgeType string, maxDepth int) ([]NodeID, error) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()

	if _, ok := g.nodes[start]; !ok {
		return nil, errs.Wrap(errs.ErrNotFound, "graph", "traverse-start")
	}

	visited := map[NodeID]bool{start: true}
	order_ := []NodeID{}

	type frame struct {
		id    NodeID
		depth int
	}
	work := []frame{{start, 0}}

	for len(work) > 0 {
		var cur frame
		if order == OrderDFS {
			cur = work[len(work)-1]
			work = work[:len(work)-1]
		} else {
			cur = work[0]
			work = work[1:]
		}
		order_ = append(order_, cur.id)

		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		node, ok := g.nodes[cur.id]
		if !ok || node.Deleted {
			continue
		}
		for _, next := range g.neighborsLocked(node, edgeType) {
			if visited[next] {
				continue
			}
			visited[next] = true
			work = append(work, frame{next, cur.depth + 1})
		}
	}
	return order_, nil
}

// neighborsLocked returns the out-neighbors of node for edgeType (or all
// types if empty). Caller must hold g.nodesMu.
func (g *Graph) neighborsLocked(node *Node, edgeType string) []NodeID {
	var ids []EdgeID
	if edgeType == "" {
		for _, v := range node.out {
			ids = append(ids, v...)
		}
	} else {
		ids = node.out[edgeType]
	}
	out := make([]NodeID, 0, len(ids))
	g.edgesMu.RLock()
	for _, eid := range ids {
		if e, ok := g.edges[eid]; ok {
			out = append(out, e.To)
		}
	}
	g.edgesMu.RUnlock()
	return out
}

// pqItem is a priority-queue entry for Dijkstra's algorithm.
type pqItem struct {
	id   NodeID
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPath computes the weighted shortest path from start to end using
// edges of edgeType (all types if empty), via Dijkstra's algorithm over an
// explicit heap, grounded on katalvlaran-lvlath's dijkstra package.
func (g *Graph) ShortestPath(start, end NodeID, edgeType string) ([]NodeID, float64, error) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	if _, ok := g.nodes[start]; !ok {
		return nil, 0, errs.Wrap(errs.ErrNotFound, "graph", "shortest-path-start")
	}
	if _, ok := g.nodes[end]; !ok {
		return nil, 0, errs.Wrap(errs.ErrNotFound, "graph", "shortest-path-end")
	}

	dist := map[NodeID]float64{start: 0}
	prev := map[NodeID]NodeID{}

	pq := &priorityQueue{{id: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if cur.id == end {
			break
		}
		node, ok := g.nodes[cur.id]
		if !ok || node.Deleted {
			continue
		}
		for _, eid := range g.outEdgeIDsLocked(node, edgeType) {
			e, ok := g.edges[eid]
			if !ok {
				continue
			}
			next := dist[cur.id] + e.Weight
			if existing, seen := dist[e.To]; !seen || next < existing {
				dist[e.To] = next
				prev[e.To] = cur.id
				heap.Push(pq, pqItem{id: e.To, dist: next})
			}
		}
	}

	finalDist, reached := dist[end]
	if !reached {
		return nil, 0, errs.Wrap(errs.ErrNotFound, "graph", "shortest-path-unreachable")
	}

	path := []NodeID{end}
	for cur := end; cur != start; {
		p, ok := prev[cur]
		if !ok {
			return nil, 0, errs.Wrap(errs.ErrCorrupt, "graph", "shortest-path-reconstruct")
		}
		path = append(path, p)
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, finalDist, nil
}

func (g *Graph) outEdgeIDsLocked(node *Node, edgeType string) []EdgeID {
	if edgeType == "" {
		var ids []EdgeID
		for _, v := range node.out {
			ids = append(ids, v...)
		}
		return ids
	}
	return node.out[edgeType]
}
