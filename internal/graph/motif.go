package graph

// Motif detection from spec.md §4.5: triangles, stars, and cliques up to a
// bounded size. Grounded on katalvlaran-lvlath's approach of building an
// adjacency snapshot first and enumerating over it with plain loops, since
// none of the pack repos carry a dedicated motif-mining library.

// Triangle is three mutually connected nodes (undirected, edge type
// agnostic), identified regardless of edge direction between each pair.
type Triangle struct {
	A, B, C NodeID
}

// Triangles enumerates all triangles reachable from nodes connected via
// edgeType (all types if empty). The whole call is taken under a single
// read-lock snapshot.
func (g *Graph) Triangles(edgeType string) []Triangle {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	adj := g.undirectedAdjacencyLocked(edgeType)
	var out []Triangle
	seen := map[[3]NodeID]bool{}

	for a, aNeighbors := range adj {
		for b := range aNeighbors {
			if b <= a {
				continue
			}
			for c := range adj[b] {
				if c <= b {
					continue
				}
				if adj[a][c] {
					key := [3]NodeID{a, b, c}
					if !seen[key] {
						seen[key] = true
						out = append(out, Triangle{A: a, B: b, C: c})
					}
				}
			}
		}
	}
	return out
}

// Star reports a center node and its leaves: neighbors of the center that
// have no edge to any other neighbor of the center. A leaf may still have
// edges to nodes outside the center's neighborhood, so it need not have
// degree 1.
type Star struct {
	Center NodeID
	Leaves []NodeID
}

// Stars finds every node whose neighborhood contains at least minLeaves
// leaves (neighbors with no other connection among the center's
// neighbors).
func (g *Graph) Stars(edgeType string, minLeaves int) []Star {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	adj := g.undirectedAdjacencyLocked(edgeType)
	var out []Star
	for center, neighbors := range adj {
		var leaves []NodeID
		for n := range neighbors {
			isLeaf := true
			for other := range neighbors {
				if other != n && adj[n][other] {
					isLeaf = false
					break
				}
			}
			if isLeaf {
				leaves = append(leaves, n)
			}
		}
		if len(leaves) >= minLeaves {
			out = append(out, Star{Center: center, Leaves: leaves})
		}
	}
	return out
}

// Cliques enumerates maximal cliques up to maxSize using a bounded
// Bron-Kerbosch variant; callers pass a small maxSize since this is
// exponential in the worst case, per spec.md's "cliques up to a bounded
// size" constraint.
func (g *Graph) Cliques(edgeType string, maxSize int) [][]NodeID {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	adj := g.undirectedAdjacencyLocked(edgeType)
	nodes := make([]NodeID, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}

	var out [][]NodeID
	var extend func(r, p, x []NodeID)
	extend = func(r, p, x []NodeID) {
		if len(p) == 0 && len(x) == 0 {
			if len(r) >= 2 {
				clique := append([]NodeID(nil), r...)
				out = append(out, clique)
			}
			return
		}
		if maxSize > 0 && len(r) >= maxSize {
			return
		}
		for i := 0; i < len(p); i++ {
			v := p[i]
			newR := append(append([]NodeID(nil), r...), v)
			newP := intersectNeighbors(p, adj[v])
			newX := intersectNeighbors(x, adj[v])
			extend(newR, newP, newX)
			p = append(p[:i], p[i+1:]...)
			x = append(x, v)
			i--
		}
	}
	extend(nil, nodes, nil)
	return out
}

func intersectNeighbors(set []NodeID, neighbors map[NodeID]bool) []NodeID {
	var out []NodeID
	for _, n := range set {
		if neighbors[n] {
			out = append(out, n)
		}
	}
	return out
}

// undirectedAdjacencyLocked builds a symmetric adjacency snapshot over
// live nodes. Caller must hold both nodesMu and edgesMu for reading.
func (g *Graph) undirectedAdjacencyLocked(edgeType string) map[NodeID]map[NodeID]bool {
	adj := make(map[NodeID]map[NodeID]bool)
	ensure := func(id NodeID) {
		if _, ok := adj[id]; !ok {
			adj[id] = make(map[NodeID]bool)
		}
	}
	for id, n := range g.nodes {
		if n.Deleted {
			continue
		}
		ensure(id)
	}
	for _, e := range g.edges {
		fromNode, fromOK := g.nodes[e.From]
		toNode, toOK := g.nodes[e.To]
		if !fromOK || !toOK || fromNode.Deleted || toNode.Deleted {
			continue
		}
		if edgeType != "" && e.Type != edgeType {
			continue
		}
		adj[e.From][e.To] = true
		adj[e.To][e.From] = true
	}
	return adj
}
