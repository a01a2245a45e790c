package graph

// Centrality approximations from spec.md §4.5: degree centrality exactly,
// betweenness via an unweighted Brandes-style approximation bounded by a
// sample of source nodes, since exact all-pairs betweenness is cubic and
// unsuitable for a live filesystem graph.

// DegreeCentrality returns, for every live node, its total in+out degree
// over edges of edgeType (all types if empty).
func (g *Graph) DegreeCentrality(edgeType string) map[NodeID]int {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()

	out := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		if n.Deleted {
			continue
		}
		out[id] = len(g.outEdgeIDsLocked(n, edgeType)) + len(inEdgeIDs(n, edgeType))
	}
	return out
}

func inEdgeIDs(n *Node, edgeType string) []EdgeID {
	if edgeType == "" {
		var ids []EdgeID
		for _, v := range n.in {
			ids = append(ids, v...)
		}
		return ids
	}
	return n.in[edgeType]
}

// BetweennessApprox estimates betweenness centrality by running
// unweighted BFS shortest-path counting from at most sampleSize source
// nodes (all nodes if sampleSize <= 0 or exceeds the node count) and
// accumulating Brandes' dependency scores. Results are comparable
// relative scores, not exact betweenness values, when sampling is used.
func (g *Graph) BetweennessApprox(edgeType string, sampleSize int) map[NodeID]float64 {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	adj := g.undirectedAdjacencyLocked(edgeType)
	scores := make(map[NodeID]float64, len(adj))
	for n := range adj {
		scores[n] = 0
	}

	sources := make([]NodeID, 0, len(adj))
	for n := range adj {
		sources = append(sources, n)
	}
	if sampleSize > 0 && sampleSize < len(sources) {
		sources = sources[:sampleSize]
	}

	for _, s := range sources {
		brandesSingleSource(s, adj, scores)
	}
	return scores
}

// brandesSingleSource runs one BFS-based Brandes accumulation pass from s.
func brandesSingleSource(s NodeID, adj map[NodeID]map[NodeID]bool, scores map[NodeID]float64) {
	stack := []NodeID{}
	predecessors := map[NodeID][]NodeID{}
	sigma := map[NodeID]float64{s: 1}
	dist := map[NodeID]int{s: 0}
	queue := []NodeID{s}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for w := range adj[v] {
			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				predecessors[w] = append(predecessors[w], v)
			}
		}
	}

	delta := map[NodeID]float64{}
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range predecessors[w] {
			delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
		}
		if w != s {
			scores[w] += delta[w]
		}
	}
}
