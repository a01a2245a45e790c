package hnsw

import (
	"context"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/util"
)

// searchLevel performs beam search at one level starting from entryID,
// returning up to ef candidates sorted closest-first. Grounded on the
// teacher's searchLevel, rewritten against util.NearHeap (the dynamic
// candidate list "W") and util.FarHeap (the retained best-ef set) instead
// of the teacher's two ad hoc heap wrappers.
func (h *Index) searchLevel(query []float32, entryID uint32, ef int, level int) []*util.Candidate {
	if entryID >= uint32(len(h.nodes)) {
		return nil
	}
	visited := make([]bool, len(h.nodes))

	best := util.NewFarHeap(ef * 2)
	frontier := util.NewNearHeap(ef)

	dist := h.computeDistanceTo(query, h.nodes[entryID])
	if dist < 0 {
		return nil
	}
	entry := &util.Candidate{ID: entryID, Distance: dist}
	best.Push(entry)
	frontier.Push(entry)
	visited[entryID] = true

	for frontier.Len() > 0 {
		current := frontier.Pop()
		if best.Len() >= ef {
			if worst := best.Top(); worst != nil && current.Distance > worst.Distance {
				break
			}
		}

		node := h.nodes[current.ID]
		if level >= len(node.Links) {
			continue
		}
		for _, neighborID := range node.Links[level].IDs() {
			if neighborID >= uint32(len(visited)) || visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			d := h.computeDistanceTo(query, h.nodes[neighborID])
			if d < 0 {
				continue
			}
			cand := &util.Candidate{ID: neighborID, Distance: d}

			if worst := best.Top(); best.Len() < ef || worst == nil || d < worst.Distance {
				best.Push(cand)
				frontier.Push(cand)
				if best.Len() > ef {
					best.Pop()
				}
			}
		}
	}

	out := make([]*util.Candidate, best.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = best.Pop()
	}
	return out
}

// Search returns the k nearest neighbors to query, per spec.md §4.4's
// greedy-descent-then-beam-search contract.
func (h *Index) Search(ctx context.Context, query []float32, k int) ([]*util.Candidate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntryPoint {
		return nil, errs.Wrap(errs.ErrNotFound, "hnsw", "search-empty-index")
	}
	if len(query) != h.config.Dimension {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "hnsw", "search-dimension-mismatch")
	}

	ep := h.entryPoint
	for level := h.maxLevel; level > 0; level-- {
		candidates := h.searchLevel(query, ep, 1, level)
		if len(candidates) > 0 {
			ep = candidates[0].ID
		}
	}

	ef := h.config.EfSearch
	if k > ef {
		ef = k
	}
	candidates := h.searchLevel(query, ep, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	if h.metrics != nil {
		h.metrics.SearchQueries.Inc()
	}
	return candidates, nil
}

// VectorIDAt resolves a candidate's internal node id back to its
// content-addressed vector id, for callers translating search results.
func (h *Index) VectorIDAt(nodeID uint32) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if nodeID >= uint32(len(h.nodes)) {
		return "", false
	}
	return h.nodes[nodeID].VectorID, true
}
