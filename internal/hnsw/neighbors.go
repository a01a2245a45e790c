package hnsw

import (
	"sort"

	"github.com/lspecian/vexfs-sub008/internal/util"
)

// NeighborSelector implements the degree-limiting heuristic from spec.md
// §4.4: pick the closest candidate, then greedily add further candidates
// only if they are not redundant with an already-selected neighbor,
// before falling back to plain distance order to fill out M slots.
// Grounded on the teacher's NeighborSelector/SelectNeighborsOptimized.
type NeighborSelector struct {
	maxConnections  int
	levelMultiplier float64
}

// NewNeighborSelector creates a selector with max degree maxConnections
// (doubled at level 0, per the teacher's levelMultiplier convention).
func NewNeighborSelector(maxConnections int, levelMultiplier float64) *NeighborSelector {
	return &NeighborSelector{maxConnections: maxConnections, levelMultiplier: levelMultiplier}
}

func (ns *NeighborSelector) maxM(level int) int {
	if level == 0 {
		return int(float64(ns.maxConnections) * ns.levelMultiplier)
	}
	return ns.maxConnections
}

// Select picks up to maxM(level) candidates out of candidates.
func (ns *NeighborSelector) Select(query []float32, candidates []*util.Candidate, level int, idx *Index) []*util.Candidate {
	maxM := ns.maxM(level)
	if len(candidates) <= maxM {
		return candidates
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })

	selected := make([]*util.Candidate, 0, maxM)
	selected = append(selected, candidates[0])

	for i := 1; i < len(candidates) && len(selected) < maxM; i++ {
		cand := candidates[i]
		candVec, err := idx.getNodeVector(idx.nodes[cand.ID])
		if err != nil {
			continue
		}

		redundant := false
		checkLimit := minInt(len(selected), 3)
		for j := 0; j < checkLimit; j++ {
			selVec, err := idx.getNodeVector(idx.nodes[selected[j].ID])
			if err != nil {
				continue
			}
			if idx.distance(candVec, selVec) < cand.Distance*0.8 {
				redundant = true
				break
			}
		}
		if !redundant {
			selected = append(selected, cand)
		}
	}

	for i := 1; i < len(candidates) && len(selected) < maxM; i++ {
		cand := candidates[i]
		already := false
		for _, s := range selected {
			if s.ID == cand.ID {
				already = true
				break
			}
		}
		if !already {
			selected = append(selected, cand)
		}
	}

	return selected
}

// Prune trims nodeID's connections at level back down to maxM if a prior
// insert pushed it over the limit.
func (ns *NeighborSelector) Prune(nodeID uint32, level int, idx *Index) {
	node := idx.nodes[nodeID]
	if level >= len(node.Links) {
		return
	}
	ids := node.Links[level].IDs()
	maxM := ns.maxM(level)
	if len(ids) <= maxM {
		return
	}

	nodeVec, err := idx.getNodeVector(node)
	if err != nil {
		return
	}

	candidates := make([]*util.Candidate, 0, len(ids))
	for _, linkID := range ids {
		linkVec, err := idx.getNodeVector(idx.nodes[linkID])
		if err != nil {
			continue
		}
		candidates = append(candidates, &util.Candidate{ID: linkID, Distance: idx.distance(nodeVec, linkVec)})
	}

	selected := ns.Select(nodeVec, candidates, level, idx)
	newIDs := make([]uint32, len(selected))
	for i, s := range selected {
		newIDs[i] = s.ID
	}
	node.Links[level] = newLinkSet(newIDs)
}
