package hnsw

import (
	"context"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/util"
)

// Insert adds vectorID/vector to the index. Grounded on the teacher's
// Index.Insert + insertNode split; a vectorID already present in the
// index is rejected with ErrConflict.
func (h *Index) Insert(ctx context.Context, vectorID string, vec []float32, metadata map[string]interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.idToIndex[vectorID]; exists {
		return errs.Wrap(errs.ErrConflict, "hnsw", "insert-duplicate")
	}
	if len(vec) != h.config.Dimension {
		return errs.Wrap(errs.ErrInvalidArgument, "hnsw", "insert-dimension-mismatch")
	}

	if h.quantizer != nil && !h.quantizationTrained {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		h.trainingVectors = append(h.trainingVectors, cp)
		if len(h.trainingVectors) >= h.getTrainingThreshold() {
			if err := h.trainQuantizer(ctx); err != nil {
				return errs.Wrap(err, "hnsw", "insert-train")
			}
		}
	}

	level := h.generateLevel()
	node := &Node{VectorID: vectorID, Level: level, Links: make([]*linkSet, level+1)}
	for i := range node.Links {
		node.Links[i] = newLinkSet(nil)
	}

	if h.quantizer != nil && h.quantizationTrained {
		compressed, err := h.quantizer.Compress(vec)
		if err != nil {
			return errs.Wrap(err, "hnsw", "insert-compress")
		}
		node.CompressedVector = compressed
	} else {
		node.Vector = append([]float32(nil), vec...)
	}

	nodeID := uint32(len(h.nodes))
	h.nodes = append(h.nodes, node)
	h.idToIndex[vectorID] = nodeID

	if !h.hasEntryPoint {
		h.entryPoint = nodeID
		h.hasEntryPoint = true
		h.maxLevel = level
		h.size++
		if h.metrics != nil {
			h.metrics.VectorInserts.Inc()
		}
		return nil
	}

	if err := h.insertNode(node, nodeID); err != nil {
		h.nodes = h.nodes[:len(h.nodes)-1]
		delete(h.idToIndex, vectorID)
		return errs.Wrap(err, "hnsw", "insert-node")
	}

	h.size++
	if level > h.maxLevel {
		h.entryPoint = nodeID
		h.maxLevel = level
	}
	if h.metrics != nil {
		h.metrics.VectorInserts.Inc()
	}
	return nil
}

// insertNode runs the two-phase HNSW insertion: greedy descent with ef=1
// down to node.Level+1, then beam search with ef=EfConstruction at each
// remaining level, connecting bidirectionally and pruning over-full
// neighbors. Both phases are flat for-loops over levels — there is no
// recursion to eliminate here, matching spec.md §4.4's "Recursion
// elimination" requirement trivially since the teacher's algorithm was
// already iterative.
func (h *Index) insertNode(node *Node, nodeID uint32) error {
	searchVector, err := h.getNodeVector(node)
	if err != nil {
		return err
	}

	entryPoints := []*util.Candidate{{ID: h.entryPoint, Distance: 0}}

	for level := h.maxLevel; level > node.Level; level-- {
		entryPoints = h.searchLevel(searchVector, entryPoints[0].ID, 1, level)
		if len(entryPoints) == 0 {
			entryPoints = []*util.Candidate{{ID: h.entryPoint, Distance: 0}}
		}
	}

	for level := minInt(node.Level, h.maxLevel); level >= 0; level-- {
		candidates := h.searchLevel(searchVector, entryPoints[0].ID, h.config.EfConstruction, level)
		selected := h.neighborSelector.Select(searchVector, candidates, level, h)
		h.connectBidirectional(nodeID, selected, level)
		h.pruneNeighborConnections(selected, level)
		if len(selected) > 0 {
			entryPoints = selected
		}
	}
	return nil
}

func (h *Index) connectBidirectional(nodeID uint32, neighbors []*util.Candidate, level int) {
	node := h.nodes[nodeID]
	if level >= len(node.Links) {
		return
	}
	own := append([]uint32(nil), node.Links[level].IDs()...)
	for _, n := range neighbors {
		own = append(own, n.ID)
	}
	node.Links[level] = newLinkSet(own)

	for _, n := range neighbors {
		neighborNode := h.nodes[n.ID]
		if level >= len(neighborNode.Links) {
			continue
		}
		theirs := append([]uint32(nil), neighborNode.Links[level].IDs()...)
		theirs = append(theirs, nodeID)
		neighborNode.Links[level] = newLinkSet(theirs)
	}
}

func (h *Index) pruneNeighborConnections(neighbors []*util.Candidate, level int) {
	for _, n := range neighbors {
		h.neighborSelector.Prune(n.ID, level, h)
	}
}
