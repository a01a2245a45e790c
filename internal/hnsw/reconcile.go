package hnsw

import (
	"context"
	"time"
)

// Reconciler periodically scans the index for unidirectional edges left
// behind when a concurrent insert connected A->B but a racing prune
// dropped B->A before the reciprocal link landed, and repairs them.
// Supplemental over the teacher (which has no background repair loop),
// grounded in spec.md §4.4's "Failure model" requirement that the graph
// self-heals rather than silently degrading recall. A repair appends the
// missing reciprocal link directly; the neighbor list is not pruned
// afterwards.
type Reconciler struct {
	idx      *Index
	interval time.Duration
}

// NewReconciler builds a Reconciler that sweeps idx every interval.
func NewReconciler(idx *Index, interval time.Duration) *Reconciler {
	return &Reconciler{idx: idx, interval: interval}
}

// Run sweeps until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

// sweepOnce repairs every unidirectional edge found in one full scan.
func (r *Reconciler) sweepOnce() int {
	r.idx.mu.Lock()
	defer r.idx.mu.Unlock()

	repaired := 0
	for nodeID, node := range r.idx.nodes {
		for level, links := range node.Links {
			for _, neighborID := range links.IDs() {
				if int(neighborID) >= len(r.idx.nodes) {
					continue
				}
				neighbor := r.idx.nodes[neighborID]
				if level >= len(neighbor.Links) {
					continue
				}
				if hasLink(neighbor.Links[level], uint32(nodeID)) {
					continue
				}
				ids := append([]uint32(nil), neighbor.Links[level].IDs()...)
				ids = append(ids, uint32(nodeID))
				neighbor.Links[level] = newLinkSet(ids)
				repaired++
			}
		}
	}
	if repaired > 0 && r.idx.metrics != nil {
		r.idx.metrics.HNSWReciprocationRepairs.Add(float64(repaired))
	}
	return repaired
}

func hasLink(l *linkSet, id uint32) bool {
	for _, v := range l.IDs() {
		if v == id {
			return true
		}
	}
	return false
}
