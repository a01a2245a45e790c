// Package crdt implements the four conflict-free replicated data types
// named in spec.md §3: G-Counter, PN-Counter, LWW-Register, and OR-Set.
// Every type exposes a Merge method that is commutative, associative, and
// idempotent (Testable Property 4), following the teacher's
// factory-and-interface shape from its quantizer registry — here
// New(Kind, key) replaces a per-kind factory lookup as the single
// construction entry point.
package crdt

import "sync"

// GCounter is a grow-only counter: each replica owns a monotonically
// increasing count, and the counter's value is the sum across replicas.
type GCounter struct {
	mu     sync.RWMutex
	counts map[NodeID]uint64
}

// NewGCounter creates an empty G-Counter.
func NewGCounter() *GCounter {
	return &GCounter{counts: make(map[NodeID]uint64)}
}

// Increment adds delta to this replica's own count.
func (g *GCounter) Increment(self NodeID, delta uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[self] += delta
}

// Value returns the sum of all replica counts.
func (g *GCounter) Value() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var sum uint64
	for _, v := range g.counts {
		sum += v
	}
	return sum
}

// Snapshot returns a copy of the per-replica counts, for merge and for
// journal snapshotting (spec.md §4.2).
func (g *GCounter) Snapshot() map[NodeID]uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[NodeID]uint64, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}

// Merge joins this counter with another replica's counts by taking the
// per-replica max, which is commutative, associative, and idempotent.
func (g *GCounter) Merge(other *GCounter) {
	if other == nil {
		return
	}
	snap := other.Snapshot()
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range snap {
		if v > g.counts[k] {
			g.counts[k] = v
		}
	}
}
