package crdt

import (
	"sync"
	"time"
)

// LWWRegister is a last-writer-wins register per spec.md §3: merge picks
// the value with the higher vector clock; only when the two clocks are
// Concurrent does it fall back to wall-clock timestamp, and only when both
// of those tie does the node id break the tie. This vector-clock-first
// ordering is the spec.md §9 Open Question resolution — the original
// source's LWW merge ignores vector clocks entirely.
type LWWRegister struct {
	mu        sync.RWMutex
	value     interface{}
	timestamp time.Time
	node      NodeID
	clock     VectorClock
}

// NewLWWRegister creates a register with an initial value attributed to
// self.
func NewLWWRegister(self NodeID, value interface{}) *LWWRegister {
	return &LWWRegister{
		value:     value,
		timestamp: time.Now(),
		node:      self,
		clock:     VectorClock{self: 1},
	}
}

// Set writes a new value, bumping self's clock entry.
func (r *LWWRegister) Set(self NodeID, value interface{}, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clock == nil {
		r.clock = VectorClock{}
	}
	r.clock = r.clock.Clone().Increment(self)
	r.value = value
	r.timestamp = at
	r.node = self
}

// Value returns the current winning value.
func (r *LWWRegister) Value() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Merge resolves two concurrent registers into the winner, per the
// precedence documented on LWWRegister.
func (r *LWWRegister) Merge(other *LWWRegister) {
	if other == nil {
		return
	}
	other.mu.RLock()
	otherValue, otherTS, otherNode, otherClock := other.value, other.timestamp, other.node, other.clock.Clone()
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch Compare(r.clock, otherClock) {
	case After, Equal:
		// r already dominates or is identical; nothing to do.
	case Before:
		r.value, r.timestamp, r.node, r.clock = otherValue, otherTS, otherNode, otherClock
	case Concurrent:
		r.clock = Merge(r.clock, otherClock)
		if otherTS.After(r.timestamp) || (otherTS.Equal(r.timestamp) && otherNode > r.node) {
			r.value, r.timestamp, r.node = otherValue, otherTS, otherNode
		}
	}
}

// Snapshot exposes the register's internal state for replication or
// journal snapshotting, without exposing the mutex.
func (r *LWWRegister) Snapshot() (value interface{}, timestamp time.Time, node NodeID, clock VectorClock) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value, r.timestamp, r.node, r.clock.Clone()
}
