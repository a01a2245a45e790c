package crdt

// PNCounter is a pair of G-Counters, one for increments and one for
// decrements, per spec.md §3; its value is the difference of the two
// sums and it merges by merging each side independently.
type PNCounter struct {
	inc *GCounter
	dec *GCounter
}

// NewPNCounter creates an empty PN-Counter.
func NewPNCounter() *PNCounter {
	return &PNCounter{inc: NewGCounter(), dec: NewGCounter()}
}

// Increment adds delta to this replica's positive side.
func (p *PNCounter) Increment(self NodeID, delta uint64) {
	p.inc.Increment(self, delta)
}

// Decrement adds delta to this replica's negative side.
func (p *PNCounter) Decrement(self NodeID, delta uint64) {
	p.dec.Increment(self, delta)
}

// Value returns increments minus decrements.
func (p *PNCounter) Value() int64 {
	return int64(p.inc.Value()) - int64(p.dec.Value())
}

// Merge joins both sides independently, inheriting G-Counter's
// commutative/associative/idempotent merge.
func (p *PNCounter) Merge(other *PNCounter) {
	if other == nil {
		return
	}
	p.inc.Merge(other.inc)
	p.dec.Merge(other.dec)
}
