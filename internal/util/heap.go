package util

import "container/heap"

// Candidate is a node considered during an HNSW beam search, paired with
// its distance to the query vector.
type Candidate struct {
	ID       uint32
	Distance float32
}

// candidateHeap is the shared container/heap.Interface implementation;
// NearHeap and FarHeap flip Less to get min- and max-heap behavior out of
// the same storage instead of duplicating Push/Pop/Swap twice.
type candidateHeap struct {
	items []*Candidate
	less  func(a, b *Candidate) bool
}

func (h *candidateHeap) Len() int { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool {
	return h.less(h.items[i], h.items[j])
}
func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*Candidate))
}
func (h *candidateHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

// NearHeap is a min-heap ordered by ascending distance: the closest
// candidate to the query is always at the top. Used as HNSW's "W", the
// dynamic candidate list in search-layer.
type NearHeap struct{ h *candidateHeap }

// NewNearHeap creates a min-heap with capacity hinted by efSearch/efConstruction.
func NewNearHeap(capHint int) *NearHeap {
	return &NearHeap{h: &candidateHeap{
		items: make([]*Candidate, 0, capHint),
		less:  func(a, b *Candidate) bool { return a.Distance < b.Distance },
	}}
}

func (n *NearHeap) Len() int                { return n.h.Len() }
func (n *NearHeap) Push(c *Candidate)       { heap.Push(n.h, c) }
func (n *NearHeap) Pop() *Candidate {
	if n.h.Len() == 0 {
		return nil
	}
	return heap.Pop(n.h).(*Candidate)
}

// FarHeap is a max-heap ordered by descending distance: the furthest
// candidate currently retained is always at the top, so it is the first
// one evicted once the retained set exceeds ef.
type FarHeap struct{ h *candidateHeap }

// NewFarHeap creates a max-heap with capacity hinted by ef.
func NewFarHeap(capHint int) *FarHeap {
	return &FarHeap{h: &candidateHeap{
		items: make([]*Candidate, 0, capHint),
		less:  func(a, b *Candidate) bool { return a.Distance > b.Distance },
	}}
}

func (f *FarHeap) Len() int          { return f.h.Len() }
func (f *FarHeap) Push(c *Candidate) { heap.Push(f.h, c) }
func (f *FarHeap) Pop() *Candidate {
	if f.h.Len() == 0 {
		return nil
	}
	return heap.Pop(f.h).(*Candidate)
}

// Top returns the furthest-retained candidate without removing it.
func (f *FarHeap) Top() *Candidate {
	if f.h.Len() == 0 {
		return nil
	}
	return f.h.items[0]
}
