package util

import "fmt"

// StackBudget tracks an estimated worst-case call-stack depth against a
// ceiling, standing in for the runtime stack-depth assertions spec.md §5
// requires on every kernel-plane code path (perf.stack_limit_bytes, default
// 6 KiB per spec.md §2/§6). Go does not expose a portable way to sample the
// real stack pointer mid-call, so instead a caller declares a per-frame
// cost and brackets the work with StackBudget.Enter/Exit like a manual
// stack; exceeding the ceiling is reported as an error rather than
// actually overflowing. No code path in this module calls it.
type StackBudget struct {
	limit   int
	current int
	peak    int
}

// NewStackBudget creates a budget with the given ceiling in bytes.
func NewStackBudget(limitBytes int) *StackBudget {
	return &StackBudget{limit: limitBytes}
}

// Enter accounts for a frame of frameBytes; it never recurses in the
// callers that use it, so a single outstanding Enter/Exit pair at a time is
// the expected usage for an iterative loop body.
func (b *StackBudget) Enter(frameBytes int) error {
	b.current += frameBytes
	if b.current > b.peak {
		b.peak = b.current
	}
	if b.current > b.limit {
		return fmt.Errorf("util: stack budget exceeded: %d > %d bytes", b.current, b.limit)
	}
	return nil
}

// Exit releases a frame previously accounted for by Enter.
func (b *StackBudget) Exit(frameBytes int) {
	b.current -= frameBytes
	if b.current < 0 {
		b.current = 0
	}
}

// Peak returns the highest cumulative frame size observed, for Testable
// Property 6 ("observed maximum stack depth <= 6 KiB").
func (b *StackBudget) Peak() int { return b.peak }

// Limit returns the configured ceiling.
func (b *StackBudget) Limit() int { return b.limit }

// DefaultKernelStackLimit is the spec.md §2/§6 hard ceiling, including
// call-site slack per the Open Question resolution in spec.md §9.
const DefaultKernelStackLimit = 6 * 1024

// WorkStack is an explicit, heap-backed LIFO work list. The traversals in
// internal/hnsw and internal/graph are iterative but keep their own slices
// and heaps; none of them uses this type.
type WorkStack[T any] struct {
	items []T
}

// NewWorkStack creates an empty work stack with a capacity hint.
func NewWorkStack[T any](capHint int) *WorkStack[T] {
	return &WorkStack[T]{items: make([]T, 0, capHint)}
}

func (s *WorkStack[T]) Push(v T) { s.items = append(s.items, v) }

func (s *WorkStack[T]) Pop() (T, bool) {
	var zero T
	n := len(s.items)
	if n == 0 {
		return zero, false
	}
	v := s.items[n-1]
	s.items[n-1] = zero
	s.items = s.items[:n-1]
	return v, true
}

func (s *WorkStack[T]) Len() int { return len(s.items) }
