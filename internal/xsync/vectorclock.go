// Package xsync implements the Cross-Boundary Sync component from
// spec.md §4.8 (C11): vector-clock causal ordering across the
// kernel/user plane boundary, a conflict-resolution hint dispatcher, and
// catch-up recovery for a plane that has fallen behind. New package (the
// teacher has no cross-process sync layer); grounded on internal/crdt's
// vector clock and State types, reused here rather than redefined.
package xsync

import "github.com/lspecian/vexfs-sub008/internal/crdt"

// Clock is the per-plane vector clock used to order events crossing the
// kernel/user boundary, per spec.md §4.8. It is an alias for
// crdt.VectorClock rather than a new type, so the same Merge/Compare
// machinery CRDT state already uses applies here unchanged.
type Clock = crdt.VectorClock

// HappensBefore reports whether a causally precedes b.
func HappensBefore(a, b Clock) bool {
	return crdt.Compare(a, b) == crdt.Before
}

// Concurrent reports whether a and b are causally unordered.
func Concurrent(a, b Clock) bool {
	return crdt.Compare(a, b) == crdt.Concurrent
}

// Join returns the componentwise-max merge of a and b, advancing a
// recovering plane's clock to reflect everything the other plane has
// observed.
func Join(a, b Clock) Clock {
	return crdt.Merge(a, b)
}
