package query

import (
	"context"
	"sort"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
)

// SortField selects the attribute a result set is ordered by.
type SortField int

const (
	SortBySequence SortField = iota
	SortByTimestamp
	SortByPriority
)

// SortOrder selects ascending or descending order.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Index resolves individual filter clauses against C3's secondary
// indexes, returning candidate event ids. Satisfied by
// internal/journal.Indexer in production; a small abstract interface here
// keeps internal/query buildable and testable without a concrete
// dependency on the journal package, per the AppendSink /
// LogSource dependency-inversion pattern used elsewhere in this codebase.
type Index interface {
	AllUpTo(seq uint64) []uint64
	ByType(t event.Type) []uint64
	ByCategory(c event.Category) []uint64
	ByTimeRange(fromNanos, toNanos int64) []uint64
	ByAgent(agent string) []uint64
	ByTx(tx uint64) []uint64
	ByChain(chain uint64) []uint64
	ByPathPrefix(prefix string) []uint64
}

// RecordSource hydrates event ids into full records and reports the
// journal's current tail sequence, the snapshot boundary T that spec.md
// §4.9's "Guarantees" clause promises queries see.
type RecordSource interface {
	Hydrate(ctx context.Context, ids []uint64) ([]*event.Event, error)
	LatestSequence() uint64
}

// Planner resolves a Filter into a hydrated, sorted, paginated result set,
// per spec.md §4.9's "planner resolves each clause against C3's indexes,
// intersects the resulting id sets, sorts by the requested field, and
// hydrates records from the journal."
type Planner struct {
	index   Index
	records RecordSource
}

// NewPlanner builds a Planner over the given index and record source.
func NewPlanner(index Index, records RecordSource) *Planner {
	return &Planner{index: index, records: records}
}

// Result is the outcome of a Plan call.
type Result struct {
	Events       []*event.Event
	Total        int
	TailSequence uint64
}

// Plan resolves f against the index, hydrates matching candidates, applies
// f.Matches as the authoritative post-filter (the index narrows but some
// clauses like a glob PathPattern or Tags need the full record), sorts,
// and paginates.
func (p *Planner) Plan(ctx context.Context, f Filter, limit, offset int, sortField SortField, order SortOrder) (*Result, error) {
	tail := p.records.LatestSequence()

	candidates := p.candidateIDs(f, tail)
	events, err := p.records.Hydrate(ctx, candidates)
	if err != nil {
		return nil, errs.Wrap(err, "query", "plan-hydrate")
	}

	matched := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if e.GlobalSequence > tail {
			continue // beyond the snapshot boundary queries promise
		}
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}

	sortEvents(matched, sortField, order)

	total := len(matched)
	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return &Result{Events: matched, Total: total, TailSequence: tail}, nil
}

// candidateIDs intersects the id sets returned by every present clause
// that the Index can resolve directly. Clauses the index has no method
// for (MinPriority, Flags, MinRelevance) are left to the post-filter pass.
func (p *Planner) candidateIDs(f Filter, tail uint64) []uint64 {
	var sets [][]uint64

	for _, t := range f.Types {
		sets = append(sets, p.index.ByType(t))
	}
	for _, c := range f.Categories {
		sets = append(sets, p.index.ByCategory(c))
	}
	if f.TimeRange != nil {
		sets = append(sets, p.index.ByTimeRange(f.TimeRange.FromNanos, f.TimeRange.ToNanos))
	}
	if f.Agent != "" {
		sets = append(sets, p.index.ByAgent(f.Agent))
	}
	if f.HasTx {
		sets = append(sets, p.index.ByTx(f.TxID))
	}
	if f.HasChain {
		sets = append(sets, p.index.ByChain(f.ChainID))
	}
	if f.PathPattern != "" {
		sets = append(sets, p.index.ByPathPrefix(literalPrefix(f.PathPattern)))
	}

	if len(sets) == 0 {
		return p.index.AllUpTo(tail)
	}

	result := sets[0]
	for _, s := range sets[1:] {
		result = intersectSorted(result, s)
		if len(result) == 0 {
			break
		}
	}
	return result
}

// literalPrefix returns the portion of a glob pattern before its first
// wildcard character, used to narrow a path-prefix index lookup; the full
// glob match still runs in Filter.Matches.
func literalPrefix(pattern string) string {
	for i, r := range pattern {
		if r == '*' || r == '?' || r == '[' {
			return pattern[:i]
		}
	}
	return pattern
}

// intersectSorted merges two ascending, deduplicated id slices.
func intersectSorted(a, b []uint64) []uint64 {
	result := make([]uint64, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			result = append(result, a[i])
			i++
			j++
		}
	}
	return result
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sortEvents(events []*event.Event, field SortField, order SortOrder) {
	cmp := func(i, j int) int {
		switch field {
		case SortByTimestamp:
			return compareInt64(events[i].Timestamp.Nanos, events[j].Timestamp.Nanos)
		case SortByPriority:
			return int(events[i].Priority) - int(events[j].Priority)
		default:
			return compareUint64(events[i].GlobalSequence, events[j].GlobalSequence)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		c := cmp(i, j)
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
