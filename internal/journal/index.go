package journal

import (
	"sort"
	"strings"
	"sync"

	"github.com/lspecian/vexfs-sub008/internal/event"
)

// Indexer builds and maintains the in-memory secondary indexes from
// spec.md §4.3, keyed by {type, category, agent, path-prefix,
// transaction, time-bucket}. Every posting list is a sorted []uint64 of
// event ids; since IndexEvent is only ever called in journal flush order
// (strictly increasing GlobalSequence, and EventID assignment tracks it),
// appending preserves sort order without a separate sort pass.
//
// Indexer implements internal/query.Index so the query planner resolves
// clauses directly against it without an adapter.
type Indexer struct {
	mu sync.RWMutex

	byType     map[event.Type][]uint64
	byCategory map[event.Category][]uint64
	byAgent    map[string][]uint64
	byTx       map[uint64][]uint64
	byChain    map[uint64][]uint64
	byTimeNanos []timedID // sorted by Nanos, for ByTimeRange
	byPath     []pathID   // sorted by Path, for ByPathPrefix
	all        []uint64

	timeBucketWidth int64
}

type timedID struct {
	Nanos int64
	ID    uint64
}

type pathID struct {
	Path string
	ID   uint64
}

// NewIndexer builds an empty Indexer.
func NewIndexer() *Indexer {
	return &Indexer{
		byType:     make(map[event.Type][]uint64),
		byCategory: make(map[event.Category][]uint64),
		byAgent:    make(map[string][]uint64),
		byTx:       make(map[uint64][]uint64),
		byChain:    make(map[uint64][]uint64),
	}
}

// IndexEvent adds e to every applicable posting list. Called post-flush,
// per spec.md §4.3: "Updates are applied post-flush; pre-flush events are
// queryable only via a short-lived overlay" (see Journal.StagedEvents).
func (idx *Indexer) IndexEvent(e *event.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.all = append(idx.all, e.EventID)
	idx.byType[e.Type] = append(idx.byType[e.Type], e.EventID)
	idx.byCategory[e.Category] = append(idx.byCategory[e.Category], e.EventID)
	idx.byTimeNanos = append(idx.byTimeNanos, timedID{Nanos: e.Timestamp.Nanos, ID: e.EventID})

	if ac, ok := e.Context.(event.AgentContext); ok && ac.AgentID != "" {
		idx.byAgent[ac.AgentID] = append(idx.byAgent[ac.AgentID], e.EventID)
	}
	if e.HasTx {
		idx.byTx[e.TransactionID] = append(idx.byTx[e.TransactionID], e.EventID)
	}
	if e.CausalityChainID != 0 {
		idx.byChain[e.CausalityChainID] = append(idx.byChain[e.CausalityChainID], e.EventID)
	}
	if fc, ok := e.Context.(event.FilesystemContext); ok && fc.Path != "" {
		idx.byPath = insertSortedByPath(idx.byPath, pathID{Path: fc.Path, ID: e.EventID})
	}
}

// Reset discards every posting list, for a full rebuild from the journal.
func (idx *Indexer) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	*idx = *NewIndexer()
}

// AllUpTo returns every indexed event id with GlobalSequence <= seq. The
// Indexer only tracks EventID (not sequence) per posting, so this simply
// returns every indexed id; callers (the planner) independently bound the
// result by the RecordSource's snapshot tail.
func (idx *Indexer) AllUpTo(seq uint64) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]uint64, len(idx.all))
	copy(out, idx.all)
	return out
}

func (idx *Indexer) ByType(t event.Type) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.byType[t])
}

func (idx *Indexer) ByCategory(c event.Category) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.byCategory[c])
}

func (idx *Indexer) ByAgent(agent string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.byAgent[agent])
}

func (idx *Indexer) ByTx(tx uint64) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.byTx[tx])
}

func (idx *Indexer) ByChain(chain uint64) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return cloneIDs(idx.byChain[chain])
}

// ByTimeRange scans the Nanos-sorted posting list and returns ids falling
// within [fromNanos, toNanos], ascending by EventID (not by time) so it
// composes with the planner's sorted-intersection of other clauses.
func (idx *Indexer) ByTimeRange(fromNanos, toNanos int64) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	lo := sort.Search(len(idx.byTimeNanos), func(i int) bool {
		return fromNanos == 0 || idx.byTimeNanos[i].Nanos >= fromNanos
	})
	var out []uint64
	for i := lo; i < len(idx.byTimeNanos); i++ {
		t := idx.byTimeNanos[i]
		if toNanos != 0 && t.Nanos > toNanos {
			break
		}
		out = append(out, t.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ByPathPrefix binary-searches the lexicographically sorted path index
// for the prefix's lower bound, then scans forward while the prefix still
// matches.
func (idx *Indexer) ByPathPrefix(prefix string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	lo := sort.Search(len(idx.byPath), func(i int) bool { return idx.byPath[i].Path >= prefix })
	var out []uint64
	for i := lo; i < len(idx.byPath); i++ {
		if !strings.HasPrefix(idx.byPath[i].Path, prefix) {
			break
		}
		out = append(out, idx.byPath[i].ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func insertSortedByPath(list []pathID, item pathID) []pathID {
	i := sort.Search(len(list), func(i int) bool { return list[i].Path >= item.Path })
	list = append(list, pathID{})
	copy(list[i+1:], list[i:])
	list[i] = item
	return list
}

func cloneIDs(ids []uint64) []uint64 {
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}
