package query

import (
	"context"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
)

// Builder provides the fluent query construction interface from spec.md
// §4.9, adapted from the teacher's libravdb.QueryBuilder/FilterChain
// (there: vector + metadata filters; here: the event filter clauses).
type Builder struct {
	planner   *Planner
	filter    Filter
	limit     int
	offset    int
	sortField SortField
	order     SortOrder
}

// NewBuilder starts a fresh query bound to planner.
func NewBuilder(planner *Planner) *Builder {
	return &Builder{planner: planner, limit: 100}
}

func (b *Builder) Types(types ...event.Type) *Builder {
	b.filter.Types = types
	return b
}

func (b *Builder) Categories(categories ...event.Category) *Builder {
	b.filter.Categories = categories
	return b
}

func (b *Builder) TimeRange(fromNanos, toNanos int64) *Builder {
	b.filter.TimeRange = &TimeRange{FromNanos: fromNanos, ToNanos: toNanos}
	return b
}

func (b *Builder) Agent(agentID string) *Builder {
	b.filter.Agent = agentID
	return b
}

func (b *Builder) Tx(txID uint64) *Builder {
	b.filter.TxID = txID
	b.filter.HasTx = true
	return b
}

func (b *Builder) Chain(chainID uint64) *Builder {
	b.filter.ChainID = chainID
	b.filter.HasChain = true
	return b
}

func (b *Builder) PathPattern(pattern string) *Builder {
	b.filter.PathPattern = pattern
	return b
}

func (b *Builder) MinPriority(p event.Priority) *Builder {
	b.filter.MinPriority = p
	return b
}

func (b *Builder) WithFlags(flags event.Flags) *Builder {
	b.filter.Flags = flags
	return b
}

func (b *Builder) Tags(tags ...string) *Builder {
	b.filter.Tags = tags
	return b
}

func (b *Builder) MinRelevance(relevance float64) *Builder {
	b.filter.MinRelevance = relevance
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

func (b *Builder) SortBy(field SortField, order SortOrder) *Builder {
	b.sortField = field
	b.order = order
	return b
}

// Filter returns the filter accumulated so far, for reuse by Stream
// subscriptions built from the same clause set as a query.
func (b *Builder) Filter() Filter {
	return b.filter
}

// Execute runs the accumulated query against the planner.
func (b *Builder) Execute(ctx context.Context) (*Result, error) {
	if b.limit < 0 {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "query", "execute-negative-limit")
	}
	return b.planner.Plan(ctx, b.filter, b.limit, b.offset, b.sortField, b.order)
}
