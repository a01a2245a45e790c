// Package query implements the Query & Stream API from spec.md §4.9 (C12):
// a filter over the event model resolved against the journal's secondary
// indexes, plus a subscription-based streaming surface. Adapted from the
// teacher's libravdb.QueryBuilder/FilterChain fluent builder and
// internal/filter predicate tree, re-pointed from vector metadata
// predicates onto event attributes.
package query

import (
	"path"
	"strings"

	"github.com/lspecian/vexfs-sub008/internal/event"
)

// TimeRange bounds an event's timestamp, both ends inclusive; a zero value
// on either end means unbounded on that side.
type TimeRange struct {
	FromNanos int64
	ToNanos   int64
}

func (r TimeRange) contains(nanos int64) bool {
	if r.FromNanos != 0 && nanos < r.FromNanos {
		return false
	}
	if r.ToNanos != 0 && nanos > r.ToNanos {
		return false
	}
	return true
}

// Filter is the §4.9 clause set: every field is optional, and a zero-value
// Filter matches every event.
type Filter struct {
	Types        []event.Type
	Categories   []event.Category
	TimeRange    *TimeRange
	Agent        string
	TxID         uint64
	HasTx        bool
	ChainID      uint64
	HasChain     bool
	PathPattern  string
	MinPriority  event.Priority
	Flags        event.Flags
	Tags         []string
	MinRelevance float64
}

// Matches evaluates the full filter against e's content directly. The
// planner uses this as the authoritative predicate after index-assisted
// candidate narrowing, and Stream uses it for live dispatch.
func (f Filter) Matches(e *event.Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if f.TimeRange != nil && !f.TimeRange.contains(e.Timestamp.Nanos) {
		return false
	}
	if f.Agent != "" {
		ac, ok := e.Context.(event.AgentContext)
		if !ok || ac.AgentID != f.Agent {
			return false
		}
	}
	if f.HasTx && (!e.HasTx || e.TransactionID != f.TxID) {
		return false
	}
	if f.HasChain && e.CausalityChainID != f.ChainID {
		return false
	}
	if f.PathPattern != "" {
		fc, ok := e.Context.(event.FilesystemContext)
		if !ok {
			return false
		}
		matched, err := path.Match(f.PathPattern, fc.Path)
		if err != nil || !matched {
			return false
		}
	}
	if e.Priority < f.MinPriority {
		return false
	}
	if f.Flags != 0 && !e.Flags.Has(f.Flags) {
		return false
	}
	if len(f.Tags) > 0 && !matchesTags(e, f.Tags) {
		return false
	}
	if f.MinRelevance > 0 && relevanceOf(e) < f.MinRelevance {
		return false
	}
	return true
}

func containsType(types []event.Type, t event.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsCategory(categories []event.Category, c event.Category) bool {
	for _, candidate := range categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// matchesTags requires each requested tag to equal one of the event's
// graph labels, compared case-insensitively (CategoryGraph events carry labels natively;
// other categories have no native tag set, so they never match a non-empty
// tag filter).
func matchesTags(e *event.Event, tags []string) bool {
	gc, ok := e.Context.(event.GraphContext)
	if !ok {
		return false
	}
	for _, want := range tags {
		found := false
		for _, label := range gc.Labels {
			if strings.EqualFold(label, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// relevanceOf extracts a best-effort relevance score. Only
// CategoryObservability events carry a native numeric Value; every other
// category has no notion of relevance and is treated as maximally
// relevant so a MinRelevance clause never silently excludes them.
func relevanceOf(e *event.Event) float64 {
	oc, ok := e.Context.(event.ObservabilityContext)
	if !ok {
		return 1
	}
	return oc.Value
}
