package event

import "github.com/lspecian/vexfs-sub008/internal/errs"

// WithParent attaches a causal parent, matching spec.md §3's "an event may
// declare a parent_event_id establishing a single-predecessor causal
// link".
func (e *Event) WithParent(parentID uint64) *Event {
	e.ParentEventID = parentID
	e.HasParent = true
	e.Flags |= FlagCausal
	return e
}

// WithCausalityLinks records additional, non-parent causal dependencies
// (spec.md §3 "causality_links: zero or more additional predecessors for
// fan-in joins").
func (e *Event) WithCausalityLinks(ids ...uint64) *Event {
	e.CausalityLinks = append(e.CausalityLinks, ids...)
	if len(ids) > 0 {
		e.Flags |= FlagCausal
	}
	return e
}

// Predecessors returns every event id this event causally depends on: the
// parent (if any) followed by the causality links, in declaration order.
func (e *Event) Predecessors() []uint64 {
	out := make([]uint64, 0, len(e.CausalityLinks)+1)
	if e.HasParent {
		out = append(out, e.ParentEventID)
	}
	out = append(out, e.CausalityLinks...)
	return out
}

// Chain is an in-memory causal DAG used to validate the acyclicity
// invariant from spec.md §3 ("the causality graph induced by
// parent_event_id and causality_links over a chain id is acyclic") before
// a batch of events is handed to the journal.
type Chain struct {
	byID map[uint64]*Event
}

// NewChain builds a Chain from a batch of events sharing (or not) a
// causality_chain_id; the caller is responsible for scoping the batch.
func NewChain(events []*Event) *Chain {
	c := &Chain{byID: make(map[uint64]*Event, len(events))}
	for _, e := range events {
		c.byID[e.EventID] = e
	}
	return c
}

// Validate walks every event's predecessor edges and fails if it finds a
// cycle or a dangling reference to an event id outside the known set (the
// latter is permitted for predecessors that are known to already be
// durable in the journal, so Validate takes a set of ids assumed
// externally resolvable).
func (c *Chain) Validate(externallyResolvable map[uint64]struct{}) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uint64]int, len(c.byID))
	var visit func(id uint64) error
	visit = func(id uint64) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return errs.Wrap(errs.ErrCorrupt, "event", "causality-cycle")
		}
		color[id] = gray
		if e, ok := c.byID[id]; ok {
			for _, pred := range e.Predecessors() {
				if pred == id {
					continue
				}
				if _, known := c.byID[pred]; !known {
					if _, resolvable := externallyResolvable[pred]; resolvable {
						continue
					}
					return errs.Wrap(errs.ErrCorrupt, "event", "causality-dangling")
				}
				if err := visit(pred); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range c.byID {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
