package xsync

import (
	"time"

	"github.com/lspecian/vexfs-sub008/internal/crdt"
	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// Hint selects how a detected conflict should be resolved, per spec.md
// §4.8's {StrongConsensus, LastWriterWins, CRDTMerge, Custom} set.
type Hint int

const (
	HintStrongConsensus Hint = iota
	HintLastWriterWins
	HintCRDTMerge
	HintCustom
)

func (h Hint) String() string {
	switch h {
	case HintStrongConsensus:
		return "strong_consensus"
	case HintLastWriterWins:
		return "last_writer_wins"
	case HintCRDTMerge:
		return "crdt_merge"
	case HintCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Candidate is one side of a detected conflict: a value observed at a
// point in the plane's vector clock and wall-clock time.
type Candidate struct {
	Value     interface{}
	Clock     Clock
	Timestamp time.Time
	NodeID    crdt.NodeID
}

// CustomResolver lets a caller supply domain-specific resolution logic for
// HintCustom, per spec.md §4.8's "Custom" escape hatch.
type CustomResolver func(a, b Candidate) (Candidate, error)

// Resolver dispatches conflict resolution by Hint.
type Resolver struct {
	custom CustomResolver
}

// NewResolver builds a Resolver. custom may be nil if HintCustom is never
// used.
func NewResolver(custom CustomResolver) *Resolver {
	return &Resolver{custom: custom}
}

// ErrRequiresConsensus is returned by Resolve for HintStrongConsensus:
// local resolution is not possible, the caller must route the conflict
// through internal/consensus.Node.ProposeCRDTMerge (or an equivalent
// replicated decision) instead.
var ErrRequiresConsensus = errs.Wrap(errs.ErrConflict, "xsync", "requires-consensus")

// Resolve picks a winner between a and b per hint. For HintCRDTMerge, the
// candidates' Value must be *crdt.State of matching Kind; the returned
// Candidate's Value is the merged state.
func (r *Resolver) Resolve(hint Hint, a, b Candidate) (Candidate, error) {
	switch hint {
	case HintStrongConsensus:
		return Candidate{}, ErrRequiresConsensus

	case HintLastWriterWins:
		return resolveLWW(a, b), nil

	case HintCRDTMerge:
		return resolveCRDTMerge(a, b)

	case HintCustom:
		if r.custom == nil {
			return Candidate{}, errs.Wrap(errs.ErrInvalidArgument, "xsync", "resolve-custom-unset")
		}
		return r.custom(a, b)

	default:
		return Candidate{}, errs.Wrap(errs.ErrInvalidArgument, "xsync", "resolve-unknown-hint")
	}
}

// resolveLWW applies the same vector-clock-first, wall-clock-then-node-id
// fallback precedence as crdt.LWWRegister.Merge (spec.md §9 Open Question).
func resolveLWW(a, b Candidate) Candidate {
	switch crdt.Compare(a.Clock, b.Clock) {
	case crdt.After, crdt.Equal:
		return a
	case crdt.Before:
		return b
	default: // Concurrent
		if b.Timestamp.After(a.Timestamp) || (b.Timestamp.Equal(a.Timestamp) && b.NodeID > a.NodeID) {
			return b
		}
		return a
	}
}

func resolveCRDTMerge(a, b Candidate) (Candidate, error) {
	aState, ok := a.Value.(*crdt.State)
	if !ok {
		return Candidate{}, errs.Wrap(errs.ErrInvalidArgument, "xsync", "resolve-crdt-merge-type-a")
	}
	bState, ok := b.Value.(*crdt.State)
	if !ok {
		return Candidate{}, errs.Wrap(errs.ErrInvalidArgument, "xsync", "resolve-crdt-merge-type-b")
	}
	if err := aState.Merge(bState); err != nil {
		return Candidate{}, err
	}
	return Candidate{Value: aState, Clock: Join(a.Clock, b.Clock), Timestamp: a.Timestamp, NodeID: a.NodeID}, nil
}
