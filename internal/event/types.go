// Package event implements the spec.md §3/§9 Event Model (C1): an
// immutable record type with dense per-plane identity, global/local
// sequence numbers, a vector-clock-aware timestamp, a closed type
// enumeration partitioned into categories, a sparse tagged-union context,
// and a causality DAG. Grounded on the teacher's VectorEntry/SearchResult
// value-object shape (libravdb/types.go) generalized from "one flat
// struct" to the tagged union spec.md §9's "Dynamic event contexts" design
// note calls for.
package event

import "github.com/lspecian/vexfs-sub008/internal/crdt"

// Plane distinguishes the kernel-mode and user-mode filesystem
// implementations, per spec.md's GLOSSARY.
type Plane uint8

const (
	PlaneKernel Plane = iota
	PlaneUser
)

func (p Plane) String() string {
	if p == PlaneKernel {
		return "kernel"
	}
	return "user"
}

// Category partitions the closed Type enumeration, per spec.md §3.
type Category uint8

const (
	CategoryFilesystem Category = iota
	CategoryGraph
	CategoryVector
	CategoryAgent
	CategorySystem
	CategoryObservability
)

func (c Category) String() string {
	switch c {
	case CategoryFilesystem:
		return "filesystem"
	case CategoryGraph:
		return "graph"
	case CategoryVector:
		return "vector"
	case CategoryAgent:
		return "agent"
	case CategorySystem:
		return "system"
	case CategoryObservability:
		return "observability"
	default:
		return "unknown"
	}
}

// Type is the closed event-type enumeration from spec.md §3. Each value
// belongs to exactly one Category, checked by Type.Category().
type Type uint16

const (
	TypeFilesystemCreate Type = iota
	TypeFilesystemWrite
	TypeFilesystemDelete
	TypeFilesystemRename
	TypeFilesystemMkdir

	TypeGraphNodeCreate
	TypeGraphNodeUpdate
	TypeGraphNodeDelete
	TypeGraphEdgeCreate
	TypeGraphEdgeDelete
	TypeGraphTraverse

	TypeVectorCreate
	TypeVectorUpdate
	TypeVectorDelete
	TypeVectorSearch

	TypeAgentQuery
	TypeAgentIntent
	TypeAgentAction

	TypeSystemMount
	TypeSystemUnmount
	TypeSystemRecover
	TypeSystemLoad

	TypeObservabilityMetric
	TypeObservabilityAlert
	TypeObservabilityCritical
)

// Category returns the partition this type belongs to.
func (t Type) Category() Category {
	switch {
	case t <= TypeFilesystemMkdir:
		return CategoryFilesystem
	case t <= TypeGraphTraverse:
		return CategoryGraph
	case t <= TypeVectorSearch:
		return CategoryVector
	case t <= TypeAgentAction:
		return CategoryAgent
	case t <= TypeSystemLoad:
		return CategorySystem
	default:
		return CategoryObservability
	}
}

func (t Type) String() string {
	names := [...]string{
		"FilesystemCreate", "FilesystemWrite", "FilesystemDelete", "FilesystemRename", "FilesystemMkdir",
		"GraphNodeCreate", "GraphNodeUpdate", "GraphNodeDelete", "GraphEdgeCreate", "GraphEdgeDelete", "GraphTraverse",
		"VectorCreate", "VectorUpdate", "VectorDelete", "VectorSearch",
		"AgentQuery", "AgentIntent", "AgentAction",
		"SystemMount", "SystemUnmount", "SystemRecover", "SystemLoad",
		"ObservabilityMetric", "ObservabilityAlert", "ObservabilityCritical",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// Priority is the four-level priority from spec.md §3.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Flags is the bitset from spec.md §3.
type Flags uint32

const (
	FlagAtomic Flags = 1 << iota
	FlagTransactional
	FlagCausal
	FlagAgentVisible
	FlagDeterministic
	FlagCompressed
	FlagIndexed
	FlagReplicated
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Timestamp is wall-clock time with a per-CPU tie-breaker, per spec.md §3.
type Timestamp struct {
	Nanos int64
	Seq   uint32
	CPU   uint16
	PID   uint32
}

// Event is the immutable record type from spec.md §3. Once built and
// handed to the journal (spec.md §4.11 "Event lifecycle": Built -> Queued
// -> Assigned-Sequence -> Flushed -> Indexed -> (Replicated) ->
// Observable), an Event is never mutated.
type Event struct {
	EventID        uint64
	Plane          Plane
	GlobalSequence uint64
	LocalSequence  uint64
	Timestamp      Timestamp
	Clock          crdt.VectorClock
	Type           Type
	Category       Category
	Priority       Priority
	Flags          Flags
	Context        Context

	ParentEventID     uint64 // 0 means no parent
	HasParent         bool
	CausalityLinks    []uint64
	CausalityChainID  uint64

	TransactionID uint64
	HasTx         bool

	Payload  []byte
	Metadata []byte

	Checksum uint32
}

// RaftIndex is attached out-of-band once a Replicated event's backing Raft
// log entry commits (spec.md §3 invariant: "if Replicated then a Raft
// commit index is assigned before observation"); it is not part of the
// canonical on-disk encoding because it is only known after the journal
// append.
type RaftIndex = uint64
