package event

import (
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/crdt"
)

// Testable Property 1 from spec.md §8: canonical-encode(decode(E)) = E.

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Event{
		EventID:        42,
		Plane:          PlaneUser,
		GlobalSequence: 7,
		LocalSequence:  3,
		Timestamp:      Timestamp{Nanos: 123456789, Seq: 1, CPU: 2, PID: 999},
		Clock:          crdt.VectorClock{"n1": 3, "n2": 5},
		Type:           TypeVectorCreate,
		Category:       CategoryVector,
		Priority:       PriorityHigh,
		Flags:          FlagAtomic | FlagIndexed,
		Context: VectorContext{
			VectorID: "vec-1",
			Dim:      128,
			DType:    "f32",
			Metric:   "cosine",
		},
		CausalityChainID: 5,
		Payload:          []byte("payload-bytes"),
		Metadata:         []byte(`{"k":"v"}`),
	}
	e.WithParent(41).WithCausalityLinks(10, 11)

	encoded, err := Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.EventID != e.EventID || decoded.GlobalSequence != e.GlobalSequence {
		t.Fatalf("identity mismatch: %+v vs %+v", decoded, e)
	}
	if decoded.Type != e.Type || decoded.Category != e.Category || decoded.Priority != e.Priority {
		t.Fatalf("classification mismatch: %+v", decoded)
	}
	if decoded.Flags != e.Flags {
		t.Fatalf("flags mismatch: got %v want %v", decoded.Flags, e.Flags)
	}
	if !decoded.HasParent || decoded.ParentEventID != 41 {
		t.Fatalf("parent not preserved: %+v", decoded)
	}
	if len(decoded.CausalityLinks) != 2 || decoded.CausalityLinks[0] != 10 || decoded.CausalityLinks[1] != 11 {
		t.Fatalf("causality links not preserved: %v", decoded.CausalityLinks)
	}
	vc, ok := decoded.Context.(VectorContext)
	if !ok {
		t.Fatalf("context type lost: %T", decoded.Context)
	}
	if vc.VectorID != "vec-1" || vc.Dim != 128 {
		t.Fatalf("context fields lost: %+v", vc)
	}
	if string(decoded.Payload) != "payload-bytes" {
		t.Fatalf("payload lost: %q", decoded.Payload)
	}
	if decoded.Clock["n1"] != 3 || decoded.Clock["n2"] != 5 {
		t.Fatalf("clock lost: %v", decoded.Clock)
	}

	reEncoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if len(reEncoded) != len(encoded) {
		t.Fatalf("canonical form not stable: %d vs %d bytes", len(reEncoded), len(encoded))
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	e := &Event{Type: TypeSystemMount, Category: CategorySystem, Context: SystemContext{Component: "journal"}}
	encoded, err := Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded[10] ^= 0xFF
	if _, err := Decode(encoded); err == nil {
		t.Fatalf("expected checksum failure on corrupted bytes")
	}
}

func TestTypeCategoryPartition(t *testing.T) {
	cases := []struct {
		typ  Type
		want Category
	}{
		{TypeFilesystemCreate, CategoryFilesystem},
		{TypeGraphEdgeCreate, CategoryGraph},
		{TypeVectorSearch, CategoryVector},
		{TypeAgentIntent, CategoryAgent},
		{TypeSystemRecover, CategorySystem},
		{TypeObservabilityCritical, CategoryObservability},
	}
	for _, c := range cases {
		if got := c.typ.Category(); got != c.want {
			t.Fatalf("%v.Category() = %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestChainValidateDetectsCycle(t *testing.T) {
	a := &Event{EventID: 1}
	b := &Event{EventID: 2}
	a.WithParent(2)
	b.WithParent(1)

	chain := NewChain([]*Event{a, b})
	if err := chain.Validate(nil); err == nil {
		t.Fatalf("expected cycle detection to fail validation")
	}
}

func TestChainValidateAcceptsExternalPredecessor(t *testing.T) {
	a := &Event{EventID: 1}
	a.WithParent(999) // already durable in the journal, not part of this batch

	chain := NewChain([]*Event{a})
	if err := chain.Validate(map[uint64]struct{}{999: {}}); err != nil {
		t.Fatalf("expected external predecessor to be accepted: %v", err)
	}
}
