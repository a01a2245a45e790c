package xsync

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/crdt"
	"github.com/lspecian/vexfs-sub008/internal/event"
)

func TestClockHappensBeforeAndConcurrent(t *testing.T) {
	a := Clock{"p1": 1}
	b := Clock{"p1": 2}
	if !HappensBefore(a, b) {
		t.Fatalf("expected a before b")
	}
	c := Clock{"p2": 1}
	if !Concurrent(a, c) {
		t.Fatalf("expected a and c concurrent")
	}
}

func TestResolveLastWriterWinsPrefersLaterConcurrent(t *testing.T) {
	r := NewResolver(nil)
	now := time.Now()
	a := Candidate{Value: "a", Clock: Clock{"p1": 1}, Timestamp: now, NodeID: "p1"}
	b := Candidate{Value: "b", Clock: Clock{"p2": 1}, Timestamp: now.Add(time.Second), NodeID: "p2"}

	winner, err := r.Resolve(HintLastWriterWins, a, b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if winner.Value != "b" {
		t.Fatalf("expected later write b to win, got %v", winner.Value)
	}
}

func TestResolveStrongConsensusDefersToConsensusLayer(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(HintStrongConsensus, Candidate{}, Candidate{})
	if err == nil {
		t.Fatalf("expected ErrRequiresConsensus")
	}
}

func TestResolveCRDTMergeCombinesCounters(t *testing.T) {
	r := NewResolver(nil)
	a, _ := crdt.New(crdt.KindGCounter, "p1")
	ga, _ := a.GCounter()
	ga.Increment("p1", 2)

	b, _ := crdt.New(crdt.KindGCounter, "p2")
	gb, _ := b.GCounter()
	gb.Increment("p2", 5)

	winner, err := r.Resolve(HintCRDTMerge, Candidate{Value: a}, Candidate{Value: b})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	merged := winner.Value.(*crdt.State)
	mg, _ := merged.GCounter()
	if mg.Value() != 7 {
		t.Fatalf("expected merged value 7, got %d", mg.Value())
	}
}

func TestResolveCustomDispatches(t *testing.T) {
	called := false
	r := NewResolver(func(a, b Candidate) (Candidate, error) {
		called = true
		return a, nil
	})
	if _, err := r.Resolve(HintCustom, Candidate{}, Candidate{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !called {
		t.Fatalf("expected custom resolver to be invoked")
	}
}

type fakeLog struct {
	latest uint64
	events []*event.Event
}

func (f *fakeLog) LatestSequence() uint64 { return f.latest }

func (f *fakeLog) Fetch(ctx context.Context, fromSeq, toSeq uint64) ([]*event.Event, error) {
	var out []*event.Event
	for _, e := range f.events {
		if e.GlobalSequence > fromSeq && e.GlobalSequence <= toSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeApplier struct {
	applied  []*event.Event
	snapshot string
}

func (f *fakeApplier) ApplyEvent(e *event.Event) error {
	f.applied = append(f.applied, e)
	return nil
}

func (f *fakeApplier) ApplySnapshot(r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.snapshot = string(buf)
	return nil
}

type fakeSnapshotSource struct{}

func (fakeSnapshotSource) OpenSnapshot(ctx context.Context) (io.ReadCloser, uint64, error) {
	return io.NopCloser(strings.NewReader("snapshot-bytes")), 100, nil
}

func TestRecoveryCatchUpByLogShipping(t *testing.T) {
	log := &fakeLog{latest: 3, events: []*event.Event{
		{GlobalSequence: 1}, {GlobalSequence: 2}, {GlobalSequence: 3},
	}}
	applier := &fakeApplier{}
	rec := NewRecovery(log, nil, applier, nil)

	if err := rec.CatchUp(context.Background(), 1); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if len(applier.applied) != 2 {
		t.Fatalf("expected 2 events applied, got %d", len(applier.applied))
	}
}

func TestRecoveryCatchUpBySnapshotWhenGapTooLarge(t *testing.T) {
	log := &fakeLog{latest: LogShipThreshold + 1}
	applier := &fakeApplier{}
	rec := NewRecovery(log, fakeSnapshotSource{}, applier, nil)

	if err := rec.CatchUp(context.Background(), 0); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if applier.snapshot != "snapshot-bytes" {
		t.Fatalf("expected snapshot applied, got %q", applier.snapshot)
	}
}
