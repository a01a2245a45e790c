package vexfs

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/integration"
	"github.com/lspecian/vexfs-sub008/internal/query"
)

func TestMountUnmountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if m.State() != StateMounted {
		t.Fatalf("expected StateMounted, got %v", m.State())
	}
	if err := m.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	if m.State() != StateUnmounted {
		t.Fatalf("expected StateUnmounted, got %v", m.State())
	}
}

func TestMountRecoversPriorJournalState(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if _, err := m.Intercept("/plain/file.txt", []byte("hello")); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	waitFor(t, func() bool { return m.journal.LatestSequence() > 0 })
	if err := m.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	tailBefore := m.journal.LatestSequence()
	if err := m.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	m2, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer m2.Unmount()
	if m2.journal.LatestSequence() != tailBefore {
		t.Fatalf("expected recovered tail %d, got %d", tailBefore, m2.journal.LatestSequence())
	}
}

func TestMountInterceptGraphWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer m.Unmount()

	result, err := m.Intercept(".vexgraph/nodes/a", []byte("{}"))
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if result.Kind != integration.KindGraph {
		t.Fatalf("expected KindGraph, got %v", result.Kind)
	}
	if m.Graph().NodeCount() != 1 {
		t.Fatalf("expected 1 node, got %d", m.Graph().NodeCount())
	}
}

func TestMountInterceptVectorWriteIndexesHNSW(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir), WithVectorDimension(4))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer m.Unmount()

	raw := encodeFloat32([]float32{1, 0, 0, 0})
	result, err := m.Intercept(".vexvec/v1", raw)
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if result.Kind != integration.KindVector {
		t.Fatalf("expected KindVector, got %v", result.Kind)
	}

	if m.VectorIndex() == nil {
		t.Fatalf("expected a configured HNSW index")
	}
	waitFor(t, func() bool { return m.VectorIndex().Size() == 1 })
}

func TestMountQueryFindsInterceptedWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer m.Unmount()

	if _, err := m.Intercept("/a/b.txt", []byte("x")); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	waitFor(t, func() bool { return m.journal.LatestSequence() > 0 })
	if err := m.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	result, err := m.Query().PathPattern("/a/*").Execute(context.Background())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 matching event, got %d", len(result.Events))
	}
}

func TestMountSubscribeReceivesPublishedEvent(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer m.Unmount()

	sub, err := m.Subscribe(query.Filter{}, 4, false, false)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := m.Intercept("/a/b.txt", []byte("x")); err != nil {
		t.Fatalf("intercept: %v", err)
	}

	select {
	case msg := <-sub.Messages:
		if msg.Event == nil {
			t.Fatalf("expected a non-nil event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the published event")
	}
}

func TestMountSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(WithDir(dir))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer m.Unmount()

	if _, err := m.Intercept(".vexgraph/nodes/a", []byte("{}")); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	waitFor(t, func() bool { return m.journal.LatestSequence() > 0 })
	if err := m.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	blob, tail, err := m.journal.LastSnapshot()
	if err != nil {
		t.Fatalf("last snapshot: %v", err)
	}
	if len(blob) == 0 {
		t.Fatalf("expected a non-empty snapshot blob")
	}
	if tail != m.journal.LatestSequence() {
		t.Fatalf("expected snapshot tail %d to match journal tail %d", tail, m.journal.LatestSequence())
	}
}

func encodeFloat32(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// waitFor polls cond until it reports true or 2 seconds elapse, since the
// plane-drain goroutine appends to the journal asynchronously.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within timeout")
}
