package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/event"
)

func mkEvent(t event.Type, path string) *event.Event {
	return &event.Event{
		Type:     t,
		Category: t.Category(),
		Priority: event.PriorityNormal,
		Context:  event.FilesystemContext{Path: path},
	}
}

func openTestJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(Config{Dir: dir, MaxSegmentBytes: 1 << 20, SyncIntervalMS: 1000}, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	return j
}

func TestSegmentWriteReadRoundTrip(t *testing.T) {
	events := []*event.Event{
		{EventID: 1, GlobalSequence: 1, Type: event.TypeFilesystemCreate, Category: event.CategoryFilesystem, Context: event.FilesystemContext{Path: "/a"}},
		{EventID: 2, GlobalSequence: 2, Type: event.TypeFilesystemWrite, Category: event.CategoryFilesystem, Context: event.FilesystemContext{Path: "/a"}},
	}

	dir := t.TempDir()
	f, err := syncedFile(filepath.Join(dir, "segment-00000000000000000000.vxj"))
	if err != nil {
		t.Fatalf("create segment file: %v", err)
	}
	hdr := segmentHeader{SegmentID: 0, PrevChecksum: 0, CreatedNS: 1}
	checksum, err := writeSegment(f, hdr, events)
	if err != nil {
		t.Fatalf("write segment: %v", err)
	}
	f.Close()

	rf, err := os.Open(filepath.Join(dir, "segment-00000000000000000000.vxj"))
	if err != nil {
		t.Fatalf("reopen segment: %v", err)
	}
	defer rf.Close()

	result, err := readSegment(rf)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if result.Torn {
		t.Fatalf("expected a clean segment, got torn")
	}
	if result.Checksum != checksum {
		t.Fatalf("checksum mismatch: got %d want %d", result.Checksum, checksum)
	}
	if len(result.Events) != 2 || result.Events[0].EventID != 1 || result.Events[1].EventID != 2 {
		t.Fatalf("unexpected events: %+v", result.Events)
	}
}

func TestSegmentTornTailDetected(t *testing.T) {
	events := []*event.Event{mkEvent(event.TypeFilesystemCreate, "/a")}
	events[0].EventID = 1
	events[0].GlobalSequence = 1

	dir := t.TempDir()
	path := filepath.Join(dir, "segment-00000000000000000000.vxj")
	f, err := syncedFile(path)
	if err != nil {
		t.Fatalf("create segment file: %v", err)
	}
	if _, err := writeSegment(f, segmentHeader{SegmentID: 0}, events); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw segment: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF // corrupt the trailer magic
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("rewrite corrupted segment: %v", err)
	}

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen segment: %v", err)
	}
	defer rf.Close()

	result, err := readSegment(rf)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if !result.Torn {
		t.Fatalf("expected torn segment after trailer corruption")
	}
}

func TestJournalAppendFlushSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	j := openTestJournal(t, dir)

	for i := 0; i < 3; i++ {
		e := mkEvent(event.TypeFilesystemWrite, "/dir/file")
		if err := j.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	tailBefore := j.LatestSequence()
	if tailBefore != 3 {
		t.Fatalf("expected tail 3, got %d", tailBefore)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2 := openTestJournal(t, dir)
	defer j2.Close()
	if j2.LatestSequence() != tailBefore {
		t.Fatalf("expected recovered tail %d, got %d", tailBefore, j2.LatestSequence())
	}

	events, err := j2.Hydrate(context.Background(), []uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 hydrated events, got %d", len(events))
	}
}

func TestJournalReplayTruncatesAtTornSegment(t *testing.T) {
	dir := t.TempDir()
	j := openTestJournal(t, dir)

	e1 := mkEvent(event.TypeFilesystemWrite, "/dir/file")
	e1.Flags = event.FlagAtomic
	if err := j.Append(context.Background(), e1); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	e2 := mkEvent(event.TypeFilesystemWrite, "/dir/file")
	e2.Flags = event.FlagAtomic
	if err := j.Append(context.Background(), e2); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Corrupt the second segment's trailer to simulate a torn tail.
	path := j.segmentPath(1)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment 1: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("corrupt segment 1: %v", err)
	}

	j2 := openTestJournal(t, dir)
	defer j2.Close()
	if j2.LatestSequence() != 1 {
		t.Fatalf("expected replay to truncate at segment 0 (tail 1), got %d", j2.LatestSequence())
	}
}

func TestIndexerRebuildIsBitIdentical(t *testing.T) {
	events := []*event.Event{
		{EventID: 1, GlobalSequence: 1, Type: event.TypeFilesystemWrite, Category: event.CategoryFilesystem, Context: event.FilesystemContext{Path: "/a/b"}},
		{EventID: 2, GlobalSequence: 2, Type: event.TypeGraphNodeCreate, Category: event.CategoryGraph, Context: event.GraphContext{NodeID: 1, Op: "create"}},
		{EventID: 3, GlobalSequence: 3, Type: event.TypeFilesystemWrite, Category: event.CategoryFilesystem, Context: event.FilesystemContext{Path: "/a/c"}},
	}

	build := func() *Indexer {
		idx := NewIndexer()
		for _, e := range events {
			idx.IndexEvent(e)
		}
		return idx
	}

	a := build()
	b := build()

	aIDs := a.ByPathPrefix("/a")
	bIDs := b.ByPathPrefix("/a")
	if len(aIDs) != 2 || len(bIDs) != 2 {
		t.Fatalf("expected 2 ids under /a, got %v and %v", aIDs, bIDs)
	}
	for i := range aIDs {
		if aIDs[i] != bIDs[i] {
			t.Fatalf("rebuild mismatch at %d: %v vs %v", i, aIDs, bIDs)
		}
	}

	if got := a.ByType(event.TypeGraphNodeCreate); len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected ByType result: %v", got)
	}
	if got := a.ByCategory(event.CategoryFilesystem); len(got) != 2 {
		t.Fatalf("unexpected ByCategory result: %v", got)
	}
}

func TestJournalMaxSizeBytesEscalatesToReadOnly(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir, MaxSegmentBytes: 1 << 20, SyncIntervalMS: 1000, MaxJournalBytes: 1}, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	e := mkEvent(event.TypeFilesystemWrite, "/dir/file")
	if err := j.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Sync(); err == nil {
		t.Fatalf("expected sync to fail once the journal exceeds MaxJournalBytes")
	}
	if !j.ReadOnly() {
		t.Fatalf("expected journal to escalate to read-only after exceeding MaxJournalBytes")
	}

	if err := j.Append(context.Background(), mkEvent(event.TypeFilesystemWrite, "/dir/file2")); err == nil {
		t.Fatalf("expected append to a read-only journal to fail")
	}
}

func TestJournalMaxSizeBytesPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	j := openTestJournal(t, dir)
	if err := j.Append(context.Background(), mkEvent(event.TypeFilesystemWrite, "/dir/file")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := Open(Config{Dir: dir, MaxSegmentBytes: 1 << 20, SyncIntervalMS: 1000, MaxJournalBytes: 1}, nil)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j2.Close()

	if err := j2.Append(context.Background(), mkEvent(event.TypeFilesystemWrite, "/dir/file2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j2.Sync(); err == nil {
		t.Fatalf("expected sync to fail: replayed totalBytes should already count toward MaxJournalBytes")
	}
}
