package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
	"github.com/lspecian/vexfs-sub008/internal/obs"
)

// Config bounds staging-buffer flush behavior, sourced from spec.md §6's
// `journal.max_segment_bytes` / `journal.sync_interval_ms` /
// `journal.max_size_bytes` keys.
type Config struct {
	Dir             string
	MaxSegmentBytes int64
	SyncIntervalMS  int64
	MaxJournalBytes int64
}

// Journal is the append-only, segmented, checksummed event log from
// spec.md §4.2, grounded on the teacher's wal.WAL append path
// (lock, serialize, write, flush, fsync as one durability step) but
// batching up to a group-commit boundary instead of fsyncing every
// single entry, per spec.md §4.2's "Group commit."
type Journal struct {
	cfg     Config
	metrics *obs.Metrics

	mu           sync.Mutex
	staging      []*event.Event
	stagingBytes int64
	nextSegID    uint64
	prevChecksum uint64
	globalSeq    uint64
	tail         uint64
	totalBytes   int64
	closed       bool
	readOnly     bool

	recordsMu sync.RWMutex
	records   map[uint64]*event.Event
	index     *Indexer

	recoveredFromTear bool

	breaker    *obs.CircuitBreaker
	flushTimer *time.Timer
}

// Open creates or resumes a Journal rooted at cfg.Dir. Resuming runs
// Replay (see replay.go) to recover tail sequence and prevChecksum from
// whatever segments already exist.
func Open(cfg Config, metrics *obs.Metrics) (*Journal, error) {
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = 4 << 20
	}
	if cfg.SyncIntervalMS <= 0 {
		cfg.SyncIntervalMS = 50
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errs.Wrap(err, "journal", "open-mkdir")
	}

	j := &Journal{cfg: cfg, metrics: metrics}
	j.breaker = obs.NewJournalIOBreaker(metrics, func() { j.readOnly = true })
	if err := j.replayOnOpen(); err != nil {
		return nil, err
	}
	j.flushTimer = time.AfterFunc(time.Duration(cfg.SyncIntervalMS)*time.Millisecond, j.timerFlush)
	return j, nil
}

// Append assigns e a global sequence number and stages it for the next
// flush. Flush happens immediately if e.Flags carries FlagAtomic, if the
// staging buffer has crossed MaxSegmentBytes, or at the next group-commit
// timer tick, per spec.md §4.2.
func (j *Journal) Append(ctx context.Context, e *event.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errs.Wrap(errs.ErrInvalidArgument, "journal", "append-closed")
	}
	if j.readOnly {
		return errs.Wrap(errs.ErrIoFailed, "journal", "append-read-only")
	}

	j.globalSeq++
	e.GlobalSequence = j.globalSeq
	if e.EventID == 0 {
		e.EventID = j.globalSeq
	}

	j.staging = append(j.staging, e)
	j.stagingBytes += estimatedSize(e)
	if j.metrics != nil {
		j.metrics.JournalAppends.Inc()
	}

	forceFlush := e.Flags.Has(event.FlagAtomic) || j.stagingBytes >= j.cfg.MaxSegmentBytes
	if forceFlush {
		return j.flushLocked()
	}
	return nil
}

// Sync forces an immediate flush of any staged events, per spec.md §4.2's
// "explicit sync" trigger.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) timerFlush() {
	j.mu.Lock()
	err := j.flushLocked()
	closed := j.closed
	j.mu.Unlock()
	if !closed {
		j.flushTimer.Reset(time.Duration(j.cfg.SyncIntervalMS) * time.Millisecond)
	}
	_ = err // a timer-driven flush failure surfaces on the next explicit Append/Sync call
}

// flushLocked writes the staging buffer as one segment. Flush is the only
// point at which visibility changes, per spec.md §4.2: the journal's tail
// only advances here. Caller must hold j.mu.
//
// Before writing, it enforces cfg.MaxJournalBytes (spec.md §6's
// "journal.max_size_bytes" compaction trigger): once on-disk segment bytes
// would cross the cap, the journal has no compaction path (replay always
// rebuilds from genesis, see DESIGN.md), so it escalates to read-only
// rather than growing unboundedly, the same backpressure it already
// applies to fsync failures.
func (j *Journal) flushLocked() error {
	if len(j.staging) == 0 {
		return nil
	}
	if j.cfg.MaxJournalBytes > 0 && j.totalBytes+j.stagingBytes > j.cfg.MaxJournalBytes {
		j.readOnly = true
		return errs.Wrap(errs.ErrBusy, "journal", "flush-over-max-size")
	}

	segID := j.nextSegID
	path := j.segmentPath(segID)
	var checksum uint64
	err := j.breaker.Execute(context.Background(), func() error {
		f, err := syncedFile(path)
		if err != nil {
			return err
		}
		hdr := segmentHeader{SegmentID: segID, PrevChecksum: j.prevChecksum, CreatedNS: time.Now().UnixNano()}
		sum, err := writeSegment(f, hdr, j.staging)
		if err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return errs.Wrap(err, "journal", "flush-fsync")
		}
		if err := f.Close(); err != nil {
			return errs.Wrap(err, "journal", "flush-close")
		}
		checksum = sum
		return nil
	})
	if err != nil {
		return err
	}

	flushedBytes := j.stagingBytes
	flushedCount := len(j.staging)
	j.tail = j.staging[len(j.staging)-1].GlobalSequence
	j.prevChecksum = checksum
	j.nextSegID++
	j.totalBytes += flushedBytes

	j.recordsMu.Lock()
	for _, e := range j.staging {
		j.records[e.EventID] = e
		j.index.IndexEvent(e)
	}
	j.recordsMu.Unlock()

	j.staging = nil
	j.stagingBytes = 0

	if j.metrics != nil {
		j.metrics.JournalFlushes.Inc()
		j.metrics.JournalFlushBytes.Observe(float64(flushedBytes))
		j.metrics.JournalSegments.Set(float64(j.nextSegID))
	}
	_ = flushedCount

	return nil
}

// LatestSequence reports the tail sequence: the highest GlobalSequence
// durable on disk. Unflushed staged events are not yet visible, matching
// spec.md §4.2's "Flush is the only point at which visibility changes."
func (j *Journal) LatestSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tail
}

// Close flushes any pending events and stops the group-commit timer.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.flushTimer != nil {
		j.flushTimer.Stop()
	}
	return j.flushLocked()
}

// ReadOnly reports whether an fsync failure has degraded the journal to
// read-only mode, per spec.md §4.2's "fsync failures are escalated to
// read-only mode."
func (j *Journal) ReadOnly() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readOnly
}

// RecoveredFromTear reports whether Open's replay discarded a torn segment,
// the signal spec.md §4.11 uses to distinguish a crash recovery (Recovering
// branch) from an ordinary restart where the prior shutdown flushed and
// closed cleanly.
func (j *Journal) RecoveredFromTear() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recoveredFromTear
}

func (j *Journal) segmentPath(id uint64) string {
	return filepath.Join(j.cfg.Dir, fmt.Sprintf("segment-%020d.vxj", id))
}

func (j *Journal) snapshotPath(id uint64) string {
	return filepath.Join(j.cfg.Dir, fmt.Sprintf("snapshot-%020d.vxs", id))
}

// estimatedSize approximates an event's on-disk footprint for the
// MaxSegmentBytes trigger without paying for a full Encode on every
// Append.
func estimatedSize(e *event.Event) int64 {
	return int64(64 + len(e.Payload) + len(e.Metadata) + 32*len(e.CausalityLinks))
}
