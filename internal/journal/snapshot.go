package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/lspecian/vexfs-sub008/internal/errs"
)

const (
	snapshotMagic   = "VXS1"
	snapshotTrailer = "VXSE"
)

// SnapshotProvider produces a serialized summary of live, non-journal
// state for the journal to persist alongside its segments, per spec.md
// §4.2's "Snapshots": "a canonical summary of live state (open
// transactions, CRDT values, HNSW entrypoint, graph metadata digest)."
//
// The journal takes no concrete dependency on crdt/hnsw/graph; whatever
// owns those subsystems (the root package's Mount) implements this
// interface and hands the journal an opaque blob to persist and later
// hand back unopened at replay time.
type SnapshotProvider interface {
	Snapshot() ([]byte, error)
}

// Snapshot writes a new snapshot segment covering every event durable up
// to the current tail, via provider.Snapshot(). The snapshot's filename
// encodes that tail sequence; replayOnOpen does not use it to skip any
// segments.
func (j *Journal) Snapshot(provider SnapshotProvider) error {
	j.mu.Lock()
	if err := j.flushLocked(); err != nil {
		j.mu.Unlock()
		return err
	}
	tail := j.tail
	j.mu.Unlock()

	blob, err := provider.Snapshot()
	if err != nil {
		return errs.Wrap(err, "journal", "snapshot-provider")
	}

	path := j.snapshotPath(tail)
	f, err := syncedFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	body.WriteString(snapshotMagic)
	binary.Write(&body, binary.LittleEndian, tail)
	binary.Write(&body, binary.LittleEndian, uint32(len(blob)))
	body.Write(blob)

	checksum := xxhash.Sum64(body.Bytes())
	if _, err := f.Write(body.Bytes()); err != nil {
		return errs.Wrap(err, "journal", "snapshot-write-body")
	}
	var trailer bytes.Buffer
	binary.Write(&trailer, binary.LittleEndian, checksum)
	trailer.WriteString(snapshotTrailer)
	if _, err := f.Write(trailer.Bytes()); err != nil {
		return errs.Wrap(err, "journal", "snapshot-write-trailer")
	}
	return f.Sync()
}

// snapshotReadResult is a successfully parsed snapshot.
type snapshotReadResult struct {
	TailSequence uint64
	Blob         []byte
}

// readSnapshot parses one snapshot file, validating its trailer checksum.
func readSnapshot(r io.Reader) (*snapshotReadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(err, "journal", "read-snapshot-io")
	}
	const trailerLen = 8 + 4
	if len(data) < 4+8+4+trailerLen {
		return nil, errs.Wrap(errs.ErrCorrupt, "journal", "read-snapshot-short")
	}
	if string(data[:4]) != snapshotMagic {
		return nil, errs.Wrap(errs.ErrCorrupt, "journal", "read-snapshot-bad-magic")
	}
	body := data[:len(data)-trailerLen]
	trailer := data[len(data)-trailerLen:]
	wantChecksum := binary.LittleEndian.Uint64(trailer[:8])
	if string(trailer[8:]) != snapshotTrailer || xxhash.Sum64(body) != wantChecksum {
		return nil, errs.Wrap(errs.ErrCorrupt, "journal", "read-snapshot-checksum")
	}

	r2 := bytes.NewReader(body[4:])
	var tail uint64
	var blobLen uint32
	binary.Read(r2, binary.LittleEndian, &tail)
	binary.Read(r2, binary.LittleEndian, &blobLen)
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(r2, blob); err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "journal", "read-snapshot-blob")
	}
	return &snapshotReadResult{TailSequence: tail, Blob: blob}, nil
}

// latestSnapshot returns the highest-tail snapshot file in dir, if any.
func latestSnapshot(dir string) (*snapshotReadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(err, "journal", "list-snapshots")
	}
	var tails []uint64
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, "snapshot-") || !strings.HasSuffix(name, ".vxs") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "snapshot-"), ".vxs")
		tail, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		tails = append(tails, tail)
	}
	if len(tails) == 0 {
		return nil, nil
	}
	sort.Slice(tails, func(i, j int) bool { return tails[i] < tails[j] })
	latest := tails[len(tails)-1]

	f, err := os.Open(filepath.Join(dir, fmt.Sprintf("snapshot-%020d.vxs", latest)))
	if err != nil {
		return nil, errs.Wrap(err, "journal", "open-snapshot")
	}
	defer f.Close()
	return readSnapshot(f)
}

// LastSnapshot returns the most recently written snapshot blob and its
// tail sequence, or nil if none exists. Replay does not call it.
func (j *Journal) LastSnapshot() ([]byte, uint64, error) {
	snap, err := latestSnapshot(j.cfg.Dir)
	if err != nil {
		return nil, 0, err
	}
	if snap == nil {
		return nil, 0, nil
	}
	return snap.Blob, snap.TailSequence, nil
}
