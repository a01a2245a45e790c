package event

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/lspecian/vexfs-sub008/internal/crdt"
	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// contextTag identifies which concrete Context type a canonical encoding
// carries, so Decode can reconstruct the right struct without reflection.
type contextTag uint8

const (
	tagNone contextTag = iota
	tagFilesystem
	tagGraph
	tagVector
	tagAgent
	tagSystem
	tagObservability
)

func tagFor(c Context) contextTag {
	switch c.(type) {
	case FilesystemContext:
		return tagFilesystem
	case GraphContext:
		return tagGraph
	case VectorContext:
		return tagVector
	case AgentContext:
		return tagAgent
	case SystemContext:
		return tagSystem
	case ObservabilityContext:
		return tagObservability
	default:
		return tagNone
	}
}

// Encode produces the canonical on-disk representation of e per spec.md
// §6: a fixed header, followed by length-prefixed context, payload, and
// metadata blobs, followed by a trailing xxhash64-derived checksum that
// covers every byte preceding it. Testable Property 1 from spec.md §8
// requires Decode(Encode(e)) to reconstruct e field-for-field.
func Encode(e *Event) ([]byte, error) {
	ctxTag := tagFor(e.Context)
	var ctxBytes []byte
	var err error
	if ctxTag != tagNone {
		ctxBytes, err = json.Marshal(e.Context)
		if err != nil {
			return nil, errs.Wrap(err, "event", "encode-context")
		}
	}

	buf := new(bytes.Buffer)
	buf.WriteString("VXEV")
	binary.Write(buf, binary.LittleEndian, uint16(1)) // version

	binary.Write(buf, binary.LittleEndian, e.EventID)
	binary.Write(buf, binary.LittleEndian, uint8(e.Plane))
	binary.Write(buf, binary.LittleEndian, e.GlobalSequence)
	binary.Write(buf, binary.LittleEndian, e.LocalSequence)

	binary.Write(buf, binary.LittleEndian, e.Timestamp.Nanos)
	binary.Write(buf, binary.LittleEndian, e.Timestamp.Seq)
	binary.Write(buf, binary.LittleEndian, e.Timestamp.CPU)
	binary.Write(buf, binary.LittleEndian, e.Timestamp.PID)

	binary.Write(buf, binary.LittleEndian, uint16(e.Type))
	binary.Write(buf, binary.LittleEndian, uint8(e.Category))
	binary.Write(buf, binary.LittleEndian, uint8(e.Priority))
	binary.Write(buf, binary.LittleEndian, uint32(e.Flags))

	writeClock(buf, e.Clock)

	binary.Write(buf, binary.LittleEndian, e.HasParent)
	binary.Write(buf, binary.LittleEndian, e.ParentEventID)
	binary.Write(buf, binary.LittleEndian, uint32(len(e.CausalityLinks)))
	for _, id := range e.CausalityLinks {
		binary.Write(buf, binary.LittleEndian, id)
	}
	binary.Write(buf, binary.LittleEndian, e.CausalityChainID)
	binary.Write(buf, binary.LittleEndian, e.HasTx)
	binary.Write(buf, binary.LittleEndian, e.TransactionID)

	binary.Write(buf, binary.LittleEndian, uint8(ctxTag))
	writeBlob(buf, ctxBytes)
	writeBlob(buf, e.Payload)
	writeBlob(buf, e.Metadata)

	sum := xxhash.Sum64(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, sum)

	return buf.Bytes(), nil
}

// Decode reconstructs an Event from its canonical encoding, verifying the
// trailing checksum before touching any field (spec.md §7: a corrupt
// record must be detected, never silently accepted).
func Decode(data []byte) (*Event, error) {
	if len(data) < 8+8 {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "decode-short")
	}
	body := data[:len(data)-8]
	wantSum := binary.LittleEndian.Uint64(data[len(data)-8:])
	if gotSum := xxhash.Sum64(body); gotSum != wantSum {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "checksum-mismatch")
	}

	r := bytes.NewReader(body)
	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != "VXEV" {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "bad-magic")
	}
	var version uint16
	binary.Read(r, binary.LittleEndian, &version)

	e := &Event{}
	var plane, category, priority uint8
	var typ uint16
	var flags uint32

	binary.Read(r, binary.LittleEndian, &e.EventID)
	binary.Read(r, binary.LittleEndian, &plane)
	binary.Read(r, binary.LittleEndian, &e.GlobalSequence)
	binary.Read(r, binary.LittleEndian, &e.LocalSequence)

	binary.Read(r, binary.LittleEndian, &e.Timestamp.Nanos)
	binary.Read(r, binary.LittleEndian, &e.Timestamp.Seq)
	binary.Read(r, binary.LittleEndian, &e.Timestamp.CPU)
	binary.Read(r, binary.LittleEndian, &e.Timestamp.PID)

	binary.Read(r, binary.LittleEndian, &typ)
	binary.Read(r, binary.LittleEndian, &category)
	binary.Read(r, binary.LittleEndian, &priority)
	binary.Read(r, binary.LittleEndian, &flags)

	e.Plane = Plane(plane)
	e.Type = Type(typ)
	e.Category = Category(category)
	e.Priority = Priority(priority)
	e.Flags = Flags(flags)

	clock, err := readClock(r)
	if err != nil {
		return nil, err
	}
	e.Clock = clock

	binary.Read(r, binary.LittleEndian, &e.HasParent)
	binary.Read(r, binary.LittleEndian, &e.ParentEventID)
	var numLinks uint32
	binary.Read(r, binary.LittleEndian, &numLinks)
	if numLinks > 0 {
		e.CausalityLinks = make([]uint64, numLinks)
		for i := range e.CausalityLinks {
			binary.Read(r, binary.LittleEndian, &e.CausalityLinks[i])
		}
	}
	binary.Read(r, binary.LittleEndian, &e.CausalityChainID)
	binary.Read(r, binary.LittleEndian, &e.HasTx)
	binary.Read(r, binary.LittleEndian, &e.TransactionID)

	var ctxTag uint8
	binary.Read(r, binary.LittleEndian, &ctxTag)
	ctxBytes, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	ctx, err := decodeContext(contextTag(ctxTag), ctxBytes)
	if err != nil {
		return nil, err
	}
	e.Context = ctx

	if e.Payload, err = readBlob(r); err != nil {
		return nil, err
	}
	if e.Metadata, err = readBlob(r); err != nil {
		return nil, err
	}

	e.Checksum = uint32(wantSum)
	return e, nil
}

func decodeContext(tag contextTag, raw []byte) (Context, error) {
	if tag == tagNone {
		return nil, nil
	}
	var err error
	switch tag {
	case tagFilesystem:
		var c FilesystemContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	case tagGraph:
		var c GraphContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	case tagVector:
		var c VectorContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	case tagAgent:
		var c AgentContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	case tagSystem:
		var c SystemContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	case tagObservability:
		var c ObservabilityContext
		err = json.Unmarshal(raw, &c)
		return c, wrapDecodeErr(err)
	default:
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "unknown-context-tag")
	}
}

func wrapDecodeErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.ErrCorrupt, "event", "decode-context")
}

func writeBlob(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "read-blob-length")
	}
	if int(n) > r.Len() {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "read-blob-truncated")
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "read-blob-body")
	}
	return out, nil
}

func writeClock(buf *bytes.Buffer, clock crdt.VectorClock) {
	binary.Write(buf, binary.LittleEndian, uint32(len(clock)))
	nodes := make([]string, 0, len(clock))
	for node := range clock {
		nodes = append(nodes, string(node))
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		writeBlob(buf, []byte(node))
		binary.Write(buf, binary.LittleEndian, clock[crdt.NodeID(node)])
	}
}

func readClock(r *bytes.Reader) (crdt.VectorClock, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, errs.Wrap(errs.ErrCorrupt, "event", "read-clock-length")
	}
	if n == 0 {
		return nil, nil
	}
	out := make(crdt.VectorClock, n)
	for i := uint32(0); i < n; i++ {
		nodeBytes, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		var counter uint64
		if err := binary.Read(r, binary.LittleEndian, &counter); err != nil {
			return nil, errs.Wrap(errs.ErrCorrupt, "event", "read-clock-counter")
		}
		out[crdt.NodeID(nodeBytes)] = counter
	}
	return out, nil
}
