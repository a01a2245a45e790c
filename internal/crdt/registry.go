package crdt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which CRDT a metadata key holds, mirroring the teacher's
// QuantizationType-keyed dispatch in its quantizer registry.
type Kind int

const (
	KindGCounter Kind = iota
	KindPNCounter
	KindLWWRegister
	KindORSet
)

func (k Kind) String() string {
	switch k {
	case KindGCounter:
		return "g_counter"
	case KindPNCounter:
		return "pn_counter"
	case KindLWWRegister:
		return "lww_register"
	case KindORSet:
		return "or_set"
	default:
		return "unknown"
	}
}

// State is the common handle returned by New; concrete CRDT types are
// retrieved with the typed accessors below rather than a type switch at
// every call site.
type State struct {
	Kind Kind
	g    *GCounter
	pn   *PNCounter
	lww  *LWWRegister
	or   *ORSet
}

// New constructs empty CRDT state of the given kind for replica self. The
// initial value for an LWW-Register is nil; callers Set it explicitly.
func New(kind Kind, self NodeID) (*State, error) {
	switch kind {
	case KindGCounter:
		return &State{Kind: kind, g: NewGCounter()}, nil
	case KindPNCounter:
		return &State{Kind: kind, pn: NewPNCounter()}, nil
	case KindLWWRegister:
		return &State{Kind: kind, lww: NewLWWRegister(self, nil)}, nil
	case KindORSet:
		return &State{Kind: kind, or: NewORSet(self)}, nil
	default:
		return nil, fmt.Errorf("crdt: unknown kind %v", kind)
	}
}

func (s *State) GCounter() (*GCounter, bool)     { return s.g, s.g != nil }
func (s *State) PNCounter() (*PNCounter, bool)   { return s.pn, s.pn != nil }
func (s *State) LWWRegister() (*LWWRegister, bool) { return s.lww, s.lww != nil }
func (s *State) ORSet() (*ORSet, bool)           { return s.or, s.or != nil }

// Merge merges other into s in place; both must share the same Kind.
func (s *State) Merge(other *State) error {
	if other == nil {
		return nil
	}
	if s.Kind != other.Kind {
		return fmt.Errorf("crdt: cannot merge mismatched kinds %v and %v", s.Kind, other.Kind)
	}
	switch s.Kind {
	case KindGCounter:
		s.g.Merge(other.g)
	case KindPNCounter:
		s.pn.Merge(other.pn)
	case KindLWWRegister:
		s.lww.Merge(other.lww)
	case KindORSet:
		s.or.Merge(other.or)
	default:
		return fmt.Errorf("crdt: unknown kind %v", s.Kind)
	}
	return nil
}

// The wire types below give State a JSON encoding that survives the
// network, needed for internal/consensus to replicate CRDT merges through
// hashicorp/raft log entries: the concrete types' own fields are
// unexported (state mutation only happens through Merge), so State
// implements json.Marshaler/Unmarshaler directly rather than relying on
// struct-tag reflection.

type tagWire struct {
	Node string `json:"node"`
	Seq  uint64 `json:"seq"`
}

type stateWire struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (s *State) MarshalJSON() ([]byte, error) {
	var data []byte
	var err error

	switch s.Kind {
	case KindGCounter:
		data, err = json.Marshal(counterWireFrom(s.g.counts))
	case KindPNCounter:
		data, err = json.Marshal(struct {
			Inc counterWire `json:"inc"`
			Dec counterWire `json:"dec"`
		}{counterWireFrom(s.pn.inc.counts), counterWireFrom(s.pn.dec.counts)})
	case KindLWWRegister:
		data, err = json.Marshal(struct {
			Value     interface{} `json:"value"`
			Timestamp int64       `json:"timestamp_unix_nano"`
			Node      string      `json:"node"`
			Clock     counterWire `json:"clock"`
		}{s.lww.value, s.lww.timestamp.UnixNano(), string(s.lww.node), counterWireFrom(s.lww.clock)})
	case KindORSet:
		data, err = json.Marshal(struct {
			Self    string                      `json:"self"`
			Seq     uint64                      `json:"seq"`
			Adds    map[string][]tagWire        `json:"adds"`
			Removed map[string][]tagWire        `json:"removed"`
		}{string(s.or.self), s.or.seq, tagSetsToWire(s.or.adds), tagSetsToWire(s.or.removed)})
	default:
		return nil, fmt.Errorf("crdt: cannot marshal unknown kind %v", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateWire{Kind: s.Kind, Data: data})
}

// UnmarshalJSON implements json.Unmarshaler, replacing s's contents.
func (s *State) UnmarshalJSON(raw []byte) error {
	var wire stateWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	s.Kind = wire.Kind

	switch wire.Kind {
	case KindGCounter:
		var counts counterWire
		if err := json.Unmarshal(wire.Data, &counts); err != nil {
			return err
		}
		s.g = &GCounter{counts: counts.toMap()}
	case KindPNCounter:
		var body struct {
			Inc counterWire `json:"inc"`
			Dec counterWire `json:"dec"`
		}
		if err := json.Unmarshal(wire.Data, &body); err != nil {
			return err
		}
		s.pn = &PNCounter{inc: &GCounter{counts: body.Inc.toMap()}, dec: &GCounter{counts: body.Dec.toMap()}}
	case KindLWWRegister:
		var body struct {
			Value     interface{} `json:"value"`
			Timestamp int64       `json:"timestamp_unix_nano"`
			Node      string      `json:"node"`
			Clock     counterWire `json:"clock"`
		}
		if err := json.Unmarshal(wire.Data, &body); err != nil {
			return err
		}
		s.lww = &LWWRegister{
			value:     body.Value,
			timestamp: timeFromUnixNano(body.Timestamp),
			node:      NodeID(body.Node),
			clock:     body.Clock.toMap(),
		}
	case KindORSet:
		var body struct {
			Self    string               `json:"self"`
			Seq     uint64               `json:"seq"`
			Adds    map[string][]tagWire `json:"adds"`
			Removed map[string][]tagWire `json:"removed"`
		}
		if err := json.Unmarshal(wire.Data, &body); err != nil {
			return err
		}
		s.or = &ORSet{
			self:    NodeID(body.Self),
			seq:     body.Seq,
			adds:    tagSetsFromWire(body.Adds),
			removed: tagSetsFromWire(body.Removed),
		}
	default:
		return fmt.Errorf("crdt: cannot unmarshal unknown kind %v", wire.Kind)
	}
	return nil
}

// counterWire is a JSON-safe form of map[NodeID]uint64 (NodeID is a named
// string type, but map keys must round-trip through plain string keys for
// clarity on the wire).
type counterWire map[string]uint64

func (c counterWire) toMap() map[NodeID]uint64 {
	out := make(map[NodeID]uint64, len(c))
	for k, v := range c {
		out[NodeID(k)] = v
	}
	return out
}

func counterWireFrom(m map[NodeID]uint64) counterWire {
	out := make(counterWire, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func timeFromUnixNano(nanos int64) time.Time {
	return time.Unix(0, nanos)
}

func tagSetsToWire(in map[string]map[addTag]struct{}) map[string][]tagWire {
	out := make(map[string][]tagWire, len(in))
	for element, tags := range in {
		wireTags := make([]tagWire, 0, len(tags))
		for tag := range tags {
			wireTags = append(wireTags, tagWire{Node: string(tag.node), Seq: tag.seq})
		}
		out[element] = wireTags
	}
	return out
}

func tagSetsFromWire(in map[string][]tagWire) map[string]map[addTag]struct{} {
	out := make(map[string]map[addTag]struct{}, len(in))
	for element, tags := range in {
		set := make(map[addTag]struct{}, len(tags))
		for _, t := range tags {
			set[addTag{node: NodeID(t.Node), seq: t.Seq}] = struct{}{}
		}
		out[element] = set
	}
	return out
}
