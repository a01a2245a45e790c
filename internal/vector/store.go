// Package vector implements the content-addressed Vector Record type from
// spec.md §3 (C5): (vector_id, dim, dtype, bytes, metadata), where bytes
// length must equal dim * sizeof(dtype). Adapted from the teacher's
// libravdb.VectorEntry/Collection (dimension/dtype validation,
// created_at/updated_at bookkeeping), extended with an optional owning
// graph node id link per spec.md §3's note that vectors may be linked to a
// property-graph node.
package vector

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// DType is the element encoding of a vector's raw bytes.
type DType uint8

const (
	DTypeFloat32 DType = iota
	DTypeFloat16
	DTypeInt8
)

// Size returns the byte width of one element of this dtype.
func (d DType) Size() int {
	switch d {
	case DTypeFloat32:
		return 4
	case DTypeFloat16:
		return 2
	case DTypeInt8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "f32"
	case DTypeFloat16:
		return "f16"
	case DTypeInt8:
		return "i8"
	default:
		return "unknown"
	}
}

// CompressionType records how Bytes is encoded, per spec.md §3's metadata
// requirement ("compression type").
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionQuantized
)

// Record is the Vector Record from spec.md §3.
type Record struct {
	VectorID  string
	Dim       int
	DType     DType
	Bytes     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	Compression CompressionType

	// GraphNodeID links this vector to an owning property-graph node, if
	// any (spec.md §3: "a link to owning graph node id if any").
	GraphNodeID uint64
	HasGraphNode bool

	Metadata map[string]string
}

// Validate enforces the Bytes-length invariant from spec.md §3.
func (r *Record) Validate() error {
	if r.Dim <= 0 {
		return errs.Wrap(errs.ErrInvalidArgument, "vector", "validate-dim")
	}
	want := r.Dim * r.DType.Size()
	if len(r.Bytes) != want {
		return errs.Wrap(errs.ErrInvalidArgument, "vector", "validate-bytes-length")
	}
	return nil
}

// NewRecord builds a validated Record with a fresh content-addressed id
// derived from a UUIDv5 of the raw bytes, so identical vectors inserted
// twice share an id (content addressing per spec.md §3's Vector Record
// key).
func NewRecord(dim int, dtype DType, bytes []byte, metadata map[string]string) (*Record, error) {
	r := &Record{
		VectorID:  contentAddress(bytes),
		Dim:       dim,
		DType:     dtype,
		Bytes:     bytes,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Metadata:  metadata,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

var contentNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func contentAddress(bytes []byte) string {
	return uuid.NewSHA1(contentNamespace, bytes).String()
}

// Store is an in-memory registry of vector Records, mirroring the
// teacher's Collection's map-plus-mutex shape but without the teacher's
// HNSW coupling (that lives in internal/hnsw, which references Store by
// id rather than embedding it).
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Put inserts or replaces a record, bumping UpdatedAt on replace.
func (s *Store) Put(r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[r.VectorID]; ok {
		r.CreatedAt = existing.CreatedAt
	}
	r.UpdatedAt = time.Now()
	s.records[r.VectorID] = r
	return nil
}

// Get returns the record for id, or errs.ErrNotFound.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, errs.Wrap(errs.ErrNotFound, "vector", "get")
	}
	return r, nil
}

// Delete removes id, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SetCompression updates an existing record's compression type, for the
// case where a vector is stored raw first and only later gets folded into
// a trained internal/hnsw quantizer (spec.md §3's Vector Record
// "compression type" metadata field).
func (s *Store) SetCompression(id string, c CompressionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return errs.Wrap(errs.ErrNotFound, "vector", "set-compression")
	}
	r.Compression = c
	r.UpdatedAt = time.Now()
	return nil
}

// LinkGraphNode sets the owning graph node id on an existing record
// (spec.md §3's optional vector-to-node link).
func (s *Store) LinkGraphNode(id string, nodeID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return errs.Wrap(errs.ErrNotFound, "vector", "link-graph-node")
	}
	r.GraphNodeID = nodeID
	r.HasGraphNode = true
	r.UpdatedAt = time.Now()
	return nil
}
