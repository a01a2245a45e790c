package vector

import (
	"errors"
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/errs"
)

func TestNewRecordValidatesByteLength(t *testing.T) {
	bytes := make([]byte, 4*3)
	r, err := NewRecord(3, DTypeFloat32, bytes, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Dim != 3 || r.DType != DTypeFloat32 {
		t.Fatalf("unexpected record: %+v", r)
	}

	_, err = NewRecord(3, DTypeFloat32, make([]byte, 5), nil)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestContentAddressingIsDeterministic(t *testing.T) {
	bytes := []byte{1, 2, 3, 4}
	r1, err := NewRecord(4, DTypeInt8, bytes, nil)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	r2, err := NewRecord(4, DTypeInt8, append([]byte(nil), bytes...), nil)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if r1.VectorID != r2.VectorID {
		t.Fatalf("expected identical content to produce identical ids: %s vs %s", r1.VectorID, r2.VectorID)
	}
}

func TestStorePutGetDelete(t *testing.T) {
	s := NewStore()
	r, err := NewRecord(2, DTypeFloat32, make([]byte, 8), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(r.VectorID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VectorID != r.VectorID {
		t.Fatalf("mismatched record returned")
	}
	if !s.Delete(r.VectorID) {
		t.Fatalf("expected delete to report existing record")
	}
	if _, err := s.Get(r.VectorID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLinkGraphNode(t *testing.T) {
	s := NewStore()
	r, _ := NewRecord(1, DTypeInt8, []byte{9}, nil)
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.LinkGraphNode(r.VectorID, 42); err != nil {
		t.Fatalf("link: %v", err)
	}
	got, _ := s.Get(r.VectorID)
	if !got.HasGraphNode || got.GraphNodeID != 42 {
		t.Fatalf("expected graph link, got %+v", got)
	}
}
