package boundary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
)

func TestEmitStampsPlaneAndSequence(t *testing.T) {
	r := NewRouter(4)
	em := r.For(event.PlaneKernel)

	e1 := &event.Event{}
	if err := em.Emit(e1); err != nil {
		t.Fatalf("emit: %v", err)
	}
	e2 := &event.Event{}
	if err := em.Emit(e2); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if e1.Plane != event.PlaneKernel || e2.Plane != event.PlaneKernel {
		t.Fatalf("plane not stamped")
	}
	if e2.LocalSequence <= e1.LocalSequence {
		t.Fatalf("local sequence not monotonic: %d then %d", e1.LocalSequence, e2.LocalSequence)
	}
}

func TestEmitReturnsBusyWhenFull(t *testing.T) {
	r := NewRouter(1)
	em := r.For(event.PlaneUser)

	if err := em.Emit(&event.Event{}); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	err := em.Emit(&event.Event{})
	if !errors.Is(err, errs.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestEmitWaitRespectsDeadline(t *testing.T) {
	r := NewRouter(1)
	em := r.For(event.PlaneUser)
	if err := em.Emit(&event.Event{}); err != nil {
		t.Fatalf("fill ring: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := em.EmitWait(ctx, &event.Event{})
	if !errors.Is(err, errs.ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
}

func TestRouterPlaneIsolation(t *testing.T) {
	r := NewRouter(4)
	if err := r.For(event.PlaneKernel).Emit(&event.Event{}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if r.Depth(event.PlaneKernel) != 1 {
		t.Fatalf("expected kernel depth 1, got %d", r.Depth(event.PlaneKernel))
	}
	if r.Depth(event.PlaneUser) != 0 {
		t.Fatalf("expected user depth 0, got %d", r.Depth(event.PlaneUser))
	}
}

func TestEventTypeRegistryLookup(t *testing.T) {
	reg := NewEventTypeRegistry()
	got, ok := reg.Lookup("FilesystemCreate")
	if !ok || got != event.TypeFilesystemCreate {
		t.Fatalf("lookup failed: got %v ok=%v", got, ok)
	}
	if _, ok := reg.Lookup("nonexistent_type"); ok {
		t.Fatalf("expected lookup miss for unknown name")
	}
}
