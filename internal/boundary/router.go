// Package boundary implements the per-plane event emission path from
// spec.md §4.1/§5 (C4): one bounded, single-producer ring per plane
// (kernel, user), with non-blocking emission by default and an optional
// deadline-bound blocking mode. Grounded on the teacher's WAL append path
// (internal/storage/wal.WAL.Append: lock, validate, write, signal) but
// built around a channel ring instead of a file, since the boundary layer
// is purely in-memory hand-off to the journal.
package boundary

import (
	"context"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
)

// DefaultRingCapacity is the per-plane channel buffer size used when a
// Router is built with NewRouter's zero-value capacity.
const DefaultRingCapacity = 4096

// Emitter is the per-plane handle returned by Router.For. Callers on a
// given plane only ever see their own Emitter, never the other plane's.
type Emitter struct {
	plane event.Plane
	ring  chan *event.Event
	seq   *Sequencer
}

// Emit enqueues e onto this plane's ring without blocking. If the ring is
// full it returns errs.ErrBusy immediately, per spec.md §4.1's backpressure
// requirement that emission never stalls the calling operation by default.
func (em *Emitter) Emit(e *event.Event) error {
	em.stamp(e)
	select {
	case em.ring <- e:
		return nil
	default:
		return errs.Wrap(errs.ErrBusy, "boundary", "emit")
	}
}

// EmitWait enqueues e, blocking until space is available or ctx is done.
func (em *Emitter) EmitWait(ctx context.Context, e *event.Event) error {
	em.stamp(e)
	select {
	case em.ring <- e:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.ErrDeadlineExceeded, "boundary", "emit-wait")
	}
}

func (em *Emitter) stamp(e *event.Event) {
	e.Plane = em.plane
	e.LocalSequence = em.seq.Next()
}

// Router owns one Emitter and one drain channel per plane.
type Router struct {
	kernel *Emitter
	user   *Emitter
}

// NewRouter builds a Router with the given per-plane ring capacity. A
// capacity of 0 uses DefaultRingCapacity.
func NewRouter(capacity int) *Router {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Router{
		kernel: &Emitter{plane: event.PlaneKernel, ring: make(chan *event.Event, capacity), seq: NewSequencer()},
		user:   &Emitter{plane: event.PlaneUser, ring: make(chan *event.Event, capacity), seq: NewSequencer()},
	}
}

// For returns the Emitter for the given plane.
func (r *Router) For(plane event.Plane) *Emitter {
	if plane == event.PlaneKernel {
		return r.kernel
	}
	return r.user
}

// Drain returns the receive-only channel a journal writer consumes from
// for the given plane.
func (r *Router) Drain(plane event.Plane) <-chan *event.Event {
	return r.For(plane).ring
}

// Depth reports how many events are currently queued for the given plane,
// for observability (internal/obs.Metrics.EmitBackpressure).
func (r *Router) Depth(plane event.Plane) int {
	return len(r.For(plane).ring)
}

// Capacity reports the configured ring capacity for the given plane.
func (r *Router) Capacity(plane event.Plane) int {
	return cap(r.For(plane).ring)
}
