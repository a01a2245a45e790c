// Package obs holds the ambient observability stack: structured logging,
// Prometheus metrics, health checks, and the circuit breakers that back
// spec.md §4.10's "journal I/O failures degrade to read-only" and "Raft
// faults are contained by term-based reconciliation" failure semantics.
package obs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the state of a circuit breaker guarding one
// failure-prone subsystem: journal fsync or Raft quorum.
type CircuitState int

const (
	// CircuitClosed - normal operation, requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen - requests are rejected without being attempted.
	CircuitOpen
	// CircuitHalfOpen - requests are allowed through to test whether the
	// subsystem has recovered; the first one to complete decides whether
	// the breaker closes or reopens. Concurrent requests are not limited
	// to one.
	CircuitHalfOpen
)

func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures one breaker's trip/reset thresholds.
type CircuitBreakerConfig struct {
	Name string

	// MaxFailures is the number of consecutive failures that trips the
	// breaker from closed to open.
	MaxFailures int

	// Timeout is how long an open breaker stays open before it moves to
	// half-open.
	Timeout time.Duration

	// ResetTimeout is how long a closed breaker's failure count stays
	// live before a quiet period resets it to zero. Zero disables the
	// time-based reset.
	ResetTimeout time.Duration
}

// CircuitBreaker implements the circuit breaker pattern: after MaxFailures
// consecutive failures it stops calling through at all until Timeout has
// passed, at which point the first request to complete in half-open
// decides whether to close again or reopen.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	state  CircuitState

	failures   int
	generation int64
	expiry     time.Time

	onStateChange func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a closed circuit breaker per config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		expiry: time.Now().Add(config.ResetTimeout),
	}
}

// Execute runs fn if the breaker allows it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn()
	cb.afterRequest(generation, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (int64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.currentStateLocked(time.Now())
	if state == CircuitOpen {
		return generation, fmt.Errorf("circuit breaker %q is open", cb.config.Name)
	}
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(generation int64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, current := cb.currentStateLocked(now)
	if generation != current {
		return
	}

	if err != nil {
		cb.onFailureLocked(state, now)
	} else {
		cb.onSuccessLocked(state, now)
	}
}

func (cb *CircuitBreaker) onFailureLocked(state CircuitState, now time.Time) {
	cb.failures++
	switch state {
	case CircuitClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setStateLocked(CircuitOpen, now)
		}
	case CircuitHalfOpen:
		cb.setStateLocked(CircuitOpen, now)
	}
}

func (cb *CircuitBreaker) onSuccessLocked(state CircuitState, now time.Time) {
	if state == CircuitHalfOpen {
		cb.setStateLocked(CircuitClosed, now)
	}
	if state == CircuitClosed {
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) currentStateLocked(now time.Time) (CircuitState, int64) {
	if cb.state == CircuitOpen && cb.expiry.Before(now) {
		cb.setStateLocked(CircuitHalfOpen, now)
	}
	if cb.state == CircuitClosed && cb.config.ResetTimeout > 0 && cb.expiry.Before(now) {
		cb.failures = 0
		cb.expiry = now.Add(cb.config.ResetTimeout)
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setStateLocked(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}
	prev := cb.state
	cb.state = state
	cb.generation++
	cb.failures = 0

	switch state {
	case CircuitOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case CircuitHalfOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case CircuitClosed:
		cb.expiry = now.Add(cb.config.ResetTimeout)
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.config.Name, prev, state)
	}
}

// State reports the breaker's current state, advancing it past an expired
// open/reset window first.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.currentStateLocked(time.Now())
	return state
}

// OnStateChange installs a callback invoked on every state transition.
// Must be called before the breaker is exercised by concurrent callers.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// NewJournalIOBreaker builds the breaker backing spec.md §4.10's "journal
// I/O failures degrade to read-only": a single fsync failure trips it, and
// it never resets itself (Timeout is effectively unbounded) because a
// degraded journal requires an operator to remount rather than silently
// resuming writes against a disk that may still be failing. onOpen, if
// non-nil, fires after the metric is recorded so the journal can latch its
// own read-only flag without this package knowing about it.
func NewJournalIOBreaker(metrics *Metrics, onOpen func()) *CircuitBreaker {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "journal-io",
		MaxFailures: 1,
		Timeout:     24 * time.Hour,
	})
	cb.OnStateChange(func(name string, from, to CircuitState) {
		if metrics != nil {
			metrics.CircuitBreakerTrips.WithLabelValues(name, to.String()).Inc()
		}
		if to == CircuitOpen && onOpen != nil {
			onOpen()
		}
	})
	return cb
}

// NewRaftQuorumBreaker builds the breaker backing spec.md §4.10's "a
// quorum loss stalls writes but permits stale reads": after a run of
// consecutive Apply failures (typically a lost quorum) it opens briefly so
// callers fail fast instead of each paying Raft's full apply timeout,
// then moves to half-open, where the first completed request detects
// whether quorum has returned.
func NewRaftQuorumBreaker(metrics *Metrics) *CircuitBreaker {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "raft-quorum",
		MaxFailures:  3,
		Timeout:      5 * time.Second,
		ResetTimeout: 30 * time.Second,
	})
	wireTripMetric(cb, metrics)
	return cb
}

func wireTripMetric(cb *CircuitBreaker, metrics *Metrics) {
	if metrics == nil {
		return
	}
	cb.OnStateChange(func(name string, from, to CircuitState) {
		metrics.CircuitBreakerTrips.WithLabelValues(name, to.String()).Inc()
	})
}
