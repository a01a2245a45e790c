package obs

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", MaxFailures: 2, Timeout: time.Hour})

	if err := cb.Execute(context.Background(), func() error { return errBoom }); err == nil {
		t.Fatalf("expected first failure to pass through")
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 1 of 2 failures, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func() error { return errBoom }); err == nil {
		t.Fatalf("expected second failure to pass through")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 2 of 2 failures, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); err == nil {
		t.Fatalf("expected an open breaker to reject without calling fn")
	}
}

func TestCircuitBreakerHalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", MaxFailures: 1, Timeout: time.Millisecond, ResetTimeout: time.Hour})

	if err := cb.Execute(context.Background(), func() error { return errBoom }); err == nil {
		t.Fatalf("expected failure to trip the breaker")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(2 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half_open after Timeout elapses, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to succeed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected a successful probe to close the breaker, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", MaxFailures: 1, Timeout: time.Millisecond, ResetTimeout: time.Hour})
	cb.Execute(context.Background(), func() error { return errBoom })
	time.Sleep(2 * time.Millisecond)

	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half_open, got %s", cb.State())
	}
	cb.Execute(context.Background(), func() error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected a failed probe to reopen the breaker, got %s", cb.State())
	}
}

func TestCircuitBreakerOnStateChangeFires(t *testing.T) {
	var transitions []CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "t", MaxFailures: 1, Timeout: time.Hour})
	cb.OnStateChange(func(name string, from, to CircuitState) {
		transitions = append(transitions, to)
	})

	cb.Execute(context.Background(), func() error { return errBoom })
	if len(transitions) != 1 || transitions[0] != CircuitOpen {
		t.Fatalf("expected a single transition to open, got %v", transitions)
	}
}

func TestNewJournalIOBreakerTripsOnFirstFailureAndFiresOnOpen(t *testing.T) {
	metrics := NewMetrics()
	opened := false
	cb := NewJournalIOBreaker(metrics, func() { opened = true })

	if err := cb.Execute(context.Background(), func() error { return errBoom }); err == nil {
		t.Fatalf("expected the underlying failure to propagate")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected a single fsync failure to open the journal breaker, got %s", cb.State())
	}
	if !opened {
		t.Fatalf("expected onOpen to fire once the breaker trips")
	}
}

func TestNewRaftQuorumBreakerRequiresConsecutiveFailures(t *testing.T) {
	cb := NewRaftQuorumBreaker(NewMetrics())

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return errBoom })
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected the raft breaker to tolerate 2 failures below MaxFailures, got %s", cb.State())
	}

	cb.Execute(context.Background(), func() error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected the raft breaker to open on the 3rd consecutive failure, got %s", cb.State())
	}
}
