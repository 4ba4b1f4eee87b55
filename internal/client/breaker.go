package client

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state for one endpoint.
type BreakerState string

const (
	// CircuitClosed means calls flow normally.
	CircuitClosed BreakerState = "closed"
	// CircuitOpen means calls fail fast without a network attempt.
	CircuitOpen BreakerState = "open"
	// CircuitHalfOpen means exactly one probing call is allowed through.
	CircuitHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes the per-endpoint circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before allowing a probe.
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// breaker is the circuit breaker state machine for a single endpoint.
// Each transition is applied atomically under the mutex; outcomes only ever
// advance the breaker along its defined edges.
type breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	// now is injectable for tests.
	now func() time.Time

	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
	// probing is true while the single half-open probe is in flight.
	probing bool
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	return &breaker{
		cfg:   cfg,
		now:   time.Now,
		state: CircuitClosed,
	}
}

// Allow reports whether a call may proceed. When the circuit is open and the
// recovery timeout has elapsed, the caller becomes the half-open probe.
// Concurrent callers arriving during an in-flight probe fail fast rather
// than piling onto it.
func (b *breaker) Allow(endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.cfg.RecoveryTimeout {
			return &UnavailableError{
				Endpoint:   endpoint,
				State:      CircuitOpen,
				RetryAfter: b.cfg.RecoveryTimeout - elapsed,
			}
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil

	default: // CircuitHalfOpen
		if b.probing {
			return &UnavailableError{Endpoint: endpoint, State: CircuitHalfOpen}
		}
		b.probing = true
		return nil
	}
}

// RecordSuccess closes the circuit and resets failure accounting.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = CircuitClosed
	b.consecutiveFailures = 0
	b.probing = false
}

// RecordFailure advances the breaker after a failed call. A failed half-open
// probe reopens the circuit and resets the recovery timer; in the closed
// state failures accumulate until the threshold trips.
func (b *breaker) RecordFailure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.probing = false
	case CircuitClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = CircuitOpen
		}
	}
	return b.state
}

// RecordNeutral releases an in-flight probe without moving the breaker.
// Used for semantic errors that indicate caller fault, not endpoint health.
func (b *breaker) RecordNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// State returns the current breaker state.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
