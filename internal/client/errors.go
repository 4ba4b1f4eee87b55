package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrServiceUnavailable is the sentinel for breaker fail-fast rejections.
var ErrServiceUnavailable = errors.New("service unavailable")

// ErrServiceTimeout is the sentinel for calls that exceeded their deadline.
var ErrServiceTimeout = errors.New("service timeout")

// ErrUnknownEndpoint indicates an endpoint name the client was never given.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// UnavailableError is returned when the circuit breaker rejects a call
// before any network attempt is made.
type UnavailableError struct {
	// Endpoint is the rejecting endpoint's name.
	Endpoint string
	// State is the breaker state at rejection time.
	State BreakerState
	// RetryAfter is how long until a probe will be allowed, if known.
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("endpoint %s unavailable (circuit %s, retry in %s)", e.Endpoint, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("endpoint %s unavailable (circuit %s)", e.Endpoint, e.State)
}

func (e *UnavailableError) Unwrap() error { return ErrServiceUnavailable }

// TimeoutError is returned when a call exceeds its deadline.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("endpoint %s timed out after %s", e.Endpoint, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrServiceTimeout }

// StatusError is a semantic failure response from an endpoint.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Retryable reports whether the status indicates a transient server-side
// condition. Client-fault statuses surface immediately and never count
// toward breaker accounting.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}

// retryable classifies an error for the retry loop. Breaker rejections are
// final for this call; timeouts and transport errors are transient.
func retryable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
