package client

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests move breaker time by hand.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration) (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := newBreaker(BreakerConfig{FailureThreshold: threshold, RecoveryTimeout: recovery})
	b.now = clock.now
	return b, clock
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
	if err := b.Allow("svc"); err != nil {
		t.Errorf("closed breaker should allow calls: %v", err)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != CircuitClosed {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != CircuitOpen {
		t.Errorf("expected open after 5 consecutive failures, got %s", b.State())
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Errorf("expected failure count reset, got %d", b.Failures())
	}

	// Four more failures should not trip the threshold.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != CircuitClosed {
		t.Error("expected closed: consecutive count should have reset")
	}
}

func TestBreakerFailsFastWhileOpen(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// 10 seconds in: still open, fail fast.
	clock.advance(10 * time.Second)
	err := b.Allow("svc")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	var unavailErr *UnavailableError
	if !errors.As(err, &unavailErr) {
		t.Fatal("expected *UnavailableError")
	}
	if unavailErr.State != CircuitOpen {
		t.Errorf("expected open state in error, got %s", unavailErr.State)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Past the recovery timeout: exactly one probe allowed.
	clock.advance(31 * time.Second)
	if err := b.Allow("svc"); err != nil {
		t.Fatalf("expected probe to be allowed: %v", err)
	}
	if b.State() != CircuitHalfOpen {
		t.Errorf("expected half-open, got %s", b.State())
	}

	// Concurrent caller during the probe fails fast.
	if err := b.Allow("svc"); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected concurrent caller to fail fast, got %v", err)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	b.Allow("svc")

	b.RecordSuccess()
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
	if err := b.Allow("svc"); err != nil {
		t.Errorf("expected calls to flow after recovery: %v", err)
	}
}

func TestBreakerProbeFailureReopensAndResetsTimer(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	b.Allow("svc")

	b.RecordFailure()
	if b.State() != CircuitOpen {
		t.Fatalf("expected reopen after failed probe, got %s", b.State())
	}

	// The recovery timer restarted at the probe failure.
	clock.advance(10 * time.Second)
	if err := b.Allow("svc"); !errors.Is(err, ErrServiceUnavailable) {
		t.Error("expected fail fast: recovery timer should have reset")
	}
	clock.advance(21 * time.Second)
	if err := b.Allow("svc"); err != nil {
		t.Errorf("expected new probe after full recovery timeout: %v", err)
	}
}

func TestBreakerNeutralReleasesProbe(t *testing.T) {
	b, clock := newTestBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	b.Allow("svc")

	// Semantic caller error: breaker state untouched, probe slot released.
	b.RecordNeutral()
	if b.State() != CircuitHalfOpen {
		t.Errorf("expected half-open preserved, got %s", b.State())
	}
	if err := b.Allow("svc"); err != nil {
		t.Errorf("expected next caller to take the probe slot: %v", err)
	}
}
