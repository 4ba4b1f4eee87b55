package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// stubHandler is a configurable test handler.
type stubHandler struct {
	name string
	fn   func(ctx context.Context, p Payload) (*Result, error)
}

func (s *stubHandler) Name() string { return s.name }

func (s *stubHandler) Invoke(ctx context.Context, p Payload) (*Result, error) {
	if s.fn != nil {
		return s.fn(ctx, p)
	}
	return &Result{Output: "done"}, nil
}

func TestRegistryGetUnknownFailsClosed(t *testing.T) {
	r := New()
	_, err := r.Get("ghost")
	if !errors.Is(err, ErrNoHandlerFound) {
		t.Errorf("expected ErrNoHandlerFound, got %v", err)
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "work"}, Meta{})

	result, err := r.Invoke(context.Background(), "work", Payload{TaskID: "t1"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Output != "done" {
		t.Errorf("unexpected output %q", result.Output)
	}
}

func TestRegistryInvokeUnknown(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), "ghost", Payload{})
	if !errors.Is(err, ErrNoHandlerFound) {
		t.Errorf("expected ErrNoHandlerFound, got %v", err)
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "zeta"}, Meta{})
	r.Register(&stubHandler{name: "alpha"}, Meta{})
	r.Register(&stubHandler{name: "mid"}, Meta{})

	got := r.Available()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRegistryMeta(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "remote-op"}, Meta{Remote: true, Idempotent: true})

	meta, err := r.Meta("remote-op")
	if err != nil {
		t.Fatalf("Meta failed: %v", err)
	}
	if !meta.Remote || !meta.Idempotent {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestKeywordSelectorMatches(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "shell"}, Meta{Keywords: []string{"run", "command", "script"}})
	r.Register(&stubHandler{name: "fetch"}, Meta{Keywords: []string{"download", "http"}})

	s := NewKeywordSelector(r)
	name, err := s.Select("run the build script", r.Available())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if name != "shell" {
		t.Errorf("expected shell, got %s", name)
	}
}

func TestKeywordSelectorNameMatchWins(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "deploy"}, Meta{})
	r.Register(&stubHandler{name: "build"}, Meta{Keywords: []string{"deploy"}})

	s := NewKeywordSelector(r)
	name, err := s.Select("deploy the service", r.Available())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	// Name match scores above a keyword match.
	if name != "deploy" {
		t.Errorf("expected deploy, got %s", name)
	}
}

func TestKeywordSelectorNoMatch(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "shell"}, Meta{Keywords: []string{"run"}})

	s := NewKeywordSelector(r)
	_, err := s.Select("paint the fence", r.Available())
	if !errors.Is(err, ErrNoHandlerFound) {
		t.Errorf("expected ErrNoHandlerFound, got %v", err)
	}
}

func TestKeywordSelectorFallback(t *testing.T) {
	r := New()
	r.Register(&stubHandler{name: "shell"}, Meta{Keywords: []string{"run"}})
	r.Register(&stubHandler{name: "echo"}, Meta{})

	s := NewKeywordSelector(r).WithFallback("echo")
	name, err := s.Select("paint the fence", r.Available())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if name != "echo" {
		t.Errorf("expected fallback echo, got %s", name)
	}
}

func TestEchoHandler(t *testing.T) {
	result, err := EchoHandler{}.Invoke(context.Background(), Payload{Approach: "say hi"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Output != "say hi" {
		t.Errorf("unexpected output %q", result.Output)
	}
}

func TestStubHandlerError(t *testing.T) {
	r := New()
	r.Register(&stubHandler{
		name: "boom",
		fn: func(ctx context.Context, p Payload) (*Result, error) {
			return nil, fmt.Errorf("handler exploded")
		},
	}, Meta{})

	_, err := r.Invoke(context.Background(), "boom", Payload{})
	if err == nil || err.Error() != "handler exploded" {
		t.Errorf("expected handler error to surface, got %v", err)
	}
}
