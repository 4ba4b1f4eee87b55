// Package registry maps capability names to invocable handlers and selects
// a handler for each task description.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoHandlerFound indicates no registered handler can serve a request.
// The registry fails closed: an unknown name is an error, never a no-op.
var ErrNoHandlerFound = errors.New("no handler found")

// Payload is the input delivered to a handler invocation.
type Payload struct {
	// TaskID identifies the task being executed.
	TaskID string `json:"task_id"`
	// Description is the task's original description.
	Description string `json:"description"`
	// Approach is the current working approach, possibly revised by
	// auto-correction since the original description.
	Approach string `json:"approach"`
	// Attempt is the 1-indexed attempt number.
	Attempt int `json:"attempt"`
}

// Result is a handler's output.
type Result struct {
	// Output is the primary result payload.
	Output string `json:"output"`
	// Details holds handler-specific extras.
	Details map[string]string `json:"details,omitempty"`
}

// Handler is a named, invocable unit of work.
type Handler interface {
	// Name returns the handler's registry key.
	Name() string
	// Invoke executes the capability. The context carries the per-task
	// deadline; handlers are expected to honor it.
	Invoke(ctx context.Context, p Payload) (*Result, error)
}

// Meta describes registration properties of a handler.
type Meta struct {
	// Remote marks handlers that execute through the resilient client.
	Remote bool
	// Idempotent marks handlers whose invocations are safe to retry;
	// timeouts on non-idempotent handlers are terminal.
	Idempotent bool
	// Keywords bias the selector toward this handler.
	Keywords []string
}

type registration struct {
	handler Handler
	meta    Meta
}

// Registry is the capability registry. Handlers are registered once at
// startup and looked up by name at dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register adds a handler under its name. Re-registering a name replaces
// the previous handler.
func (r *Registry) Register(h Handler, meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = registration{handler: h, meta: meta}
}

// Get returns the handler for a name, failing closed on unknown names.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandlerFound, name)
	}
	return reg.handler, nil
}

// Meta returns registration metadata for a name.
func (r *Registry) Meta(name string) (Meta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.handlers[name]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %q", ErrNoHandlerFound, name)
	}
	return reg.meta, nil
}

// Invoke looks up a handler by name and executes it.
func (r *Registry) Invoke(ctx context.Context, name string, p Payload) (*Result, error) {
	h, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return h.Invoke(ctx, p)
}

// Available returns all registered handler names, sorted for stable output.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
