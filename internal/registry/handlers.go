package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/mseverin/taskwright/internal/client"
)

// ShellHandler executes the task approach as a shell command.
type ShellHandler struct {
	// WorkDir is the working directory for commands; empty means inherit.
	WorkDir string
}

// NewShellHandler creates a shell handler rooted at workDir.
func NewShellHandler(workDir string) *ShellHandler {
	return &ShellHandler{WorkDir: workDir}
}

// Name implements Handler.
func (h *ShellHandler) Name() string { return "shell" }

// Invoke runs the approach through "sh -c" with combined output.
func (h *ShellHandler) Invoke(ctx context.Context, p Payload) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", p.Approach)
	if h.WorkDir != "" {
		cmd.Dir = h.WorkDir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("shell command failed: %w: %s", err, truncate(string(out), 200))
	}
	return &Result{Output: string(out)}, nil
}

// EchoHandler records its payload and succeeds. Used as a safe default and
// in tests.
type EchoHandler struct{}

// Name implements Handler.
func (EchoHandler) Name() string { return "echo" }

// Invoke implements Handler.
func (EchoHandler) Invoke(ctx context.Context, p Payload) (*Result, error) {
	return &Result{Output: p.Approach}, nil
}

// SleepHandler waits for a fixed duration or until the deadline, whichever
// comes first. Used to exercise per-task deadlines in tests.
type SleepHandler struct {
	Duration time.Duration
}

// Name implements Handler.
func (h *SleepHandler) Name() string { return "sleep" }

// Invoke implements Handler.
func (h *SleepHandler) Invoke(ctx context.Context, p Payload) (*Result, error) {
	timer := time.NewTimer(h.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return &Result{Output: "slept"}, nil
	}
}

// RemoteHandler routes invocations through the resilient service client.
// All network-level resilience (breaker, retry, health) lives in the client.
type RemoteHandler struct {
	name       string
	endpoint   string
	client     *client.Client
	idempotent bool
	timeout    time.Duration
}

// NewRemoteHandler creates a handler backed by a registered client endpoint.
func NewRemoteHandler(name, endpoint string, c *client.Client, idempotent bool, timeout time.Duration) *RemoteHandler {
	return &RemoteHandler{
		name:       name,
		endpoint:   endpoint,
		client:     c,
		idempotent: idempotent,
		timeout:    timeout,
	}
}

// Name implements Handler.
func (h *RemoteHandler) Name() string { return h.name }

// Invoke marshals the payload and posts it to the endpoint's invoke path.
func (h *RemoteHandler) Invoke(ctx context.Context, p Payload) (*Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := h.client.Call(ctx, h.endpoint, client.Request{
		Method:     "POST",
		Path:       "/invoke/" + h.name,
		Body:       body,
		Idempotent: h.idempotent,
	}, h.timeout)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		// Not all capabilities speak the structured shape; fall back to
		// the raw body as output.
		return &Result{Output: string(resp.Body)}, nil
	}
	return &result, nil
}
