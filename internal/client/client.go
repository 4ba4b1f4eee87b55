// Package client is the resilient service client: the only path to remote
// handlers and the planning oracle. It layers a per-endpoint circuit
// breaker, a TTL health cache, and bounded retry with jittered backoff.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Request is a call to a remote capability.
type Request struct {
	// Method is the HTTP method, GET when empty.
	Method string
	// Path is appended to the endpoint address.
	Path string
	// Body is the request payload.
	Body []byte
	// Header holds extra request headers.
	Header map[string]string
	// Idempotent declares the call safe to retry. Only idempotent calls
	// are retried; everything else gets a single attempt.
	Idempotent bool
}

// Response is the result of a successful call.
type Response struct {
	Status int
	Body   []byte
}

// Endpoint is a named remote service with its own breaker state.
// Breaker state lives for the life of the process.
type Endpoint struct {
	Name    string
	Address string

	breaker *breaker
}

// State returns the endpoint's current circuit state.
func (e *Endpoint) State() BreakerState { return e.breaker.State() }

// Transport performs the actual network round trip. Injectable so tests and
// in-process fakes can stand in for real services.
type Transport interface {
	RoundTrip(ctx context.Context, ep *Endpoint, req Request) (*Response, error)
}

// RetryConfig tunes the bounded retry policy for idempotent calls.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// JitterFrac adds up to this fraction of random extra delay.
	JitterFrac float64
}

// DefaultRetryConfig returns the standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		JitterFrac:  0.2,
	}
}

// Config holds all client settings.
type Config struct {
	Breaker BreakerConfig
	Retry   RetryConfig
	// HealthTTL is how long a cached health status stays trusted.
	HealthTTL time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the standard client settings.
func DefaultConfig() Config {
	return Config{
		Breaker:      DefaultBreakerConfig(),
		Retry:        DefaultRetryConfig(),
		HealthTTL:    30 * time.Second,
		ProbeTimeout: 2 * time.Second,
	}
}

// Client is the resilient service client. Endpoint breaker state and the
// health cache are the only cross-cutting mutable resources; each is guarded
// by its own lock so there is no global lock on the whole client.
type Client struct {
	cfg       Config
	transport Transport

	mu        sync.RWMutex
	endpoints map[string]*Endpoint

	health *healthCache

	// sleep is injectable so tests don't wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
	logf  func(format string, args ...interface{})
}

// Option customizes a Client.
type Option func(*Client)

// WithSleep replaces the backoff sleeper (for tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithLogf replaces the client's log function.
func WithLogf(fn func(format string, args ...interface{})) Option {
	return func(c *Client) { c.logf = fn }
}

// New creates a resilient client over the given transport.
func New(transport Transport, cfg Config, opts ...Option) *Client {
	// Retry fields default independently so a partial config never yields
	// zero-delay hot retries.
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.Retry.JitterFrac < 0 {
		cfg.Retry.JitterFrac = 0
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultConfig().HealthTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}

	c := &Client{
		cfg:       cfg,
		transport: transport,
		endpoints: make(map[string]*Endpoint),
		health:    newHealthCache(cfg.HealthTTL),
		sleep:     sleepCtx,
		logf:      log.Printf,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddEndpoint registers a named endpoint. Breaker state is created once here
// and mutated on every call outcome thereafter.
func (c *Client) AddEndpoint(name, address string) *Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ep, ok := c.endpoints[name]; ok {
		return ep
	}
	ep := &Endpoint{
		Name:    name,
		Address: address,
		breaker: newBreaker(c.cfg.Breaker),
	}
	c.endpoints[name] = ep
	return ep
}

// Endpoint returns a registered endpoint by name.
func (c *Client) Endpoint(name string) (*Endpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ep, ok := c.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return ep, nil
}

// EndpointNames returns all registered endpoint names.
func (c *Client) EndpointNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	return names
}

// Call invokes an endpoint under the given timeout. Breaker-open rejections
// fail fast with no network attempt. Idempotent calls are retried with
// exponential backoff and jitter; the whole call counts toward breaker
// accounting exactly once, after retries exhaust, so transient blips do not
// prematurely open the circuit. Non-retryable semantic failures surface
// immediately and never touch breaker state.
func (c *Client) Call(ctx context.Context, endpoint string, req Request, timeout time.Duration) (*Response, error) {
	ep, err := c.Endpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if err := ep.breaker.Allow(endpoint); err != nil {
		return nil, err
	}

	attempts := 1
	if req.Idempotent {
		attempts = c.cfg.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			c.logf("[client] endpoint %s attempt %d/%d after %s backoff", endpoint, attempt, attempts, delay.Round(time.Millisecond))
			if err := c.sleep(ctx, delay); err != nil {
				// Caller cancellation, not an endpoint outcome.
				ep.breaker.RecordNeutral()
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, ep, req, timeout)
		if err == nil {
			ep.breaker.RecordSuccess()
			return resp, nil
		}

		if !retryable(err) {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				// Caller fault, not endpoint unavailability.
				ep.breaker.RecordNeutral()
				return nil, err
			}
			ep.breaker.RecordFailure()
			return nil, err
		}
		lastErr = err
	}

	ep.breaker.RecordFailure()
	return nil, lastErr
}

// attempt performs one bounded round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, ep *Endpoint, req Request, timeout time.Duration) (*Response, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.transport.RoundTrip(callCtx, ep, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Endpoint: ep.Name, Timeout: timeout}
		}
		return nil, fmt.Errorf("endpoint %s: %w", ep.Name, err)
	}
	if resp.Status >= 400 {
		return nil, &StatusError{Endpoint: ep.Name, Status: resp.Status, Body: truncateBody(resp.Body)}
	}
	return resp, nil
}

// backoff computes the nth retry delay: base doubling with up to
// JitterFrac random extra, so synchronized retries spread out.
func (c *Client) backoff(n int) time.Duration {
	delay := c.cfg.Retry.BaseDelay << (n - 1)
	if c.cfg.Retry.JitterFrac > 0 {
		jitter := time.Duration(rand.Float64() * c.cfg.Retry.JitterFrac * float64(delay))
		delay += jitter
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateBody(body []byte) string {
	const max = 512
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// HTTPTransport is the production Transport over net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport creates an HTTP transport with a shared client.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{}}
}

// RoundTrip performs the HTTP request against the endpoint address.
func (t *HTTPTransport) RoundTrip(ctx context.Context, ep *Endpoint, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	url := strings.TrimRight(ep.Address, "/") + "/" + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := t.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: httpResp.StatusCode, Body: body}, nil
}
