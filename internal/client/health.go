package client

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the last-known health of an endpoint.
type HealthStatus struct {
	// Endpoint is the endpoint name.
	Endpoint string
	// Healthy is true when the last probe succeeded.
	Healthy bool
	// Detail describes the probe outcome.
	Detail string
	// CheckedAt is when the probe ran.
	CheckedAt time.Time
}

// healthCache holds per-endpoint health entries with a shared TTL.
// Expired entries are untrusted and trigger a fresh probe.
type healthCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]healthEntry
	// now is injectable for tests.
	now func() time.Time
}

type healthEntry struct {
	status    HealthStatus
	expiresAt time.Time
}

func newHealthCache(ttl time.Duration) *healthCache {
	return &healthCache{
		ttl:     ttl,
		entries: make(map[string]healthEntry),
		now:     time.Now,
	}
}

func (h *healthCache) get(endpoint string) (HealthStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.entries[endpoint]
	if !ok || h.now().After(entry.expiresAt) {
		return HealthStatus{}, false
	}
	return entry.status, true
}

func (h *healthCache) put(status HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[status.Endpoint] = healthEntry{
		status:    status,
		expiresAt: h.now().Add(h.ttl),
	}
}

// Health returns the endpoint's health, serving the cached value while it is
// within ttl and probing otherwise. Probes are bounded by the probe timeout
// and do not touch breaker state.
func (c *Client) Health(ctx context.Context, endpoint string) (HealthStatus, error) {
	ep, err := c.Endpoint(endpoint)
	if err != nil {
		return HealthStatus{}, err
	}

	if status, ok := c.health.get(endpoint); ok {
		return status, nil
	}

	status := c.probe(ctx, ep)
	c.health.put(status)
	return status, nil
}

// HealthAll probes the given endpoints concurrently. One endpoint's failure
// never blocks or invalidates another's result; failures are reported as
// unhealthy statuses, not errors.
func (c *Client) HealthAll(ctx context.Context, endpoints []string) map[string]HealthStatus {
	var mu sync.Mutex
	results := make(map[string]HealthStatus, len(endpoints))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range endpoints {
		name := name
		g.Go(func() error {
			status, err := c.Health(ctx, name)
			if err != nil {
				status = HealthStatus{
					Endpoint:  name,
					Healthy:   false,
					Detail:    err.Error(),
					CheckedAt: time.Now(),
				}
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
			// Always nil: a failed probe must not cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// probe performs one bounded health check round trip.
func (c *Client) probe(ctx context.Context, ep *Endpoint) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	status := HealthStatus{Endpoint: ep.Name, CheckedAt: time.Now()}
	resp, err := c.transport.RoundTrip(probeCtx, ep, Request{Method: "GET", Path: "/healthz"})
	switch {
	case err != nil:
		status.Healthy = false
		status.Detail = err.Error()
	case resp.Status >= 400:
		status.Healthy = false
		status.Detail = truncateBody(resp.Body)
	default:
		status.Healthy = true
		status.Detail = "ok"
	}
	return status
}
