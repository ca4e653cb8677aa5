// Package health exposes Kubernetes-style liveness and readiness endpoints
// backed by periodically evaluated probes.
//
// A probe flips to unhealthy only after failAfter consecutive failures and
// recovers after okAfter consecutive passes, so one slow platform round trip
// does not pull the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc evaluates one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	// failAfter consecutive failures mark a probe unhealthy.
	failAfter = 3
	// okAfter consecutive passes mark it healthy again.
	okAfter = 1
)

// probe is one registered check plus its evaluation state. All state is
// guarded by mu; evaluate runs on a single goroutine per probe but the HTTP
// endpoints read concurrently.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	healthy bool
	err     error
	fails   int
	passes  int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	// A probe starts healthy so a slow first evaluation does not flap the
	// endpoints right after boot.
	return &probe{name: name, timeout: timeout, fn: fn, healthy: true}
}

// evaluate runs the check once and folds the result into the thresholds.
func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= failAfter {
			p.healthy = false
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= okAfter {
		p.healthy = true
	}
}

// status returns the probe's health and, when unhealthy, its last error.
func (p *probe) status() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.err
}

// Health aggregates liveness and readiness probes for one service.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health with no probes. The service reports not ready until
// SetReady(true) is called after initialization.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe deciding whether the process itself is
// functioning, such as a goroutine count bound.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	h.liveness = append(h.liveness, newProbe(name, timeout, fn))
	h.mu.Unlock()
}

// AddReadinessCheck registers a probe deciding whether the service should
// receive traffic, such as commerce platform reachability.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	h.readiness = append(h.readiness, newProbe(name, timeout, fn))
	h.mu.Unlock()
}

// Start evaluates every registered probe on its own goroutine at the given
// interval, beginning immediately. Register all probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.evaluate(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.evaluate(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true once initialization is
// done, false at the start of graceful shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(failures(h.snapshot(&h.readiness))) == 0
}

// snapshot copies a probe slice under the lock.
func (h *Health) snapshot(src *[]*probe) []*probe {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*probe(nil), *src...)
}

// failures maps each unhealthy probe to its last error message.
func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if healthy, err := p.status(); !healthy {
			msg := "probe is unhealthy"
			if err != nil {
				msg = err.Error()
			}
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez: 200 while every liveness probe passes, 503
// with the failing probes otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	respond(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz: 200 while the readiness gate is open and
// every readiness probe passes, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	respond(w, failed)
}

func respond(w http.ResponseWriter, failed map[string]string) {
	body := struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: "ok"}

	code := http.StatusOK
	if len(failed) > 0 {
		body.Status = "unhealthy"
		body.Checks = failed
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
