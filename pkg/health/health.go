// Package health provides Kubernetes-style liveness and readiness probes
// for long-running workers. Checks run on a shared background ticker;
// consecutive-failure thresholds keep a single slow probe from flapping
// the reported state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// failureThreshold is how many consecutive failures mark a check
// unhealthy; a single success marks it healthy again.
const failureThreshold = 3

type check struct {
	name    string
	timeout time.Duration
	probe   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// fails is only touched from the run loop goroutine.
	fails int
}

func (c *check) run(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.probe(probeCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.fails++
		if c.fails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.healthy.Store(true)
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Health instance. The service starts not-ready; call
// SetReady(true) once initialization has finished.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process is
// alive at all (goroutine counts, deadlock canaries).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, probe CheckFunc) {
	h.add(&h.liveness, name, timeout, probe)
}

// AddReadinessCheck registers a check that decides whether the service can
// do useful work (database connectivity and the like).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, probe CheckFunc) {
	h.add(&h.readiness, name, timeout, probe)
}

func (h *Health) add(list *[]*check, name string, timeout time.Duration, probe CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &check{name: name, timeout: timeout, probe: probe}
	c.healthy.Store(true)
	*list = append(*list, c)
}

// Start launches the background loop running every registered check on the
// given interval. Call Stop to halt it.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		h.runAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.runAll(ctx)
			}
		}
	}()
}

// Stop halts the background loop and waits for it to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetReady flips the administrative readiness gate. Readiness endpoints
// report ready only when the gate is open and every readiness check passes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Health) runAll(ctx context.Context) {
	for _, c := range h.snapshot(&h.liveness) {
		c.run(ctx)
	}
	for _, c := range h.snapshot(&h.readiness) {
		c.run(ctx)
	}
}

func (h *Health) snapshot(list *[]*check) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*check(nil), *list...)
}

// LiveEndpoint is an http.HandlerFunc reporting liveness.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, h.snapshot(&h.liveness), true)
}

// ReadyEndpoint is an http.HandlerFunc reporting readiness.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, h.snapshot(&h.readiness), h.ready.Load())
}

func (h *Health) respond(w http.ResponseWriter, checks []*check, gate bool) {
	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(checks))

	for _, c := range checks {
		if c.healthy.Load() {
			results[c.name] = "ok"
			continue
		}
		msg := "failing"
		if p := c.lastErr.Load(); p != nil && *p != nil {
			msg = (*p).Error()
		}
		results[c.name] = msg
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if !gate {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": results,
	})
}
