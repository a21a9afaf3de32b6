package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mcpgate/mcpgate/internal/proc"
)

// BridgeStatus exposes the bridge counters consulted by health and metrics.
type BridgeStatus interface {
	PendingCalls() int
	MalformedLines() int64
	DiscardedResponses() int64
}

// ProcessStatus exposes the subprocess state consulted by health and metrics.
type ProcessStatus interface {
	IsAlive() bool
	Handle() proc.Handle
	Restarts() int64
	StderrTail() []string
}

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	PID     int               `json:"pid,omitempty"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies bridge and subprocess health.
type HealthChecker struct {
	process ProcessStatus
	bridge  BridgeStatus
	version string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't available.
func NewHealthChecker(process ProcessStatus, bridge BridgeStatus, version string) *HealthChecker {
	return &HealthChecker{
		process: process,
		bridge:  bridge,
		version: version,
	}
}

// Check inspects subprocess liveness and bridge counters.
// The subprocess being down makes the whole service unhealthy: every
// request would fail, so load balancers should stop routing here.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true
	pid := 0

	if h.process != nil {
		handle := h.process.Handle()
		if h.process.IsAlive() {
			pid = handle.PID
			checks["upstream"] = fmt.Sprintf("ok: pid %d (%s)", handle.PID, handle.State)
			checks["uptime"] = time.Since(handle.StartedAt).Round(time.Second).String()
		} else {
			healthy = false
			checks["upstream"] = fmt.Sprintf("down: %s (exit code %d)", handle.State, handle.ExitCode)
			if tail := h.process.StderrTail(); len(tail) > 0 {
				checks["upstream_stderr"] = tail[len(tail)-1]
			}
		}
	} else {
		checks["upstream"] = "not configured"
	}

	if h.bridge != nil {
		checks["pending_calls"] = fmt.Sprintf("%d", h.bridge.PendingCalls())
		if n := h.bridge.MalformedLines(); n > 0 {
			checks["malformed_lines"] = fmt.Sprintf("%d", n)
		}
		if n := h.bridge.DiscardedResponses(); n > 0 {
			checks["discarded_responses"] = fmt.Sprintf("%d", n)
		}
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		PID:     pid,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
// Returns 503 when the subprocess is down so orchestrators can act on it.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler returns a plain 200 handler used when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
