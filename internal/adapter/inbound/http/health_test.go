package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpgate/mcpgate/internal/proc"
)

type fakeProcessStatus struct {
	alive    bool
	handle   proc.Handle
	restarts int64
	stderr   []string
}

func (f *fakeProcessStatus) IsAlive() bool       { return f.alive }
func (f *fakeProcessStatus) Handle() proc.Handle { return f.handle }
func (f *fakeProcessStatus) Restarts() int64     { return f.restarts }
func (f *fakeProcessStatus) StderrTail() []string {
	return f.stderr
}

type fakeBridgeStatus struct {
	pending   int
	malformed int64
	discarded int64
}

func (f *fakeBridgeStatus) PendingCalls() int         { return f.pending }
func (f *fakeBridgeStatus) MalformedLines() int64     { return f.malformed }
func (f *fakeBridgeStatus) DiscardedResponses() int64 { return f.discarded }

func checkHealth(t *testing.T, hc *HealthChecker) (int, HealthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, req)

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse health response: %v\nbody: %s", err, rec.Body.String())
	}
	return rec.Code, resp
}

func TestHealthCheckerHealthy(t *testing.T) {
	hc := NewHealthChecker(
		&fakeProcessStatus{alive: true, handle: proc.Handle{PID: 4321, State: proc.StateRunning}},
		&fakeBridgeStatus{pending: 2},
		"1.2.3",
	)

	status, resp := checkHealth(t, hc)

	if status != http.StatusOK {
		t.Errorf("status code = %d, want %d", status, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want %q", resp.Status, "healthy")
	}
	if resp.PID != 4321 {
		t.Errorf("pid = %d, want 4321", resp.PID)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", resp.Version, "1.2.3")
	}
	if resp.Checks["pending_calls"] != "2" {
		t.Errorf("pending_calls = %q, want %q", resp.Checks["pending_calls"], "2")
	}
}

func TestHealthCheckerUnhealthyWhenProcessDown(t *testing.T) {
	hc := NewHealthChecker(
		&fakeProcessStatus{
			alive:  false,
			handle: proc.Handle{State: proc.StateExited, ExitCode: 1},
			stderr: []string{"stack trace line 1", "fatal: config missing"},
		},
		&fakeBridgeStatus{},
		"",
	)

	status, resp := checkHealth(t, hc)

	if status != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", status, http.StatusServiceUnavailable)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q, want %q", resp.Status, "unhealthy")
	}
	if resp.Checks["upstream_stderr"] != "fatal: config missing" {
		t.Errorf("upstream_stderr = %q, want last stderr line", resp.Checks["upstream_stderr"])
	}
}

func TestHealthCheckerReportsErrorCounters(t *testing.T) {
	hc := NewHealthChecker(
		&fakeProcessStatus{alive: true, handle: proc.Handle{PID: 1, State: proc.StateRunning}},
		&fakeBridgeStatus{malformed: 3, discarded: 1},
		"",
	)

	_, resp := checkHealth(t, hc)

	if resp.Checks["malformed_lines"] != "3" {
		t.Errorf("malformed_lines = %q, want %q", resp.Checks["malformed_lines"], "3")
	}
	if resp.Checks["discarded_responses"] != "1" {
		t.Errorf("discarded_responses = %q, want %q", resp.Checks["discarded_responses"], "1")
	}
}

func TestHealthHandlerFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	healthHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}
