package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "ok"))
	if got != 1 {
		t.Errorf("requests_total{POST,ok} = %v, want 1", got)
	}
}

func TestMetricsMiddlewareRecordsErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "error"))
	if got != 1 {
		t.Errorf("requests_total{POST,error} = %v, want 1", got)
	}
}

func TestMetricsMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/metrics", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "ok"))
	if got != 0 {
		t.Errorf("requests_total{GET,ok} = %v, want 0 for skipped endpoints", got)
	}
}

func TestRegisterBridgeCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	registerBridgeCollectors(reg,
		&fakeBridgeStatus{pending: 4, malformed: 2, discarded: 1},
		&fakeProcessStatus{alive: true, restarts: 2},
	)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	want := map[string]float64{
		"mcpgate_pending_calls":             4,
		"mcpgate_malformed_lines_total":     2,
		"mcpgate_discarded_responses_total": 1,
		"mcpgate_upstream_up":               1,
		"mcpgate_process_restarts_total":    2,
	}
	got := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				got[fam.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				got[fam.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %v, want %v", name, got[name], value)
		}
	}
}

func TestRegisterBridgeCollectorsNilSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	registerBridgeCollectors(reg, nil, nil)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("expected no collectors with nil sources, got %d families", len(families))
	}
}
