package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// startTransport runs a transport on an ephemeral port and returns its base
// URL and a stop function.
func startTransport(t *testing.T, opts ...Option) (string, func()) {
	t.Helper()

	// Reserve an ephemeral port, then hand it to the transport.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	opts = append([]Option{
		WithAddr(addr),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	transport := NewHTTPTransport(&fakeRPC{}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- transport.Start(ctx)
	}()

	base := "http://" + addr
	waitForServer(t, base+"/health")

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v after shutdown", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("transport did not shut down in time")
		}
	}
	return base, stop
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not come up in time")
}

func TestTransportServesMCPEndpoint(t *testing.T) {
	base, stop := startTransport(t)
	defer stop()

	body := strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	resp, err := http.Post(base+"/mcp", "application/json", body)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	raw, _ := io.ReadAll(resp.Body)
	var parsed jsonRPCResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("parse body %q: %v", raw, err)
	}
	if string(parsed.ID) != "1" {
		t.Errorf("id = %s, want 1", parsed.ID)
	}
}

func TestTransportServesMetrics(t *testing.T) {
	base, stop := startTransport(t, WithStatusSources(
		&fakeBridgeStatus{pending: 1},
		&fakeProcessStatus{alive: true},
	))
	defer stop()

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	raw, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"mcpgate_pending_calls", "mcpgate_upstream_up", "go_goroutines"} {
		if !strings.Contains(string(raw), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestTransportHealthEndpointReflectsChecker(t *testing.T) {
	hc := NewHealthChecker(&fakeProcessStatus{alive: false}, nil, "")
	base, stop := startTransport(t, WithHealthChecker(hc))
	defer stop()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestTransportUnknownPathNotFound(t *testing.T) {
	base, stop := startTransport(t)
	defer stop()

	resp, err := http.Get(base + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestTransportCloseWithoutStart(t *testing.T) {
	transport := NewHTTPTransport(&fakeRPC{})
	if err := transport.Close(); err != nil {
		t.Errorf("Close() before Start() = %v, want nil", err)
	}
}
