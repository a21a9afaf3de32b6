// Package http provides the HTTP transport adapter for the bridge.
//
// It exposes the supervised MCP subprocess to HTTP clients: POST /mcp
// accepts a single JSON-RPC 2.0 message per request, /health reports
// subprocess liveness, and /metrics serves Prometheus metrics.
package http
