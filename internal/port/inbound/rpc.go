// Package inbound defines the inbound port interfaces for the bridge core.
// Inbound adapters (the HTTP transport) call these interfaces.
package inbound

import (
	"context"
	"encoding/json"
	"time"
)

// RPC is the inbound port for the bridge core.
type RPC interface {
	// Call sends a request to the MCP server and blocks until the
	// correlated response arrives or the timeout elapses. A zero timeout
	// selects the bridge's default window.
	Call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error)

	// Notify sends a notification to the MCP server. Returns once the
	// write succeeds; no reply is awaited.
	Notify(method string, params json.RawMessage) error
}
