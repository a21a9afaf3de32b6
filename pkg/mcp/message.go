// Package mcp provides JSON-RPC message classification and codec utilities
// for the mcpgate bridge.
package mcp

import (
	"encoding/json"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Kind classifies a decoded JSON-RPC message for correlation purposes.
type Kind int

const (
	// KindRequest is a message with both a method and an id. A reply is
	// expected by the sender. The upstream server issuing one of these is
	// a server-initiated callback, which the bridge does not support.
	KindRequest Kind = iota
	// KindResponse is a message with an id and no method. It is always a
	// candidate for correlation against the pending-call table.
	KindResponse
	// KindNotification is a message with no id. No reply is ever sent or
	// awaited for it.
	KindNotification
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Classify determines the correlation category of a decoded message.
//
// Classification order follows JSON-RPC 2.0: a method plus an id makes a
// request, an id without a method makes a response, and anything without
// an id is a notification. Presence of the id is the sole signal used for
// correlation.
func Classify(msg jsonrpc.Message) Kind {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		if m.ID.IsValid() {
			return KindRequest
		}
		return KindNotification
	case *jsonrpc.Response:
		return KindResponse
	default:
		return KindNotification
	}
}

// CorrelationID normalizes a JSON-RPC id to the int64 key space used by
// the bridge's pending-call table. The bridge only ever issues integer
// ids, but the decoded wire value may come back as a float64, an int64,
// or a numeric string depending on how the server echoes it.
// Returns false when the id cannot be mapped to an integer key.
func CorrelationID(id jsonrpc.ID) (int64, bool) {
	switch v := id.Raw().(type) {
	case int64:
		return v, true
	case float64:
		n := int64(v)
		if float64(n) != v {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// RawID extracts the "id" field from raw message bytes without decoding
// the full message. This is the recovery path for lines the SDK rejects
// as malformed: if an id is still readable, the bridge can fail the
// matching pending call instead of silently dropping the line.
// Returns nil when the bytes are not a JSON object or carry no id.
func RawID(raw []byte) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	id, ok := fields["id"]
	if !ok || string(id) == "null" {
		return nil
	}
	return id
}

// RawCorrelationID combines RawID and CorrelationID for undecodable lines.
// Returns false when no integer id is recoverable from the raw bytes.
func RawCorrelationID(raw []byte) (int64, bool) {
	id := RawID(raw)
	if id == nil {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(id, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
