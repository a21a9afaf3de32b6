package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcpgate/mcpgate/internal/bridge"
	"github.com/mcpgate/mcpgate/internal/port/inbound"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// JSON-RPC error codes. The -32000 range is reserved for
// implementation-defined server errors.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeInternalError  = -32603
	codeTimeout        = -32001
	codeUpstreamDown   = -32002
)

// mcpHandler creates the main HTTP handler for the bridge endpoint.
// POST carries one JSON-RPC message per request; other methods are rejected.
func mcpHandler(rpc inbound.RPC) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlePost(w, r, rpc)
		case http.MethodOptions:
			handleOptions(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

// handlePost forwards a single JSON-RPC message to the subprocess.
//
// Messages carrying an id block until the correlated response arrives and
// return it with the client's original id intact. Messages without an id
// are notifications: they are written upstream and acknowledged with
// 202 Accepted and an empty body.
func handlePost(w http.ResponseWriter, r *http.Request, rpc inbound.RPC) {
	// Validate content type before reading body to fail fast.
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/json" {
		writeJSONRPCError(w, nil, codeParseError, "Parse error: content type must be application/json", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONRPCError(w, nil, codeParseError, "Parse error: request body too large (max 1MB)", nil)
			return
		}
		writeJSONRPCError(w, nil, codeParseError, "Parse error: failed to read request body", nil)
		return
	}

	if len(body) == 0 {
		writeJSONRPCError(w, nil, codeParseError, "Parse error: empty request body", nil)
		return
	}
	if !json.Valid(body) {
		writeJSONRPCError(w, nil, codeParseError, "Parse error: invalid JSON", nil)
		return
	}

	var msg struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		ID      json.RawMessage `json:"id"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		// JSON is valid (passed json.Valid above) but not an object -
		// e.g., array, string, number, boolean.
		writeJSONRPCError(w, nil, codeInvalidRequest, "Invalid Request: request must be a JSON object", nil)
		return
	}
	if msg.JSONRPC != "2.0" {
		writeJSONRPCError(w, nil, codeInvalidRequest, "Invalid Request: missing or invalid jsonrpc version (must be \"2.0\")", nil)
		return
	}
	if msg.Method == "" {
		writeJSONRPCError(w, nil, codeInvalidRequest, "Invalid Request: missing method field", nil)
		return
	}

	// No id means notification: fire and forget, 202 with empty body.
	if msg.ID == nil {
		if err := rpc.Notify(msg.Method, msg.Params); err != nil {
			writeUpstreamError(w, nil, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// The bridge allocates its own upstream id; the client's id never
	// crosses the subprocess boundary and is restored verbatim here.
	result, err := rpc.Call(r.Context(), msg.Method, msg.Params, 0)
	if err != nil {
		if r.Context().Err() != nil {
			// Client disconnected, nobody is reading the response.
			return
		}
		writeUpstreamError(w, msg.ID, err)
		return
	}

	writeJSONRPCResult(w, msg.ID, result)
}

// writeUpstreamError maps a bridge error to a JSON-RPC error response.
// Server-reported errors pass through verbatim; transport failures map
// to implementation-defined codes.
func writeUpstreamError(w http.ResponseWriter, id json.RawMessage, err error) {
	var rpcErr *bridge.RPCError
	switch {
	case errors.As(err, &rpcErr):
		writeJSONRPCError(w, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	case errors.Is(err, bridge.ErrTimeout):
		writeJSONRPCError(w, id, codeTimeout, "Upstream timeout: MCP server did not respond in time", nil)
	case errors.Is(err, bridge.ErrProcessDown):
		writeJSONRPCError(w, id, codeUpstreamDown, "Upstream unavailable: MCP server process is not running", nil)
	default:
		writeJSONRPCError(w, id, codeInternalError, "Internal error", nil)
	}
}

// handleOptions handles CORS preflight requests.
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// jsonRPCResponse is the wire shape of a successful JSON-RPC 2.0 response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// jsonRPCError is the wire shape of a JSON-RPC 2.0 error response.
type jsonRPCError struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Error   jsonRPCErrorField `json:"error"`
}

type jsonRPCErrorField struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// writeJSONRPCResult writes a successful response carrying the client's
// original id.
func writeJSONRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	if result == nil {
		result = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// writeJSONRPCError writes a JSON-RPC error response.
// JSON-RPC errors still return 200 OK; HTTP status codes are reserved for
// transport-level failures.
func writeJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int64, message string, data json.RawMessage) {
	if id == nil {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jsonRPCError{
		JSONRPC: "2.0",
		ID:      id,
		Error: jsonRPCErrorField{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}
