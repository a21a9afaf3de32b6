package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the failure paths a caller can hit. All of them are
// returned to the immediate caller; none are swallowed.
var (
	// ErrProcessDown means the subprocess is not running, or died while the
	// call was outstanding.
	ErrProcessDown = errors.New("mcp server process is not running")

	// ErrAlreadyStarted means Start was called while the subprocess from a
	// previous Start is still running.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrTimeout means no response arrived within the call's window. A late
	// response for the same id is silently discarded.
	ErrTimeout = errors.New("timed out waiting for mcp server response")

	// ErrDuplicateID is an internal invariant violation: a request id was
	// registered twice. Fatal to the single call only.
	ErrDuplicateID = errors.New("duplicate request id")

	// ErrMalformed means the subprocess produced output that is not a valid
	// JSON-RPC message. It reaches a caller only when the broken line still
	// carried that caller's id.
	ErrMalformed = errors.New("malformed message from mcp server")
)

// RPCError is an application-level error object reported by the MCP server
// in a response. It is surfaced to the caller verbatim.
type RPCError struct {
	Code    int64
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
