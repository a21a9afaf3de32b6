// Package outbound defines the outbound port interfaces for the subprocess
// owning the MCP server.
package outbound

import (
	"io"
)

// Process is the outbound port for the supervised MCP server subprocess.
// The bridge core drives it; internal/proc implements it.
type Process interface {
	// Start launches the subprocess.
	// Returns the server's stdin (for sending) and stdout (for receiving).
	// Calling Start again after an exit begins a fresh cycle.
	Start() (stdin io.WriteCloser, stdout io.ReadCloser, err error)

	// IsAlive reports whether the subprocess is currently running,
	// without side effects.
	IsAlive() bool

	// Close terminates the subprocess and cleans up resources.
	Close() error
}
