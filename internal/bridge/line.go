package bridge

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/mcpgate/mcpgate/pkg/mcp"
)

// LineChannel frames newline-delimited JSON-RPC messages over a subprocess's
// stdio pipes, one message per line per the MCP stdio transport convention.
// Writes are serialized so concurrent callers never interleave partial lines.
// Reads are not restartable: a new supervisor cycle creates a new LineChannel.
type LineChannel struct {
	writeMu sync.Mutex
	stdin   io.Writer

	scanner *bufio.Scanner
}

// NewLineChannel wraps the subprocess's stdin and stdout pipes.
func NewLineChannel(stdin io.Writer, stdout io.Reader) *LineChannel {
	scanner := bufio.NewScanner(stdout)
	// MCP messages can be large; grow the scanner buffer well past the
	// 64KB default.
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	return &LineChannel{
		stdin:   stdin,
		scanner: scanner,
	}
}

// WriteMessage serializes msg to its single-line encoding and writes it,
// newline-terminated, to the subprocess's stdin. The line is written in one
// call under the write lock so concurrent writers cannot interleave.
func (c *LineChannel) WriteMessage(msg jsonrpc.Message) error {
	raw, err := mcp.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadLine returns the next newline-delimited chunk from the subprocess's
// stdout. It blocks until a line arrives, the stream closes (io.EOF), or a
// read error occurs. Only one goroutine may call ReadLine.
func (c *LineChannel) ReadLine() ([]byte, error) {
	if c.scanner.Scan() {
		// Copy out: the scanner reuses its buffer on the next Scan.
		return append([]byte(nil), c.scanner.Bytes()...), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
