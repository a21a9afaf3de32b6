// Package bridge implements the request/response correlation engine between
// concurrent HTTP callers and a single MCP server subprocess speaking
// newline-delimited JSON-RPC 2.0 over its stdio streams.
//
// The bridge is the sole owner of the subprocess's stdio: it serializes all
// writes onto one lane, runs exactly one background reader loop over the
// output stream, and routes each response to the caller whose id matches,
// regardless of arrival order.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/mcpgate/mcpgate/internal/port/inbound"
	"github.com/mcpgate/mcpgate/internal/port/outbound"
	"github.com/mcpgate/mcpgate/pkg/mcp"
)

// DefaultCallTimeout is the Call window used when the caller passes none.
const DefaultCallTimeout = 30 * time.Second

// Option is a functional option for configuring a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for the bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger.With("component", "bridge")
	}
}

// WithCallTimeout sets the default timeout applied to Call when the caller
// does not supply one.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// Bridge exposes Call and Notify over a supervised MCP server subprocess.
// Ids are allocated by the bridge as monotonically increasing integers and
// never reused while outstanding.
type Bridge struct {
	proc    outbound.Process
	logger  *slog.Logger
	pending *PendingTable
	timeout time.Duration

	nextID atomic.Int64

	mu         sync.Mutex
	channel    *LineChannel
	readerDone chan struct{}

	malformedLines     atomic.Int64
	discardedResponses atomic.Int64
}

// New creates a bridge over the given supervised process. Call Start
// before the first Call or Notify.
func New(process outbound.Process, opts ...Option) *Bridge {
	b := &Bridge{
		proc:    process,
		logger:  slog.Default().With("component", "bridge"),
		pending: NewPendingTable(),
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the subprocess and begins the reader loop. It can be
// called again after the subprocess has exited to begin a fresh cycle;
// each cycle gets its own LineChannel and reader loop.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc.IsAlive() {
		return ErrAlreadyStarted
	}
	// Join the previous cycle's reader before starting a new one so two
	// loops never consume the table concurrently.
	if b.readerDone != nil {
		<-b.readerDone
	}

	stdin, stdout, err := b.proc.Start()
	if err != nil {
		return err
	}
	channel := NewLineChannel(stdin, stdout)

	done := make(chan struct{})
	b.channel = channel
	b.readerDone = done
	go b.readLoop(channel, done)
	return nil
}

// Call sends a request to the subprocess and blocks until the correlated
// response arrives, the timeout elapses, the context is cancelled, or the
// subprocess dies. It returns the response's result payload, or the error
// object as an *RPCError when the server reported one.
//
// A timeout or cancellation removes only this call's pending entry; a late
// response for it is discarded by the reader loop.
func (b *Bridge) Call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = b.timeout
	}
	channel := b.lineChannel()
	if channel == nil || !b.proc.IsAlive() {
		return nil, ErrProcessDown
	}

	id := b.nextID.Add(1)
	wait, err := b.pending.Register(id)
	if err != nil {
		return nil, err
	}

	jid, err := jsonrpc.MakeID(float64(id))
	if err != nil {
		b.pending.Remove(id)
		return nil, fmt.Errorf("make request id: %w", err)
	}
	req := &jsonrpc.Request{ID: jid, Method: method, Params: params}

	if err := channel.WriteMessage(req); err != nil {
		b.pending.Remove(id)
		if !b.proc.IsAlive() {
			return nil, ErrProcessDown
		}
		return nil, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-wait:
		if out.Err != nil {
			return nil, out.Err
		}
		resp := out.Response
		if resp.Error != nil {
			// Response.Error is the error interface; the wire object the
			// server actually sent is a *jsonrpc.Error underneath.
			var wireErr *jsonrpc.Error
			if errors.As(resp.Error, &wireErr) {
				return nil, &RPCError{
					Code:    wireErr.Code,
					Message: wireErr.Message,
					Data:    wireErr.Data,
				}
			}
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		b.pending.Remove(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		b.pending.Remove(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification to the subprocess. It returns once the write
// succeeds; no reply is awaited and nothing is registered for correlation.
func (b *Bridge) Notify(method string, params json.RawMessage) error {
	channel := b.lineChannel()
	if channel == nil || !b.proc.IsAlive() {
		return ErrProcessDown
	}

	note := &jsonrpc.Request{Method: method, Params: params}
	if err := channel.WriteMessage(note); err != nil {
		if !b.proc.IsAlive() {
			return ErrProcessDown
		}
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Close terminates the subprocess, waits for the reader loop to drain, and
// fails any pending calls. The bridge can be restarted with Start.
func (b *Bridge) Close() error {
	err := b.proc.Close()

	b.mu.Lock()
	done := b.readerDone
	b.mu.Unlock()
	if done != nil {
		<-done
	}
	return err
}

// PendingCalls returns the number of calls currently awaiting a response.
func (b *Bridge) PendingCalls() int {
	return b.pending.Len()
}

// MalformedLines returns how many subprocess output lines failed to decode.
func (b *Bridge) MalformedLines() int64 {
	return b.malformedLines.Load()
}

// DiscardedResponses returns how many responses arrived with no matching
// pending call.
func (b *Bridge) DiscardedResponses() int64 {
	return b.discardedResponses.Load()
}

// lineChannel returns the current cycle's channel, nil before first Start.
func (b *Bridge) lineChannel() *LineChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel
}

// readLoop is the single consumer of the subprocess's output stream. It
// dispatches each line, and on stream closure fails every outstanding call:
// end of stream means the process is gone, and all buffered responses have
// been drained by that point.
func (b *Bridge) readLoop(channel *LineChannel, done chan struct{}) {
	defer close(done)

	for {
		line, err := channel.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Warn("read from mcp server failed", "error", err)
			}
			break
		}
		b.dispatch(line)
	}

	b.pending.FailAll(ErrProcessDown)
}

// dispatch classifies one output line and routes it. Malformed lines never
// terminate the loop: with a recoverable id they fail that specific pending
// call, otherwise they are logged and dropped.
func (b *Bridge) dispatch(line []byte) {
	msg, err := mcp.DecodeMessage(line)
	if err != nil {
		b.malformedLines.Add(1)
		if id, ok := mcp.RawCorrelationID(line); ok {
			if b.pending.Fail(id, fmt.Errorf("%w: %v", ErrMalformed, err)) {
				b.logger.Warn("malformed line failed its pending call", "id", id, "error", err)
				return
			}
		}
		b.logger.Warn("dropping malformed line from mcp server", "error", err)
		return
	}

	switch mcp.Classify(msg) {
	case mcp.KindResponse:
		resp := msg.(*jsonrpc.Response)
		id, ok := mcp.CorrelationID(resp.ID)
		if !ok {
			b.discardedResponses.Add(1)
			b.logger.Warn("response id outside bridge id space, discarding", "id", resp.ID.Raw())
			return
		}
		if !b.pending.Resolve(id, resp) {
			// Call already timed out, was already resolved, or never
			// originated here.
			b.discardedResponses.Add(1)
			b.logger.Warn("no pending call for response, discarding", "id", id)
		}
	case mcp.KindNotification:
		b.logger.Debug("notification from mcp server", "method", requestMethod(msg))
	case mcp.KindRequest:
		// Server-initiated requests are valid JSON-RPC but unsupported
		// here; log and drop rather than guess at intended semantics.
		b.logger.Warn("unsupported server-initiated request, dropping", "method", requestMethod(msg))
	}
}

func requestMethod(msg jsonrpc.Message) string {
	if req, ok := msg.(*jsonrpc.Request); ok {
		return req.Method
	}
	return ""
}

// Compile-time check that Bridge implements the inbound RPC port.
var _ inbound.RPC = (*Bridge)(nil)
