package bridge

import (
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Outcome is what a waiting caller receives when its pending call settles:
// either the correlated response or the error that terminated the call.
type Outcome struct {
	Response *jsonrpc.Response
	Err      error
}

// pendingCall is one in-flight request awaiting its response.
type pendingCall struct {
	ch chan Outcome
}

// PendingTable is the correlation ledger mapping in-flight request ids to
// waiting callers' completion channels. Every entry is fulfilled exactly
// once: whichever path removes the entry from the map owns the send.
type PendingTable struct {
	mu    sync.Mutex
	calls map[int64]pendingCall
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{calls: make(map[int64]pendingCall)}
}

// Register inserts id with an unfulfilled completion channel and returns
// the receive side for the caller to wait on. Fails with ErrDuplicateID if
// the id is already outstanding; given the bridge's monotonic id
// allocation that indicates a caller bug and is fatal to this call only.
func (t *PendingTable) Register(id int64) (<-chan Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[id]; exists {
		return nil, ErrDuplicateID
	}

	// Buffered so the resolver never blocks on a caller that already
	// timed out.
	ch := make(chan Outcome, 1)
	t.calls[id] = pendingCall{ch: ch}
	return ch, nil
}

// Resolve fulfills the pending call for id with resp and removes the entry.
// Returns false when no call with that id is outstanding; the caller treats
// that as the discard case (the call timed out, was already resolved, or
// never originated here).
func (t *PendingTable) Resolve(id int64, resp *jsonrpc.Response) bool {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.ch <- Outcome{Response: resp}
	return true
}

// Fail fulfills the pending call for id with err and removes the entry.
// Returns false when the id is not outstanding.
func (t *PendingTable) Fail(id int64, err error) bool {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.ch <- Outcome{Err: err}
	return true
}

// Remove drops the entry for id without fulfilling it. Used by the caller's
// own timeout/cancellation path, which has already stopped listening.
func (t *PendingTable) Remove(id int64) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

// FailAll fulfills every outstanding call with err and clears the table.
// Invoked when the subprocess exit is detected.
func (t *PendingTable) FailAll(err error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]pendingCall)
	t.mu.Unlock()

	for _, call := range calls {
		call.ch <- Outcome{Err: err}
	}
}

// Len returns the number of outstanding calls.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
