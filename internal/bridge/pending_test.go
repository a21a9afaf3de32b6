package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func testResponse(t *testing.T, id int64) *jsonrpc.Response {
	t.Helper()
	jid, err := jsonrpc.MakeID(float64(id))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	return &jsonrpc.Response{ID: jid, Result: json.RawMessage(`"ok"`)}
}

func TestPendingRegisterResolve(t *testing.T) {
	table := NewPendingTable()

	ch, err := table.Register(1)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}

	resp := testResponse(t, 1)
	if !table.Resolve(1, resp) {
		t.Fatal("Resolve returned false for a registered id")
	}
	out := <-ch
	if out.Err != nil {
		t.Fatalf("outcome error: %v", out.Err)
	}
	if out.Response != resp {
		t.Error("outcome carries a different response")
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0 after resolve", table.Len())
	}
}

func TestPendingDuplicateID(t *testing.T) {
	table := NewPendingTable()
	if _, err := table.Register(1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := table.Register(1); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
	// The original registration is untouched.
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}
}

func TestPendingResolveAbsentIsNoop(t *testing.T) {
	table := NewPendingTable()
	if table.Resolve(42, testResponse(t, 42)) {
		t.Error("Resolve returned true for an absent id")
	}
	if table.Fail(42, ErrTimeout) {
		t.Error("Fail returned true for an absent id")
	}
}

func TestPendingRemoveThenResolve(t *testing.T) {
	table := NewPendingTable()
	ch, err := table.Register(1)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// The caller's timeout path removed its own entry; the late resolve
	// is discarded and nothing reaches the channel.
	table.Remove(1)
	if table.Resolve(1, testResponse(t, 1)) {
		t.Error("Resolve returned true after Remove")
	}
	select {
	case out := <-ch:
		t.Errorf("unexpected outcome after Remove: %+v", out)
	default:
	}
}

func TestPendingFailAll(t *testing.T) {
	table := NewPendingTable()

	const n = 5
	var chans [n]<-chan Outcome
	for i := range chans {
		ch, err := table.Register(int64(i + 1))
		if err != nil {
			t.Fatalf("Register(%d) failed: %v", i+1, err)
		}
		chans[i] = ch
	}

	table.FailAll(ErrProcessDown)

	for i, ch := range chans {
		out := <-ch
		if !errors.Is(out.Err, ErrProcessDown) {
			t.Errorf("call %d: err = %v, want ErrProcessDown", i+1, out.Err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0 after FailAll", table.Len())
	}
}

func TestPendingConcurrentResolvers(t *testing.T) {
	table := NewPendingTable()

	const n = 64
	chans := make([]<-chan Outcome, n)
	for i := 0; i < n; i++ {
		ch, err := table.Register(int64(i))
		if err != nil {
			t.Fatalf("Register(%d) failed: %v", i, err)
		}
		chans[i] = ch
	}

	responses := make([]*jsonrpc.Response, n)
	for i := 0; i < n; i++ {
		responses[i] = testResponse(t, int64(i))
	}

	// Resolvers for different ids never block each other beyond the map's
	// critical section; every caller sees exactly its own id.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			table.Resolve(id, responses[id])
		}(int64(i))
	}
	wg.Wait()

	for i, ch := range chans {
		out := <-ch
		if out.Err != nil {
			t.Errorf("call %d: unexpected error %v", i, out.Err)
		}
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
}
