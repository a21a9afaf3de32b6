package bridge

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestLineChannelWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	channel := NewLineChannel(&buf, strings.NewReader(""))

	id, err := jsonrpc.MakeID(float64(1))
	if err != nil {
		t.Fatalf("MakeID failed: %v", err)
	}
	if err := channel.WriteMessage(&jsonrpc.Request{ID: id, Method: "ping"}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("line %q not newline-terminated", line)
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("line %q contains embedded newlines", line)
	}
}

func TestLineChannelConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf safeBuffer
	channel := NewLineChannel(&buf, strings.NewReader(""))

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = channel.WriteMessage(&jsonrpc.Request{Method: "notifications/tick"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("got %d lines, want %d", len(lines), n)
	}
	for _, line := range lines {
		if _, err := decodeLine(line); err != nil {
			t.Errorf("interleaved or corrupt line %q: %v", line, err)
		}
	}
}

func TestLineChannelReadLine(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"id\":1,\"result\":null}\nsecond line\n"
	channel := NewLineChannel(io.Discard, strings.NewReader(input))

	first, err := channel.ReadLine()
	if err != nil {
		t.Fatalf("first ReadLine failed: %v", err)
	}
	if string(first) != `{"jsonrpc":"2.0","id":1,"result":null}` {
		t.Errorf("first line = %q", first)
	}

	second, err := channel.ReadLine()
	if err != nil {
		t.Fatalf("second ReadLine failed: %v", err)
	}
	if string(second) != "second line" {
		t.Errorf("second line = %q", second)
	}

	if _, err := channel.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF at end of stream", err)
	}
}

// decodeLine is a test helper asserting a line is one whole JSON-RPC message.
func decodeLine(line string) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage([]byte(line))
}

// safeBuffer is a bytes.Buffer safe for concurrent writers.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
