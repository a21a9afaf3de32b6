package proc

import (
	"bufio"
	"io"
	"sync"
)

// stderrRingSize bounds how many recent stderr lines are retained for
// diagnostics.
const stderrRingSize = 64

// stderrRing is a bounded ring of the subprocess's most recent stderr lines.
type stderrRing struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newStderrRing(max int) *stderrRing {
	return &stderrRing{max: max}
}

func (r *stderrRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

// tail returns a copy of the retained lines, oldest first.
func (r *stderrRing) tail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// newStderrScanner wraps stderr with a scanner sized for long log lines.
func newStderrScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16*1024), 256*1024)
	return scanner
}
