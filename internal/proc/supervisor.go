// Package proc owns the upstream MCP server subprocess: launch, liveness
// tracking, exit detection, and the newline-delimited stdio framing.
package proc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/internal/port/outbound"
)

// State is the lifecycle state of the supervised subprocess.
type State int

const (
	// StateStarting means the subprocess has not been launched yet.
	StateStarting State = iota
	// StateRunning means the subprocess is launched and not known to have exited.
	StateRunning
	// StateExited means the subprocess has terminated. Terminal unless the
	// caller explicitly relaunches via Start.
	StateExited
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Command describes the subprocess to launch. Resolving the executable,
// arguments, working directory, and environment is the config layer's job.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Handle is a read-only snapshot of the subprocess state.
type Handle struct {
	PID       int
	State     State
	StartedAt time.Time
	ExitCode  int // valid only when State is StateExited
	ExitedAt  time.Time
}

// Supervisor launches the upstream MCP server as a subprocess and watches
// for its exit. There is no automatic restart: once the process exits,
// the supervisor stays in StateExited until the owner calls Start again.
//
// The owner must call Close when done; a cancelled context alone does not
// terminate the subprocess.
type Supervisor struct {
	spec   Command
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exitCode  int
	exitedAt  time.Time
	starts    int64
	stdin     io.WriteCloser
	stderr    *stderrRing
	done      chan struct{}
}

// NewSupervisor creates a supervisor for the given command spec.
func NewSupervisor(spec Command, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		spec:   spec,
		logger: logger.With("component", "supervisor"),
		state:  StateStarting,
		stderr: newStderrRing(stderrRingSize),
	}
}

// Start launches the subprocess and returns its stdin and stdout pipes.
// It fails if the process is already running. Calling Start again after an
// exit begins a fresh supervisor cycle with fresh pipes. The server's
// stderr is captured separately and never parsed as protocol content.
func (s *Supervisor) Start() (io.WriteCloser, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return nil, nil, errors.New("process already running")
	}

	cmd := exec.Command(s.spec.Path, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	cmd.Env = s.spec.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, nil, fmt.Errorf("start %s: %w", s.spec.Path, err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.state = StateRunning
	s.starts++
	s.done = done

	go s.collectStderr(stderr)
	go s.watch(cmd, done)

	s.logger.Info("mcp server started", "path", s.spec.Path, "pid", s.pid)
	return stdin, stdout, nil
}

// watch blocks until the subprocess terminates, then records the exit and
// signals done. It waits on the process directly instead of cmd.Wait:
// cmd.Wait closes the parent's stdout pipe, which would race with the
// bridge's reader loop still draining buffered responses.
func (s *Supervisor) watch(cmd *exec.Cmd, done chan struct{}) {
	state, err := cmd.Process.Wait()

	code := -1
	if state != nil {
		code = state.ExitCode()
	}

	s.mu.Lock()
	s.state = StateExited
	s.exitCode = code
	s.exitedAt = time.Now()
	s.mu.Unlock()

	close(done)
	s.logger.Warn("mcp server exited", "pid", cmd.Process.Pid, "exit_code", code, "error", err)
}

// collectStderr drains the subprocess's stderr into the diagnostic ring.
// Stderr is never parsed as protocol content.
func (s *Supervisor) collectStderr(r io.Reader) {
	scanner := newStderrScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.stderr.append(line)
		s.logger.Debug("mcp server stderr", "line", line)
	}
}

// IsAlive reports whether the subprocess is running. No side effects; used
// by the health endpoint and by the bridge's fast-fail path.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// Handle returns a snapshot of the current process state.
func (s *Supervisor) Handle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Handle{
		PID:       s.pid,
		State:     s.state,
		StartedAt: s.startedAt,
		ExitCode:  s.exitCode,
		ExitedAt:  s.exitedAt,
	}
}

// Done returns a channel closed when the current subprocess cycle exits.
// Must be called after Start; each Start call installs a fresh channel.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Restarts returns how many times the subprocess has been relaunched
// beyond the initial start.
func (s *Supervisor) Restarts() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.starts == 0 {
		return 0
	}
	return s.starts - 1
}

// StderrTail returns the most recent stderr lines from the subprocess,
// oldest first. Useful for surfacing crash diagnostics.
func (s *Supervisor) StderrTail() []string {
	return s.stderr.tail()
}

// Close terminates the subprocess and waits for the watcher to observe the
// exit. Closing stdin first gives the server a chance to shut down on EOF
// before the kill.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	done := s.done
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	var errs []error
	if stdin != nil {
		if err := stdin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdin: %w", err))
		}
	}

	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill process: %w", err))
		}
	}

	if done != nil {
		<-done
	}

	return errors.Join(errs...)
}

// Compile-time check that Supervisor implements the Process port.
var _ outbound.Process = (*Supervisor)(nil)
