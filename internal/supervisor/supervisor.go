package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	ErrSpawn                = errors.New("failed to spawn process")
	ErrUnsupportedOperation = errors.New("operation not supported on this platform")
	ErrProcessExited        = errors.New("process has exited")
)

// Handle is an owned reference to a spawned capture process.
type Handle interface {
	Pid() int
	Suspend() error
	Resume() error
	// Terminate requests a graceful stop, waits for the exit and reclaims the
	// process. Calling it on an exited process returns nil.
	Terminate() error
	Exited() bool
	// ExitError reports how the process ended, or nil while it runs.
	ExitError() error
}

// Launcher spawns capture processes.
type Launcher interface {
	Spawn(argv []string, env []string) (Handle, error)
}

// Supervisor launches processes whose stop is bounded by stopTimeout, after
// which they are killed.
type Supervisor struct {
	stopTimeout time.Duration
}

func New(stopTimeout time.Duration) *Supervisor {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Supervisor{stopTimeout: stopTimeout}
}

// Process implements Handle for an os/exec child.
type Process struct {
	name        string
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stopTimeout time.Duration

	mu        sync.Mutex // serializes control operations
	suspended bool

	done    chan struct{}
	waitErr error
}

// Spawn starts argv with env appended to the current environment. A reaper
// goroutine waits on the child so it never lingers as a zombie.
func (s *Supervisor) Spawn(argv []string, env []string) (Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command line", ErrSpawn)
	}

	name := argv[0]
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = newLineLogger(name, "stdout")
	cmd.Stderr = newLineLogger(name, "stderr")
	cmd.WaitDelay = 2 * time.Second
	configureCmd(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create stdin pipe: %v", ErrSpawn, err)
	}

	slog.Info("Starting capture process", "command", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
	}

	p := &Process{
		name:        name,
		cmd:         cmd,
		stdin:       stdin,
		stopTimeout: s.stopTimeout,
		done:        make(chan struct{}),
	}
	go p.reap()

	slog.Debug("Capture process started", "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
	slog.Debug("Capture process exited", "pid", p.cmd.Process.Pid, "state", p.cmd.ProcessState.String())
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Exited() {
		return ErrProcessExited
	}
	if p.suspended {
		return nil
	}
	if err := suspendProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("failed to suspend %s (pid %d): %w", p.name, p.Pid(), err)
	}
	p.suspended = true
	return nil
}

func (p *Process) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Exited() {
		return ErrProcessExited
	}
	if !p.suspended {
		return nil
	}
	if err := resumeProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("failed to resume %s (pid %d): %w", p.name, p.Pid(), err)
	}
	p.suspended = false
	return nil
}

func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Exited() {
		return nil
	}

	// a stopped process cannot act on the quit request
	if p.suspended {
		if err := resumeProcess(p.cmd.Process); err != nil {
			slog.Warn("Failed to resume capture process before stopping", "pid", p.Pid(), "error", err)
		}
		p.suspended = false
	}

	// ffmpeg finishes the container cleanly when it reads 'q' on stdin
	if _, err := io.WriteString(p.stdin, "q\n"); err != nil {
		slog.Debug("Failed to write quit request to capture process", "error", err)
	}
	p.stdin.Close()
	if err := interruptProcess(p.cmd.Process); err != nil && !errors.Is(err, ErrUnsupportedOperation) {
		slog.Debug("Failed to interrupt capture process", "error", err)
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		slog.Debug("Capture process stopped", "pid", p.Pid(), "state", p.cmd.ProcessState.String())
		return nil
	case <-timer.C:
	}

	slog.Warn("Capture process did not exit within timeout, force killing", "pid", p.Pid(), "timeout", p.stopTimeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill %s (pid %d): %w", p.name, p.Pid(), err)
	}
	<-p.done
	return nil
}

func (p *Process) ExitError() error {
	if !p.Exited() {
		return nil
	}
	return p.waitErr
}

// lineLogger forwards child output to the debug log one line at a time.
type lineLogger struct {
	name   string
	stream string

	mu  sync.Mutex
	buf []byte
}

func newLineLogger(name, stream string) *lineLogger {
	return &lineLogger{name: name, stream: stream}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		// ffmpeg redraws its progress line with \r
		i := strings.IndexAny(string(l.buf), "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(l.buf[:i])); line != "" {
			slog.Debug("Capture process output", "process", l.name, "stream", l.stream, "line", line)
		}
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) > 4096 {
		slog.Debug("Capture process output", "process", l.name, "stream", l.stream, "line", string(l.buf))
		l.buf = l.buf[:0]
	}
	return len(p), nil
}
