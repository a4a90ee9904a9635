package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiolibrelab/ghostrec/internal/control"
	"github.com/audiolibrelab/ghostrec/internal/naming"
	"github.com/audiolibrelab/ghostrec/internal/supervisor"
)

// State represents the current state of the recording agent
type State string

const (
	StateIdle       State = "IDLE"
	StateRecording  State = "RECORDING"
	StatePaused     State = "PAUSED"
	StateTerminated State = "TERMINATED"
)

// SessionInfo describes the active recording session
type SessionInfo struct {
	ID             string    `json:"id"`
	Project        string    `json:"project"`
	InterviewerID  string    `json:"interviewer_id"`
	SID            string    `json:"sid"`
	StartTime      time.Time `json:"start_time"`
	FileName       string    `json:"file_name"`
	InProgressFile string    `json:"in_progress_file"`
	PID            int       `json:"pid"`
}

// Status is a point-in-time view of the dispatcher
type Status struct {
	State       State        `json:"state"`
	Session     *SessionInfo `json:"session,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	LastFile    string       `json:"last_file,omitempty"`
	Completed   int          `json:"completed_sessions"`
	PendingCmds []string     `json:"pending_commands,omitempty"`
}

// Layout places in-progress recordings and finalizes completed ones.
type Layout interface {
	InProgressPath(fileName string) string
	Finalize(inProgress string) (string, error)
}

// Identity is the fixed (project, interviewer, sample) tuple of this agent.
type Identity struct {
	Project       string
	InterviewerID string
	SID           string
}

type Options struct {
	Identity Identity
	Host     string
	Format   string

	Mailbox  *control.Mailbox
	Launcher supervisor.Launcher
	Layout   Layout

	// BuildCommand returns the capture command line writing to outputFile.
	BuildCommand func(outputFile string) []string
	Env          []string

	PollInterval time.Duration
	Registerer   prometheus.Registerer
	Now          func() time.Time
}

// Dispatcher owns at most one capture process and applies control signals
// from the mailbox as state transitions. All transitions run on the goroutine
// calling Tick or Run; Status may be called from anywhere.
type Dispatcher struct {
	opts    Options
	metrics *metrics

	mu        sync.RWMutex
	state     State
	session   *session
	lastError string
	lastFile  string
	completed int

	terminated core.Fuse
}

type session struct {
	info SessionInfo
	proc supervisor.Handle
}

func New(opts Options) *Dispatcher {
	if opts.Mailbox == nil {
		opts.Mailbox = control.NewMailbox()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Format == "" {
		opts.Format = "mp4"
	}

	d := &Dispatcher{
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
		state:   StateIdle,
	}
	d.metrics.setState(StateIdle)
	return d
}

// Run polls the mailbox at the configured interval until Exit is applied.
// Cancelling ctx is treated as Exit.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher started", "poll_interval", d.opts.PollInterval)

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher context cancelled, exiting")
			d.opts.Mailbox.Set(control.Exit)
			d.Tick()
			return
		case <-ticker.C:
			if !d.Tick() {
				return
			}
		}
	}
}

// Tick applies at most one state transition from the pending signals, in
// priority order Start, Pause, Resume, Stop. A pending Exit preempts them and
// ends the dispatcher. Tick reports whether the dispatcher is still running.
func (d *Dispatcher) Tick() bool {
	if d.terminated.IsBroken() {
		return false
	}

	d.reapExited()

	mailbox := d.opts.Mailbox
	if !mailbox.IsSet(control.Exit) {
		d.applyNext()
	}

	if mailbox.Take(control.Exit) {
		d.exit()
		return false
	}
	return true
}

// Done is closed once the dispatcher reaches Terminated.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.terminated.Watch()
}

func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		State:     d.state,
		LastError: d.lastError,
		LastFile:  d.lastFile,
		Completed: d.completed,
	}
	if d.session != nil {
		info := d.session.info
		status.Session = &info
	}
	for _, sig := range d.opts.Mailbox.Pending() {
		status.PendingCmds = append(status.PendingCmds, sig.String())
	}
	return status
}

func (d *Dispatcher) applyNext() {
	for _, sig := range []control.Signal{control.Start, control.Pause, control.Resume, control.Stop} {
		if !d.opts.Mailbox.Take(sig) {
			continue
		}
		if d.apply(sig) {
			return
		}
		slog.Debug("Ignoring command in current state", "command", sig.String(), "state", d.state)
		d.metrics.ignored.WithLabelValues(sig.String()).Inc()
	}
}

// apply runs the transition for sig and reports whether sig was applicable.
func (d *Dispatcher) apply(sig control.Signal) bool {
	switch d.state {
	case StateIdle:
		if sig == control.Start {
			d.startSession()
			return true
		}
	case StateRecording:
		switch sig {
		case control.Pause:
			d.pauseSession()
			return true
		case control.Stop:
			d.stopSession()
			return true
		}
	case StatePaused:
		switch sig {
		case control.Resume:
			d.resumeSession()
			return true
		case control.Stop:
			d.stopSession()
			return true
		}
	}
	return false
}

func (d *Dispatcher) startSession() {
	o := d.opts
	now := o.Now()
	fileName := naming.BuildFileName(o.Identity.Project, o.Identity.InterviewerID, o.Identity.SID, now, o.Host, o.Format)
	inProgress := o.Layout.InProgressPath(fileName)

	proc, err := o.Launcher.Spawn(o.BuildCommand(inProgress), o.Env)
	if err != nil {
		slog.Error("Failed to start recording", "file", fileName, "error", err)
		d.recordError("spawn", err)
		return
	}

	s := &session{
		info: SessionInfo{
			ID:             uuid.NewString(),
			Project:        o.Identity.Project,
			InterviewerID:  o.Identity.InterviewerID,
			SID:            o.Identity.SID,
			StartTime:      now,
			FileName:       fileName,
			InProgressFile: inProgress,
			PID:            proc.Pid(),
		},
		proc: proc,
	}

	d.mu.Lock()
	d.session = s
	d.state = StateRecording
	d.lastError = ""
	d.mu.Unlock()
	d.metrics.setState(StateRecording)
	d.metrics.started.Inc()

	slog.Info("Recording started", "session", s.info.ID, "file", fileName, "pid", s.info.PID)
}

func (d *Dispatcher) pauseSession() {
	s := d.session
	if err := s.proc.Suspend(); err != nil {
		slog.Warn("Failed to pause recording, still recording", "session", s.info.ID, "error", err)
		d.recordError("suspend", err)
		return
	}
	d.setState(StatePaused)
	slog.Info("Recording paused", "session", s.info.ID)
}

func (d *Dispatcher) resumeSession() {
	s := d.session
	if err := s.proc.Resume(); err != nil {
		slog.Warn("Failed to resume recording, still paused", "session", s.info.ID, "error", err)
		d.recordError("resume", err)
		return
	}
	d.setState(StateRecording)
	slog.Info("Recording resumed", "session", s.info.ID)
}

// stopSession ends the session and finalizes its file. Failures are logged
// and the dispatcher returns to Idle regardless.
func (d *Dispatcher) stopSession() {
	s := d.endSession(StateIdle)
	slog.Info("Recording stopped", "session", s.info.ID)
}

// endSession terminates the session's process, finalizes its file, releases
// the session and moves to next.
func (d *Dispatcher) endSession(next State) *session {
	s := d.session

	if err := s.proc.Terminate(); err != nil {
		slog.Error("Failed to terminate capture process", "session", s.info.ID, "pid", s.info.PID, "error", err)
		d.recordError("terminate", err)
	}

	committed, err := d.opts.Layout.Finalize(s.info.InProgressFile)
	if err != nil {
		slog.Error("Failed to finalize recording", "session", s.info.ID, "file", s.info.InProgressFile, "error", err)
		d.recordError("finalize", err)
	} else {
		slog.Info("Recording saved", "session", s.info.ID, "file", committed,
			"duration", d.opts.Now().Sub(s.info.StartTime).Round(time.Second))
		d.metrics.finalized.Inc()
	}

	d.mu.Lock()
	d.session = nil
	d.state = next
	d.completed++
	if err == nil {
		d.lastFile = committed
	}
	d.mu.Unlock()
	d.metrics.setState(next)
	return s
}

// reapExited detects a capture process that died on its own so the
// dispatcher never reports Recording without a live process.
func (d *Dispatcher) reapExited() {
	if d.session == nil || !d.session.proc.Exited() {
		return
	}

	s := d.session
	exitErr := s.proc.ExitError()
	slog.Warn("Capture process exited unexpectedly", "session", s.info.ID, "pid", s.info.PID, "error", exitErr)
	if exitErr != nil {
		d.recordError("exited", exitErr)
	} else {
		d.metrics.errors.WithLabelValues("exited").Inc()
	}
	d.endSession(StateIdle)
}

func (d *Dispatcher) exit() {
	if d.session != nil {
		slog.Info("Exit requested, stopping active recording", "session", d.session.info.ID)
		d.endSession(StateTerminated)
	} else {
		d.setState(StateTerminated)
	}
	d.terminated.Break()
	slog.Info("Dispatcher terminated")
}

func (d *Dispatcher) setState(state State) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	d.metrics.setState(state)
}

func (d *Dispatcher) recordError(kind string, err error) {
	d.mu.Lock()
	d.lastError = err.Error()
	d.mu.Unlock()
	d.metrics.errors.WithLabelValues(kind).Inc()
}
