package control

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/atomic"
)

var (
	ErrUnrecognizedCommand = errors.New("unrecognized command")
	ErrChannelUnavailable  = errors.New("control channel unavailable")
)

// Signal is one of the recognized control commands. The declaration order is
// the order in which the dispatcher inspects pending signals.
type Signal int

const (
	Start Signal = iota
	Pause
	Resume
	Stop
	Exit

	numSignals
)

// Signals lists every signal in priority order.
var Signals = []Signal{Start, Pause, Resume, Stop, Exit}

func (s Signal) String() string {
	switch s {
	case Start:
		return "start"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Stop:
		return "stop"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// ParseSignal maps a command token to its signal. Tokens are trimmed and
// matched case-insensitively.
func ParseSignal(token string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "start":
		return Start, nil
	case "pause":
		return Pause, nil
	case "resume":
		return Resume, nil
	case "stop":
		return Stop, nil
	case "exit":
		return Exit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedCommand, token)
	}
}

// Setter accepts signals from a front-end.
type Setter interface {
	Set(sig Signal)
}

// Mailbox holds one pending flag per signal kind. Front-ends set flags, the
// dispatcher takes them. Setting a flag that is already pending is a no-op.
type Mailbox struct {
	flags [numSignals]atomic.Bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

func (m *Mailbox) Set(sig Signal) {
	if sig < 0 || sig >= numSignals {
		return
	}
	m.flags[sig].Store(true)
}

// Take clears the flag and reports whether it was set.
func (m *Mailbox) Take(sig Signal) bool {
	if sig < 0 || sig >= numSignals {
		return false
	}
	return m.flags[sig].Swap(false)
}

func (m *Mailbox) IsSet(sig Signal) bool {
	if sig < 0 || sig >= numSignals {
		return false
	}
	return m.flags[sig].Load()
}

// Pending returns the set flags in priority order.
func (m *Mailbox) Pending() []Signal {
	var pending []Signal
	for _, sig := range Signals {
		if m.flags[sig].Load() {
			pending = append(pending, sig)
		}
	}
	return pending
}
