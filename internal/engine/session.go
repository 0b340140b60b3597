package engine

import (
	"errors"
	"fmt"
	"time"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateLaunching State = "launching"
	StateRunning   State = "running"
	StateExited    State = "exited"
	StateKilled    State = "killed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is final. A terminal session accepts
// no further output.
func (s State) Terminal() bool {
	switch s {
	case StateExited, StateKilled, StateFailed:
		return true
	}
	return false
}

// Stream distinguishes the child's stdout and stderr.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Session is a point-in-time snapshot of one run of one command.
type Session struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt"`
	ExitCode  *int      `json:"exitCode,omitempty"`
}

// Chunk is a sequenced unit of output text from one stream of a session.
// Sequence numbers increase monotonically per session and are shared by
// both streams, so they are strictly increasing within each stream and
// allow a consumer to reconstruct a stable interleaving.
type Chunk struct {
	SessionID string    `json:"sessionId"`
	Stream    Stream    `json:"stream"`
	Text      string    `json:"text"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// EventKind distinguishes the events delivered to sinks.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventChunk   EventKind = "chunk"
	EventExited  EventKind = "exited"
	EventKilled  EventKind = "killed"
	EventFailed  EventKind = "failed"
)

// Event is a single item in a session's ordered event stream. Exactly one
// of EventExited, EventKilled, or EventFailed terminates the stream.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`
	Command   string    `json:"command,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Chunk     *Chunk    `json:"chunk,omitempty"`
	ExitCode  int       `json:"exitCode,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the event ends a session's stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventExited, EventKilled, EventFailed:
		return true
	}
	return false
}

var (
	// ErrAlreadyRunning is returned by Launch while another session is
	// non-terminal.
	ErrAlreadyRunning = errors.New("a session is already running")

	// ErrInputRejected is returned by SendInput when no session is running.
	ErrInputRejected = errors.New("no running session to receive input")

	// ErrKillTimeout is returned by Kill when the process survived both the
	// termination signal and the forced kill. The session is marked failed;
	// the process's ultimate fate is unverified.
	ErrKillTimeout = errors.New("process did not terminate within the grace period")

	// ErrUnknownSession is returned for operations on a session ID the
	// registry does not know.
	ErrUnknownSession = errors.New("unknown session")

	// ErrNotRunning is returned by Kill on a session that already reached a
	// terminal state.
	ErrNotRunning = errors.New("session is not running")
)

// LaunchError reports that a command could not be started. No session is
// left behind when Launch returns it.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
