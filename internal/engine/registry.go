package engine

import (
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRetention is the number of chunks kept per session.
	DefaultRetention = 5000

	// DefaultShell interprets command strings when none is configured.
	DefaultShell = "/bin/sh"

	// DefaultKillGrace is how long Kill waits after each signal before
	// escalating.
	DefaultKillGrace = 2 * time.Second
)

// Registry owns the single-active-session policy and is the control
// surface for launching commands, killing them, relaying input, and
// attaching sinks. Command strings are opaque; they are handed to the
// shell as-is.
type Registry struct {
	shell     string
	retention int
	killGrace time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	current  *session // most recent session, possibly terminal
	activeID string   // non-empty while a session is non-terminal
	onLaunch []func(Session)
}

// Option configures a Registry.
type Option func(*Registry)

// WithShell sets the shell used to interpret command strings.
func WithShell(shell string) Option {
	return func(r *Registry) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithRetention sets how many chunks are retained per session.
func WithRetention(lines int) Option {
	return func(r *Registry) {
		if lines > 0 {
			r.retention = lines
		}
	}
}

// WithKillGrace sets the per-signal grace period used by Kill.
func WithKillGrace(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry with no active session.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		shell:     DefaultShell,
		retention: DefaultRetention,
		killGrace: DefaultKillGrace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the registry's internal state for one run of one command.
type session struct {
	id        string
	command   string
	startedAt time.Time
	cmd       *exec.Cmd
	stdin     *inputRelay
	pumps     sync.WaitGroup
	done      chan struct{} // closed once the terminal event is published

	mu            sync.Mutex
	state         State
	pid           int
	exitCode      int
	seq           uint64
	buffer        *RetentionBuffer
	sinks         map[Sink]*sinkQueue
	killRequested bool
	terminalEv    *Event // set when the terminal event is published
}

// Launch starts commandText under the configured shell and returns the new
// session. It fails with ErrAlreadyRunning while another session is
// non-terminal, and with *LaunchError when the process cannot be spawned;
// in the latter case no session is left behind.
func (r *Registry) Launch(commandText string) (Session, error) {
	s := &session{
		id:        uuid.New().String(),
		command:   commandText,
		startedAt: time.Now().UTC(),
		state:     StateLaunching,
		done:      make(chan struct{}),
		buffer:    NewRetentionBuffer(r.retention),
		sinks:     make(map[Sink]*sinkQueue),
	}

	// Atomic check-and-set: reserve the active slot before spawning so a
	// concurrent Launch observes it and fails.
	r.mu.Lock()
	if r.activeID != "" {
		r.mu.Unlock()
		return Session{}, ErrAlreadyRunning
	}
	r.activeID = s.id
	r.mu.Unlock()

	cmd := exec.Command(r.shell, "-c", commandText)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.abortLaunch(s)
		return Session{}, &LaunchError{Command: commandText, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		r.abortLaunch(s)
		return Session{}, &LaunchError{Command: commandText, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		r.abortLaunch(s)
		return Session{}, &LaunchError{Command: commandText, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		r.abortLaunch(s)
		return Session{}, &LaunchError{Command: commandText, Err: err}
	}

	s.cmd = cmd
	s.stdin = newInputRelay(stdin)

	s.mu.Lock()
	s.state = StateRunning
	s.pid = cmd.Process.Pid
	s.pushAllLocked(Event{
		Kind:      EventStarted,
		SessionID: s.id,
		Command:   s.command,
		PID:       s.pid,
		Timestamp: time.Now().UTC(),
	})
	s.mu.Unlock()

	r.mu.Lock()
	r.current = s
	notify := make([]func(Session), len(r.onLaunch))
	copy(notify, r.onLaunch)
	r.mu.Unlock()

	r.logger.Info("session started", "session", s.id, "pid", s.pid, "command", commandText)

	snap := s.snapshot()
	for _, fn := range notify {
		fn(snap)
	}

	s.pumps.Add(2)
	go s.pump(stdout, StreamStdout, r.logger)
	go s.pump(stderr, StreamStderr, r.logger)
	go r.finalize(s)

	return s.snapshot(), nil
}

// abortLaunch releases the active slot after a failed spawn. The session
// was never exposed, so nothing else needs cleanup.
func (r *Registry) abortLaunch(s *session) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()

	r.mu.Lock()
	if r.activeID == s.id {
		r.activeID = ""
	}
	r.mu.Unlock()
}

// finalize waits for both pumps to drain, reaps the process, and publishes
// the terminal event strictly after the last chunk.
func (r *Registry) finalize(s *session) {
	s.pumps.Wait()

	err := s.cmd.Wait()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}

	s.stdin.Close()

	s.mu.Lock()
	if s.state.Terminal() {
		// Already failed, e.g. by a kill timeout. The terminal event was
		// published there.
		s.mu.Unlock()
		return
	}
	ev := Event{SessionID: s.id, Timestamp: time.Now().UTC()}
	if s.killRequested {
		s.state = StateKilled
		ev.Kind = EventKilled
	} else {
		s.state = StateExited
		s.exitCode = code
		ev.Kind = EventExited
		ev.ExitCode = code
	}
	s.terminalEv = &ev
	s.pushAllLocked(ev)
	s.closeSinksLocked()
	s.mu.Unlock()

	close(s.done)

	r.mu.Lock()
	if r.activeID == s.id {
		r.activeID = ""
	}
	r.mu.Unlock()

	r.logger.Info("session finished", "session", s.id, "state", string(ev.Kind), "exitCode", code)
}

// Kill requests termination of a running session: SIGTERM, then SIGKILL
// after the grace period, then ErrKillTimeout if the process still has not
// been reaped. On timeout the session is marked failed and accepts no
// further output, but the process's fate is unverified.
func (r *Registry) Kill(id string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.killRequested = true
	s.mu.Unlock()

	s.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-s.done:
		return nil
	case <-time.After(r.killGrace):
	}

	r.logger.Warn("session ignored SIGTERM, escalating", "session", s.id)
	s.cmd.Process.Kill()
	select {
	case <-s.done:
		return nil
	case <-time.After(r.killGrace):
	}

	r.fail(s, "process survived SIGKILL")
	return ErrKillTimeout
}

// fail force-terminates a session's event stream without waiting for the
// process. Used when the session has become unobservable.
func (r *Registry) fail(s *session, reason string) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	ev := Event{
		Kind:      EventFailed,
		SessionID: s.id,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	s.terminalEv = &ev
	s.pushAllLocked(ev)
	s.closeSinksLocked()
	s.mu.Unlock()

	r.mu.Lock()
	if r.activeID == s.id {
		r.activeID = ""
	}
	r.mu.Unlock()

	r.logger.Error("session failed", "session", s.id, "reason", reason)
}

// SendInput writes text plus a newline to the session's stdin. It fails
// with ErrInputRejected unless the session is running.
func (r *Registry) SendInput(id, text string) error {
	s, err := r.lookup(id)
	if err != nil {
		return ErrInputRejected
	}

	s.mu.Lock()
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return ErrInputRejected
	}

	return s.stdin.SendLine(text)
}

// Attach subscribes a sink to a session's event stream. The sink first
// receives the started event and the retained chunks, then live chunks,
// then the terminal event. Attaching the same sink twice is a no-op.
func (r *Registry) Attach(id string, sink Sink) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sinks[sink]; ok {
		return nil
	}

	q := newSinkQueue(sink)
	if s.pid != 0 {
		q.push(Event{
			Kind:      EventStarted,
			SessionID: s.id,
			Command:   s.command,
			PID:       s.pid,
			Timestamp: s.startedAt,
		})
	}
	for _, c := range s.buffer.Snapshot() {
		chunk := c
		q.push(Event{
			Kind:      EventChunk,
			SessionID: s.id,
			Chunk:     &chunk,
			Timestamp: chunk.Timestamp,
		})
	}
	if s.terminalEv != nil {
		q.push(*s.terminalEv)
		q.close()
	}
	s.sinks[sink] = q
	return nil
}

// Detach unsubscribes a sink. Events already queued are still delivered;
// the underlying session and other sinks are unaffected.
func (r *Registry) Detach(id string, sink Sink) {
	s, err := r.lookup(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.sinks[sink]; ok {
		q.close()
		delete(s.sinks, sink)
	}
}

// OnLaunch registers fn to be called with a snapshot of every session
// started after registration, regardless of which surface launched it.
// Callbacks run synchronously on the launching goroutine and must not
// call Launch.
func (r *Registry) OnLaunch(fn func(Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLaunch = append(r.onLaunch, fn)
}

// Current returns the most recent session, which may already be terminal.
func (r *Registry) Current() (Session, bool) {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	if s == nil {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Active returns the currently non-terminal session, if any.
func (r *Registry) Active() (Session, bool) {
	r.mu.Lock()
	s := r.current
	active := r.activeID != ""
	r.mu.Unlock()

	if s == nil || !active {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Session returns a snapshot of the session with the given ID.
func (r *Registry) Session(id string) (Session, bool) {
	s, err := r.lookup(id)
	if err != nil {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Shutdown kills the active session, if any, and waits for it to
// finalize. Intended for application exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	s := r.current
	active := r.activeID != ""
	r.mu.Unlock()

	if s == nil || !active {
		return
	}
	if err := r.Kill(s.id); err != nil && err != ErrNotRunning {
		r.logger.Warn("shutdown kill", "session", s.id, "err", err)
	}
}

func (r *Registry) lookup(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.id != id {
		return nil, ErrUnknownSession
	}
	return r.current, nil
}

// emitChunk assigns the next sequence number, retains the chunk, and
// queues it to every attached sink. Chunks arriving after the terminal
// event are dropped: terminal states are absorbing.
func (s *session) emitChunk(stream Stream, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.seq++
	c := Chunk{
		SessionID: s.id,
		Stream:    stream,
		Text:      text,
		Seq:       s.seq,
		Timestamp: time.Now().UTC(),
	}
	s.buffer.Append(c)
	s.pushAllLocked(Event{
		Kind:      EventChunk,
		SessionID: s.id,
		Chunk:     &c,
		Timestamp: c.Timestamp,
	})
}

func (s *session) pushAllLocked(ev Event) {
	for _, q := range s.sinks {
		q.push(ev)
	}
}

func (s *session) closeSinksLocked() {
	for _, q := range s.sinks {
		q.close()
	}
}

func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Session{
		ID:        s.id,
		Command:   s.command,
		PID:       s.pid,
		State:     s.state,
		StartedAt: s.startedAt,
	}
	if s.state == StateExited {
		code := s.exitCode
		snap.ExitCode = &code
	}
	return snap
}
