// Package protocol defines the wire format spoken between the application
// and detached mirror clients over WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all mirror messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeSessionStarted = "session.started"
	TypeSessionOutput  = "session.output"
	TypeSessionExited  = "session.exited"
	TypeSessionKilled  = "session.killed"
	TypeSessionFailed  = "session.failed"
	TypeError          = "error"
)

// Client → Server message types.
const (
	TypeSessionLaunch = "session.launch"
	TypeSessionInput  = "session.input"
	TypeSessionKill   = "session.kill"
)

// Error codes.
const (
	ErrAlreadyRunning  = "ALREADY_RUNNING"
	ErrLaunchFailed    = "LAUNCH_FAILED"
	ErrInputRejected   = "INPUT_REJECTED"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrNotRunning      = "NOT_RUNNING"
	ErrKillTimeout     = "KILL_TIMEOUT"
	ErrInvalidMessage  = "INVALID_MESSAGE"
)

// Server → Client payloads.

type SessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
	PID       int    `json:"pid"`
	StartedAt string `json:"startedAt"`
}

type SessionOutputPayload struct {
	SessionID string `json:"sessionId"`
	Stream    string `json:"stream"` // "stdout" | "stderr"
	Text      string `json:"text"`
	Seq       uint64 `json:"seq"`
}

type SessionExitedPayload struct {
	SessionID string `json:"sessionId"`
	ExitCode  int    `json:"exitCode"`
}

type SessionKilledPayload struct {
	SessionID string `json:"sessionId"`
}

type SessionFailedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client → Server payloads.

type SessionLaunchPayload struct {
	Command string `json:"command"`
}

type SessionInputPayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type SessionKillPayload struct {
	SessionID string `json:"sessionId"`
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
