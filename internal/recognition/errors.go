package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStreaming is returned by PushFrame when the session is not
	// accepting audio (never started, already stopping, or terminal).
	ErrNotStreaming = errors.New("recognition: session is not streaming")
	// ErrAlreadyStarted is returned by Begin on any non-idle session.
	ErrAlreadyStarted = errors.New("recognition: session already started")
	// ErrServerRejected means the recognizer refused to open a session.
	ErrServerRejected = errors.New("recognition: server rejected session")
)

// SessionError carries the failing operation and the session state at the
// time of failure.
type SessionError struct {
	Op    string
	State State
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("recognition: %s in state %s: %v", e.Op, e.State, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
