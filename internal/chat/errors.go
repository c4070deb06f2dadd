package chat

import (
	"errors"
	"fmt"
)

// ErrStreamTruncated means the event stream ended without an end or error
// event.
var ErrStreamTruncated = errors.New("chat: stream ended before completion")

// ProtocolError is a failure reported by, or detected in, the event stream
// itself. It terminates only the affected turn; the conversation and
// subsequent turns stay usable.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat: stream protocol error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("chat: stream protocol error: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
