package chat

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EventKind discriminates the records in a turn's event stream.
type EventKind string

const (
	// EventStart binds the turn to a conversation id.
	EventStart EventKind = "start"
	// EventChunk carries a text fragment.
	EventChunk EventKind = "chunk"
	// EventAudio carries a synthesized audio payload.
	EventAudio EventKind = "audio"
	// EventEnd marks the turn completed.
	EventEnd EventKind = "end"
	// EventError terminates the turn with a server-reported failure.
	EventError EventKind = "error"
)

// Event is one parsed stream record.
type Event struct {
	Kind           EventKind
	ConversationID string // start
	Text           string // chunk
	Audio          []byte // audio, already base64-decoded
	Message        string // error
}

// eventPayload is the union of the JSON data bodies across event kinds.
type eventPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Data           string `json:"data,omitempty"`
	Message        string `json:"message,omitempty"`
}

// parseEvent turns a raw SSE frame into a typed event. Unknown kinds and
// undecodable payloads are errors the caller may choose to skip.
func parseEvent(frame sseFrame) (*Event, error) {
	kind := EventKind(frame.Event)

	var payload eventPayload
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, fmt.Errorf("chat: malformed %s event data: %w", frame.Event, err)
		}
	}

	switch kind {
	case EventStart:
		if payload.ConversationID == "" {
			return nil, fmt.Errorf("chat: start event without conversation_id")
		}
		return &Event{Kind: EventStart, ConversationID: payload.ConversationID}, nil

	case EventChunk:
		return &Event{Kind: EventChunk, Text: payload.Text}, nil

	case EventAudio:
		if payload.Data == "" {
			return nil, fmt.Errorf("chat: audio event without data")
		}
		decoded, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			return nil, fmt.Errorf("chat: audio event with invalid base64: %w", err)
		}
		return &Event{Kind: EventAudio, Audio: decoded}, nil

	case EventEnd:
		return &Event{Kind: EventEnd}, nil

	case EventError:
		return &Event{Kind: EventError, Message: payload.Message}, nil

	default:
		return nil, fmt.Errorf("chat: unknown event kind %q", frame.Event)
	}
}
