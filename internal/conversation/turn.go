package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InputMode records how the user produced an utterance. Playback of
// synthesized audio only happens for voice turns.
type InputMode string

const (
	InputModeVoice InputMode = "voice"
	InputModeText  InputMode = "text"
)

// TurnStatus is the lifecycle phase of one user/assistant exchange.
type TurnStatus int

const (
	// TurnPending means the user utterance is ready but no response
	// stream has started.
	TurnPending TurnStatus = iota
	// TurnStreaming means response events are being applied.
	TurnStreaming
	// TurnCompleted means the stream ended normally. Terminal.
	TurnCompleted
	// TurnErrored means the stream reported or hit an error. Terminal.
	TurnErrored
)

func (s TurnStatus) String() string {
	switch s {
	case TurnPending:
		return "pending"
	case TurnStreaming:
		return "streaming"
	case TurnCompleted:
		return "completed"
	case TurnErrored:
		return "errored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the turn can no longer change.
func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnErrored
}

// ErrTurnStreaming is returned when a second response stream is started on
// a turn that is already consuming one.
var ErrTurnStreaming = errors.New("conversation: turn is already streaming")

// ErrTurnTerminal is returned when a stream is started on a finished turn.
var ErrTurnTerminal = errors.New("conversation: turn already finished")

// Turn is one user-utterance/assistant-response exchange. The response
// stream reader mutates it event by event; once Completed or Errored it is
// immutable and later mutations are ignored.
type Turn struct {
	id            string
	characterID   string
	userUtterance string
	inputMode     InputMode

	mu             sync.Mutex
	conversationID string
	assistantText  strings.Builder
	audio          []byte
	status         TurnStatus
	err            error
	onText         func(fragment string)
}

// NewTurn creates a pending turn. conversationID is empty when the backend
// has not assigned one yet; the stream's start event binds it.
func NewTurn(characterID, userUtterance string, mode InputMode, conversationID string) *Turn {
	return &Turn{
		id:             uuid.NewString(),
		characterID:    characterID,
		userUtterance:  userUtterance,
		inputMode:      mode,
		conversationID: conversationID,
		status:         TurnPending,
	}
}

// OnText registers a hook invoked for every appended fragment, used for
// incremental rendering. Must be set before streaming starts.
func (t *Turn) OnText(fn func(fragment string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onText = fn
}

// BeginStreaming claims the turn for a response stream. A turn accepts at
// most one stream over its lifetime.
func (t *Turn) BeginStreaming() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case TurnPending:
		t.status = TurnStreaming
		return nil
	case TurnStreaming:
		return ErrTurnStreaming
	default:
		return ErrTurnTerminal
	}
}

// BindConversation records the conversation id assigned by the backend.
func (t *Turn) BindConversation(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() || id == "" {
		return
	}
	t.conversationID = id
}

// AppendText adds a text fragment in arrival order.
func (t *Turn) AppendText(fragment string) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.assistantText.WriteString(fragment)
	onText := t.onText
	t.mu.Unlock()

	if onText != nil {
		onText(fragment)
	}
}

// SetAudio stores the synthesized audio payload. A later payload replaces
// an earlier one; only the last is meaningful.
func (t *Turn) SetAudio(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.audio = payload
}

// Complete marks the turn finished. The turn is immutable afterwards.
func (t *Turn) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = TurnCompleted
}

// Fail marks the turn errored with its cause. The turn is immutable
// afterwards.
func (t *Turn) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = TurnErrored
	t.err = err
}

// CharacterID returns the character this turn addresses.
// ID is the immutable request id assigned at creation, carried on the
// chat request for correlation.
func (t *Turn) ID() string { return t.id }

func (t *Turn) CharacterID() string { return t.characterID }

// UserUtterance returns the user's message text.
func (t *Turn) UserUtterance() string { return t.userUtterance }

// InputMode returns how the utterance was produced.
func (t *Turn) InputMode() InputMode { return t.inputMode }

// ConversationID returns the bound conversation id, or empty.
func (t *Turn) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// AssistantText returns the text accumulated so far.
func (t *Turn) AssistantText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assistantText.String()
}

// Audio returns the turn's audio payload, or nil.
func (t *Turn) Audio() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audio
}

// Status returns the current lifecycle phase.
func (t *Turn) Status() TurnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the error recorded by Fail, or nil.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
