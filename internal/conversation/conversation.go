package conversation

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the local conversation projection.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the locally held message log for one character. The
// message slice is append-only; a conversation without a backend-assigned
// id is a placeholder that gets replaced, never mutated in place, once the
// id arrives.
type Conversation struct {
	ID          string    `json:"conversation_id"`
	CharacterID string    `json:"character_id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
}

// Placeholder reports whether the backend has not assigned an id yet.
func (c *Conversation) Placeholder() bool {
	return c.ID == ""
}

// withID returns a copy of the conversation carrying the assigned id.
func (c *Conversation) withID(id string) *Conversation {
	clone := &Conversation{
		ID:          id,
		CharacterID: c.CharacterID,
		Title:       c.Title,
		Messages:    make([]Message, len(c.Messages)),
	}
	copy(clone.Messages, c.Messages)
	return clone
}
