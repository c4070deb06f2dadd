package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// fallbackMessage mirrors the backend's apology text for a turn that could
// not produce a response.
const fallbackMessage = "抱歉，我现在无法回复。错误：%v"

// Lister fetches the externally owned conversation list. Implemented by
// the backend Client; tests substitute fakes.
type Lister interface {
	ListConversations(ctx context.Context) ([]Summary, error)
}

// Reconciler merges finished turns into the local conversation projection.
// It owns the Conversation value; callers read through Snapshot.
type Reconciler struct {
	lister    Lister
	onRefresh func([]Summary)
	logger    *slog.Logger

	mu   sync.Mutex
	conv *Conversation

	turnsCompleted uint64
	turnsErrored   uint64
	refreshes      uint64
}

// ReconcilerStats reports commit counts for monitoring.
type ReconcilerStats struct {
	TurnsCompleted uint64 `json:"turns_completed"`
	TurnsErrored   uint64 `json:"turns_errored"`
	ListRefreshes  uint64 `json:"list_refreshes"`
	Messages       int    `json:"messages"`
}

// NewReconciler creates a reconciler over a fresh placeholder conversation
// for the character. onRefresh receives the refreshed conversation list;
// nil disables refresh delivery but not the fetch. lister may be nil when
// no list service is configured.
func NewReconciler(characterID string, lister Lister, onRefresh func([]Summary), logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		lister:    lister,
		onRefresh: onRefresh,
		logger:    logger.With(slog.String("component", "reconciler")),
		conv:      &Conversation{CharacterID: characterID},
	}
}

// CommitCompleted appends exactly two messages, user then assistant, binds
// the conversation id the turn carries, and schedules a non-blocking
// refresh of the conversation list.
func (r *Reconciler) CommitCompleted(turn *Turn) error {
	if turn.Status() != TurnCompleted {
		return fmt.Errorf("conversation: cannot commit turn in status %s", turn.Status())
	}

	now := time.Now()
	r.mu.Lock()
	if id := turn.ConversationID(); id != "" && r.conv.Placeholder() {
		// Replace the placeholder with a bound copy.
		r.conv = r.conv.withID(id)
	}
	r.conv.Messages = append(r.conv.Messages,
		Message{Role: RoleUser, Content: turn.UserUtterance(), Timestamp: now},
		Message{Role: RoleAssistant, Content: turn.AssistantText(), Timestamp: now},
	)
	r.turnsCompleted++
	r.mu.Unlock()

	r.logger.Debug("turn committed",
		slog.String("conversation_id", turn.ConversationID()),
		slog.Int("assistant_len", len(turn.AssistantText())))

	r.scheduleRefresh()
	return nil
}

// CommitErrored appends exactly one assistant fallback message and touches
// no server-side state.
func (r *Reconciler) CommitErrored(turn *Turn) error {
	if turn.Status() != TurnErrored {
		return fmt.Errorf("conversation: cannot commit errored turn in status %s", turn.Status())
	}

	r.mu.Lock()
	r.conv.Messages = append(r.conv.Messages, Message{
		Role:      RoleAssistant,
		Content:   fmt.Sprintf(fallbackMessage, turn.Err()),
		Timestamp: time.Now(),
	})
	r.turnsErrored++
	r.mu.Unlock()

	r.logger.Warn("turn errored",
		slog.String("conversation_id", turn.ConversationID()),
		slog.String("error", fmt.Sprint(turn.Err())))
	return nil
}

// scheduleRefresh fetches the conversation list on its own goroutine so a
// slow list service never delays the commit path.
func (r *Reconciler) scheduleRefresh() {
	if r.lister == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		summaries, err := r.lister.ListConversations(ctx)
		if err != nil {
			r.logger.Warn("conversation list refresh failed", slog.String("error", err.Error()))
			return
		}
		r.mu.Lock()
		r.refreshes++
		r.mu.Unlock()
		if r.onRefresh != nil {
			r.onRefresh(summaries)
		}
	}()
}

// Snapshot returns a copy of the current conversation projection.
func (r *Reconciler) Snapshot() Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := *r.conv
	snap.Messages = make([]Message, len(r.conv.Messages))
	copy(snap.Messages, r.conv.Messages)
	return snap
}

// ConversationID returns the bound id, or empty for a placeholder.
func (r *Reconciler) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv.ID
}

// Stats returns commit counters.
func (r *Reconciler) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReconcilerStats{
		TurnsCompleted: r.turnsCompleted,
		TurnsErrored:   r.turnsErrored,
		ListRefreshes:  r.refreshes,
		Messages:       len(r.conv.Messages),
	}
}
