package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wngkj/RoleVerse/internal/conversation"
)

func TestClientOpenStreamEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.CharacterID != "char-1" || req.Message != "你好" || req.InputMode != "voice" {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, ev := range []string{
			sseEvent("start", `{"conversation_id":"c1"}`),
			sseEvent("chunk", `{"text":"你好，"}`),
			sseEvent("chunk", `{"text":"旅人"}`),
			sseEvent("end", `{}`),
		} {
			fmt.Fprint(w, ev)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	turn := conversation.NewTurn("char-1", "你好", conversation.InputModeVoice, "")
	stream, err := client.OpenStream(context.Background(), turn)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	if err := stream.Apply(context.Background(), turn); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if turn.AssistantText() != "你好，旅人" {
		t.Errorf("assistant text = %q", turn.AssistantText())
	}
	if turn.ConversationID() != "c1" {
		t.Errorf("conversation id = %q", turn.ConversationID())
	}
}

func TestClientOpenStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := NewClient(ClientConfig{BaseURL: srv.URL})
	turn := conversation.NewTurn("char-1", "hello", conversation.InputModeText, "")

	if _, err := client.OpenStream(context.Background(), turn); err == nil {
		t.Error("expected error for non-2xx response")
	}
	// The turn stays pending; the caller decides whether to retry.
	if turn.Status() != conversation.TurnPending {
		t.Errorf("status = %s, want pending", turn.Status())
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}
