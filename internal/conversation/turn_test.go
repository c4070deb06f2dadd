package conversation

import (
	"errors"
	"testing"
)

func TestTurnStreamingLifecycle(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeVoice, "")

	if turn.Status() != TurnPending {
		t.Fatalf("status = %s, want pending", turn.Status())
	}
	if err := turn.BeginStreaming(); err != nil {
		t.Fatalf("BeginStreaming failed: %v", err)
	}
	if turn.Status() != TurnStreaming {
		t.Fatalf("status = %s, want streaming", turn.Status())
	}

	turn.BindConversation("c1")
	turn.AppendText("hi ")
	turn.AppendText("there")
	turn.Complete()

	if turn.Status() != TurnCompleted {
		t.Errorf("status = %s, want completed", turn.Status())
	}
	if turn.AssistantText() != "hi there" {
		t.Errorf("assistant text = %q, want %q", turn.AssistantText(), "hi there")
	}
	if turn.ConversationID() != "c1" {
		t.Errorf("conversation id = %q, want c1", turn.ConversationID())
	}
}

func TestTurnRefusesSecondStream(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeVoice, "")
	if err := turn.BeginStreaming(); err != nil {
		t.Fatalf("BeginStreaming failed: %v", err)
	}
	if err := turn.BeginStreaming(); !errors.Is(err, ErrTurnStreaming) {
		t.Errorf("second BeginStreaming = %v, want ErrTurnStreaming", err)
	}

	turn.Complete()
	if err := turn.BeginStreaming(); !errors.Is(err, ErrTurnTerminal) {
		t.Errorf("BeginStreaming after completion = %v, want ErrTurnTerminal", err)
	}
}

func TestTurnImmutableAfterTerminal(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeVoice, "c1")
	turn.BeginStreaming()
	turn.AppendText("before")
	turn.SetAudio([]byte{1, 2, 3})
	turn.Complete()

	turn.AppendText(" after")
	turn.SetAudio([]byte{9})
	turn.BindConversation("c2")
	turn.Fail(errors.New("too late"))

	if turn.AssistantText() != "before" {
		t.Errorf("assistant text = %q, want %q", turn.AssistantText(), "before")
	}
	if len(turn.Audio()) != 3 {
		t.Errorf("audio = %v, want original payload", turn.Audio())
	}
	if turn.ConversationID() != "c1" {
		t.Errorf("conversation id = %q, want c1", turn.ConversationID())
	}
	if turn.Status() != TurnCompleted {
		t.Errorf("status = %s, want completed", turn.Status())
	}
	if turn.Err() != nil {
		t.Errorf("err = %v, want nil", turn.Err())
	}
}

func TestTurnLaterAudioOverwrites(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeVoice, "")
	turn.BeginStreaming()
	turn.SetAudio([]byte{1})
	turn.SetAudio([]byte{2, 3})

	if got := turn.Audio(); len(got) != 2 || got[0] != 2 {
		t.Errorf("audio = %v, want later payload", got)
	}
}

func TestTurnFail(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeText, "")
	turn.BeginStreaming()
	cause := errors.New("upstream failure")
	turn.Fail(cause)

	if turn.Status() != TurnErrored {
		t.Errorf("status = %s, want errored", turn.Status())
	}
	if !errors.Is(turn.Err(), cause) {
		t.Errorf("err = %v, want %v", turn.Err(), cause)
	}
}

func TestTurnTextHook(t *testing.T) {
	turn := NewTurn("char-1", "hello", InputModeVoice, "")
	var got []string
	turn.OnText(func(fragment string) { got = append(got, fragment) })

	turn.BeginStreaming()
	turn.AppendText("a")
	turn.AppendText("b")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("hook fragments = %v, want [a b]", got)
	}
}
