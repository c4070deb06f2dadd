package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wngkj/RoleVerse/internal/audio"
	"github.com/wngkj/RoleVerse/internal/chat"
	"github.com/wngkj/RoleVerse/internal/conversation"
	"github.com/wngkj/RoleVerse/internal/recognition"
)

// fakeSource hands the test direct control of the sample callback. When
// gate is set, Start signals entered and parks until gate is closed, which
// lets a test hold the device open mid-acquisition.
type fakeSource struct {
	mu       sync.Mutex
	deliver  audio.SampleFunc
	startErr error
	releases int
	starts   int
	gate     chan struct{}
	entered  chan struct{}
}

func (s *fakeSource) Start(ctx context.Context, deliver audio.SampleFunc) (*audio.CaptureSession, error) {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	s.deliver = deliver
	s.mu.Unlock()
	return audio.NewCaptureSession(nil, func() error {
		s.mu.Lock()
		s.releases++
		s.mu.Unlock()
		return nil
	}), nil
}

func (s *fakeSource) push(samples []int16) {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	if deliver != nil {
		deliver(samples)
	}
}

func (s *fakeSource) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

func (s *fakeSource) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// fakeRecognizer implements recognition.Service with a canned transcript.
type fakeRecognizer struct {
	mu         sync.Mutex
	transcript string
	openErr    error
	frames     int
	lastCfg    recognition.SessionConfig
}

func (r *fakeRecognizer) Open(ctx context.Context, cfg recognition.SessionConfig) (recognition.Conn, error) {
	r.mu.Lock()
	r.lastCfg = cfg
	r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &fakeRecognizerConn{parent: r}, nil
}

func (r *fakeRecognizer) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

type fakeRecognizerConn struct {
	parent *fakeRecognizer
}

func (c *fakeRecognizerConn) SendFrame(frame []byte) error {
	c.parent.mu.Lock()
	c.parent.frames++
	c.parent.mu.Unlock()
	return nil
}

func (c *fakeRecognizerConn) Finish(ctx context.Context) (string, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	return c.parent.transcript, nil
}

func (c *fakeRecognizerConn) Abort() error { return nil }

// fakeChat applies a scripted sequence of events to the turn.
type fakeChat struct {
	script func(turn *conversation.Turn) error
}

func (f *fakeChat) StreamTurn(ctx context.Context, turn *conversation.Turn) error {
	if err := turn.BeginStreaming(); err != nil {
		return err
	}
	return f.script(turn)
}

type fakePlayer struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *fakePlayer) Enqueue(payload []byte) {
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func happyChat(audioPayload []byte) *fakeChat {
	return &fakeChat{script: func(turn *conversation.Turn) error {
		turn.BindConversation("c1")
		turn.AppendText("hi ")
		turn.AppendText("there")
		if audioPayload != nil {
			turn.SetAudio(audioPayload)
		}
		turn.Complete()
		return nil
	}}
}

func newTestController(source *fakeSource, recognizer *fakeRecognizer, chatSvc Chat, player Player) (*Controller, *conversation.Reconciler) {
	reconciler := conversation.NewReconciler("char-1", nil, nil, nil)
	c := NewController(Config{
		CharacterID: "char-1",
		FrameSize:   4,
	}, source, recognizer, chatSvc, reconciler, player)
	return c, reconciler
}

func pcm(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestVoiceTurnEndToEnd(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "hello"}
	player := &fakePlayer{}
	wav, _ := audio.EncodeWAV([]int16{1, 2, 3}, audio.SampleRate)
	c, reconciler := newTestController(source, recognizer, happyChat(wav), player)

	if err := c.StartVoiceTurn(context.Background()); err != nil {
		t.Fatalf("StartVoiceTurn failed: %v", err)
	}
	if !c.Recording() {
		t.Fatal("controller should be recording")
	}

	// Three full frames at frame size 4.
	source.push(pcm(12, 8000))

	turn, err := c.StopVoiceTurn(context.Background())
	if err != nil {
		t.Fatalf("StopVoiceTurn failed: %v", err)
	}
	if turn == nil {
		t.Fatal("expected a turn for non-empty transcript")
	}
	if turn.UserUtterance() != "hello" {
		t.Errorf("utterance = %q, want hello", turn.UserUtterance())
	}
	if turn.AssistantText() != "hi there" {
		t.Errorf("assistant text = %q", turn.AssistantText())
	}
	if c.Recording() {
		t.Error("still recording after stop")
	}
	if source.released() != 1 {
		t.Errorf("device released %d times, want 1", source.released())
	}
	if recognizer.frameCount() != 3 {
		t.Errorf("recognizer received %d frames, want 3", recognizer.frameCount())
	}

	snap := reconciler.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("conversation has %d messages, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Role != conversation.RoleUser || snap.Messages[1].Role != conversation.RoleAssistant {
		t.Errorf("message roles = %s/%s", snap.Messages[0].Role, snap.Messages[1].Role)
	}
	if snap.ID != "c1" {
		t.Errorf("conversation id = %q, want c1", snap.ID)
	}
	if player.count() != 1 {
		t.Errorf("playback enqueued %d payloads, want 1", player.count())
	}
}

func TestVoiceTurnEmptyTranscriptEndsSilently(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "  "}
	player := &fakePlayer{}
	c, reconciler := newTestController(source, recognizer, happyChat(nil), player)

	c.StartVoiceTurn(context.Background())
	source.push(pcm(8, 3000))

	turn, err := c.StopVoiceTurn(context.Background())
	if err != nil {
		t.Fatalf("StopVoiceTurn failed: %v", err)
	}
	if turn != nil {
		t.Error("silent recording must not create a turn")
	}
	if len(reconciler.Snapshot().Messages) != 0 {
		t.Error("silent recording must not append messages")
	}
	if player.count() != 0 {
		t.Error("silent recording must not play audio")
	}
}

func TestVoiceTurnSessionRejectedReleasesDevice(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{openErr: errors.New("quota exceeded")}
	c, _ := newTestController(source, recognizer, happyChat(nil), nil)

	if err := c.StartVoiceTurn(context.Background()); err != nil {
		t.Fatalf("StartVoiceTurn failed: %v", err)
	}

	// The open failure lands asynchronously and must tear capture down.
	deadline := time.After(2 * time.Second)
	for c.Recording() {
		select {
		case <-deadline:
			t.Fatal("capture never torn down after session rejection")
		case <-time.After(time.Millisecond):
		}
	}
	if source.released() != 1 {
		t.Errorf("device released %d times, want 1", source.released())
	}
	if recognizer.frameCount() != 0 {
		t.Errorf("recognizer received %d frames, want 0", recognizer.frameCount())
	}

	// Stop surfaces the failure to the user.
	if _, err := c.StopVoiceTurn(context.Background()); err == nil {
		t.Error("StopVoiceTurn should report the session failure")
	}
}

func TestVoiceTurnStreamErrorCommitsFallback(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "hello"}
	player := &fakePlayer{}
	failing := &fakeChat{script: func(turn *conversation.Turn) error {
		turn.AppendText("partial")
		perr := &chat.ProtocolError{Message: "upstream failure"}
		turn.Fail(perr)
		return perr
	}}
	c, reconciler := newTestController(source, recognizer, failing, player)

	c.StartVoiceTurn(context.Background())
	source.push(pcm(4, 6000))

	turn, err := c.StopVoiceTurn(context.Background())
	if err != nil {
		t.Fatalf("StopVoiceTurn failed: %v", err)
	}
	if turn.Status() != conversation.TurnErrored {
		t.Errorf("turn status = %s, want errored", turn.Status())
	}

	snap := reconciler.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("conversation has %d messages, want 1 fallback", len(snap.Messages))
	}
	if snap.Messages[0].Role != conversation.RoleAssistant {
		t.Errorf("fallback role = %s, want assistant", snap.Messages[0].Role)
	}
	if player.count() != 0 {
		t.Error("errored turn must not play audio")
	}
}

func TestTextTurnSkipsPlayback(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{}
	player := &fakePlayer{}
	wav, _ := audio.EncodeWAV([]int16{1}, audio.SampleRate)
	c, reconciler := newTestController(source, recognizer, happyChat(wav), player)

	turn, err := c.SendText(context.Background(), "你好")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if turn.InputMode() != conversation.InputModeText {
		t.Errorf("input mode = %s, want text", turn.InputMode())
	}
	if turn.Status() != conversation.TurnCompleted {
		t.Errorf("status = %s, want completed", turn.Status())
	}
	if player.count() != 0 {
		t.Error("text turns must not trigger playback even with an audio payload")
	}
	if len(reconciler.Snapshot().Messages) != 2 {
		t.Errorf("conversation has %d messages, want 2", len(reconciler.Snapshot().Messages))
	}

	if _, err := c.SendText(context.Background(), "   "); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestStartWhileRecording(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "x"}
	c, _ := newTestController(source, recognizer, happyChat(nil), nil)

	if err := c.StartVoiceTurn(context.Background()); err != nil {
		t.Fatalf("StartVoiceTurn failed: %v", err)
	}
	if err := c.StartVoiceTurn(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("second start = %v, want ErrRecordingActive", err)
	}
	c.StopVoiceTurn(context.Background())
}

func TestStartWhileDeviceAcquisitionPending(t *testing.T) {
	source := &fakeSource{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	recognizer := &fakeRecognizer{transcript: "x"}
	c, _ := newTestController(source, recognizer, happyChat(nil), nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.StartVoiceTurn(context.Background())
	}()

	select {
	case <-source.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("source.Start was never reached")
	}
	if err := c.StartVoiceTurn(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("start during pending acquisition = %v, want ErrRecordingActive", err)
	}

	close(source.gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("StartVoiceTurn failed: %v", err)
	}
	if got := source.startCount(); got != 1 {
		t.Errorf("source starts = %d, want 1", got)
	}
	if _, err := c.StopVoiceTurn(context.Background()); err != nil {
		t.Fatalf("StopVoiceTurn failed: %v", err)
	}
	if source.released() != 1 {
		t.Errorf("releases = %d, want 1", source.released())
	}
}

func TestStopWithoutStart(t *testing.T) {
	c, _ := newTestController(&fakeSource{}, &fakeRecognizer{}, happyChat(nil), nil)
	if _, err := c.StopVoiceTurn(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("StopVoiceTurn = %v, want ErrNotRecording", err)
	}
}

func TestCaptureStartFailure(t *testing.T) {
	source := &fakeSource{startErr: audio.ErrPermissionDenied}
	c, _ := newTestController(source, &fakeRecognizer{}, happyChat(nil), nil)

	err := c.StartVoiceTurn(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("StartVoiceTurn = %v, want permission denied", err)
	}
	if c.Recording() {
		t.Error("controller recording after failed start")
	}
	// The controller is still usable for the next attempt.
	source.startErr = nil
	recognizer := &fakeRecognizer{transcript: "ok"}
	c2, _ := newTestController(source, recognizer, happyChat(nil), nil)
	if err := c2.StartVoiceTurn(context.Background()); err != nil {
		t.Errorf("retry start failed: %v", err)
	}
}

func TestControllerClose(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "x"}
	c, _ := newTestController(source, recognizer, happyChat(nil), nil)

	c.StartVoiceTurn(context.Background())
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if source.released() != 1 {
		t.Errorf("device released %d times, want 1", source.released())
	}
	if err := c.StartVoiceTurn(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close = %v, want ErrClosed", err)
	}
	if _, err := c.SendText(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendText after close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestAssistantTextHook(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "hello"}
	reconciler := conversation.NewReconciler("char-1", nil, nil, nil)

	var fragments []string
	var mu sync.Mutex
	c := NewController(Config{
		CharacterID: "char-1",
		FrameSize:   4,
		OnAssistantText: func(fragment string) {
			mu.Lock()
			fragments = append(fragments, fragment)
			mu.Unlock()
		},
	}, source, recognizer, happyChat(nil), reconciler, nil)

	if _, err := c.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(fragments) != 2 || fragments[0] != "hi " || fragments[1] != "there" {
		t.Errorf("fragments = %v", fragments)
	}
}

func TestVoiceTurnUsesExistingConversationID(t *testing.T) {
	source := &fakeSource{}
	recognizer := &fakeRecognizer{transcript: "again"}
	c, reconciler := newTestController(source, recognizer, happyChat(nil), nil)

	// First turn binds c1 via the chat stream.
	c.SendText(context.Background(), "first")
	if reconciler.ConversationID() != "c1" {
		t.Fatalf("conversation id = %q", reconciler.ConversationID())
	}

	// The next recognition session opens with the bound id.
	c.StartVoiceTurn(context.Background())
	c.StopVoiceTurn(context.Background())

	recognizer.mu.Lock()
	cfg := recognizer.lastCfg
	recognizer.mu.Unlock()
	if cfg.ConversationID != "c1" {
		t.Errorf("session conversation id = %q, want c1", cfg.ConversationID)
	}
	if cfg.CharacterID != "char-1" {
		t.Errorf("session character id = %q, want char-1", cfg.CharacterID)
	}
}
