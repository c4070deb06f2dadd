package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeConn records delivered frames and serves a canned transcript.
type fakeConn struct {
	mu         sync.Mutex
	frames     []*Frame
	failAt     int // fail the Nth SendFrame (1-based); 0 disables
	transcript string
	finishErr  error
	aborted    bool
	finished   bool
}

func (c *fakeConn) SendFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.frames)+1 == c.failAt {
		return errors.New("connection reset")
	}
	frame, err := ParseFrame(data)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Finish(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return c.transcript, c.finishErr
}

func (c *fakeConn) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	return nil
}

func (c *fakeConn) sentFrames() []*Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Frame(nil), c.frames...)
}

// fakeService hands out a fixed conn, optionally gating Open on a channel.
type fakeService struct {
	conn    *fakeConn
	openErr error
	gate    chan struct{} // Open blocks until closed, when non-nil
	opens   int
	mu      sync.Mutex
}

func (s *fakeService) Open(ctx context.Context, cfg SessionConfig) (Conn, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.conn, nil
}

func newTestSession(svc Service, opts SessionOptions) *Session {
	return NewSession(svc, SessionConfig{Model: "test", SampleRate: 16000, Channels: 1}, opts)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session state = %s, want %s", s.State(), want)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSessionDeliversFramesInOrder(t *testing.T) {
	conn := &fakeConn{transcript: "hello there"}
	svc := &fakeService{conn: conn}
	s := newTestSession(svc, SessionOptions{})

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	waitState(t, s, StateStreaming)

	const n = 20
	for i := 0; i < n; i++ {
		if err := s.PushFrame(seqSamples(i, 4)); err != nil {
			t.Fatalf("PushFrame %d failed: %v", i, err)
		}
	}

	transcript, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if transcript != "hello there" {
		t.Errorf("transcript = %q, want %q", transcript, "hello there")
	}

	frames := conn.sentFrames()
	if len(frames) != n {
		t.Fatalf("delivered %d frames, want %d", len(frames), n)
	}
	for i, f := range frames {
		if f.Header.Sequence != uint32(i) {
			t.Errorf("frame %d has sequence %d", i, f.Header.Sequence)
		}
		samples, _ := f.Samples()
		if samples[0] != int16(i) {
			t.Errorf("frame %d out of order: first sample %d", i, samples[0])
		}
	}
	if !conn.finished {
		t.Error("Finish was never called")
	}
}

func seqSamples(start, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(start + i)
	}
	return s
}

func TestSessionSendFailureIsTerminalAndExactlyOnce(t *testing.T) {
	conn := &fakeConn{failAt: 3}
	svc := &fakeService{conn: conn}

	var failures int32
	var failMu sync.Mutex
	failed := make(chan struct{})
	s := newTestSession(svc, SessionOptions{OnFailure: func(err error) {
		failMu.Lock()
		failures++
		if failures == 1 {
			close(failed)
		}
		failMu.Unlock()
	}})

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	waitState(t, s, StateStreaming)

	for i := 0; i < 10; i++ {
		s.PushFrame(seqSamples(i, 4))
	}

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}
	waitState(t, s, StateFailed)

	// Frames 1 and 2 went out; nothing at or after the failing frame did.
	if got := len(conn.sentFrames()); got != 2 {
		t.Errorf("delivered %d frames, want 2", got)
	}
	if !conn.aborted {
		t.Error("connection was not aborted on failure")
	}

	// Later pushes are rejected, not queued.
	if err := s.PushFrame(seqSamples(0, 4)); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("push after failure = %v, want ErrNotStreaming", err)
	}

	// Stop reports the failure instead of a transcript.
	if _, err := s.Stop(context.Background()); err == nil {
		t.Error("Stop on failed session should return the failure")
	}

	time.Sleep(50 * time.Millisecond)
	failMu.Lock()
	if failures != 1 {
		t.Errorf("failure callback fired %d times, want 1", failures)
	}
	failMu.Unlock()
}

func TestSessionStopDuringStartingBlocksOnHandshake(t *testing.T) {
	conn := &fakeConn{transcript: "late start"}
	svc := &fakeService{conn: conn, gate: make(chan struct{})}
	s := newTestSession(svc, SessionOptions{})

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if s.State() != StateStarting {
		t.Fatalf("state = %s, want starting", s.State())
	}

	type result struct {
		transcript string
		err        error
	}
	results := make(chan result, 1)
	go func() {
		transcript, err := s.Stop(context.Background())
		results <- result{transcript, err}
	}()

	// Stop must not resolve before the handshake does.
	select {
	case r := <-results:
		t.Fatalf("Stop returned early: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	close(svc.gate)
	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Stop failed: %v", r.err)
		}
		if r.transcript != "late start" {
			t.Errorf("transcript = %q, want %q", r.transcript, "late start")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after handshake")
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	conn := &fakeConn{transcript: "once"}
	svc := &fakeService{conn: conn}
	s := newTestSession(svc, SessionOptions{})

	s.Begin(context.Background())
	waitState(t, s, StateStreaming)
	s.PushFrame(seqSamples(0, 4))

	first, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.Stop(context.Background())
		if err != nil {
			t.Errorf("repeated Stop %d failed: %v", i, err)
		}
		if again != first {
			t.Errorf("repeated Stop %d returned %q, want %q", i, again, first)
		}
	}
	if got := len(conn.sentFrames()); got != 1 {
		t.Errorf("delivered %d frames after repeated stops, want 1", got)
	}
}

func TestSessionStopIdleFinalizesEmpty(t *testing.T) {
	s := newTestSession(&fakeService{conn: &fakeConn{}}, SessionOptions{})
	transcript, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if transcript != "" {
		t.Errorf("transcript = %q, want empty", transcript)
	}
	if s.State() != StateFinalized {
		t.Errorf("state = %s, want finalized", s.State())
	}
}

func TestSessionBeginTwice(t *testing.T) {
	s := newTestSession(&fakeService{conn: &fakeConn{}}, SessionOptions{})
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Begin(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Begin = %v, want ErrAlreadyStarted", err)
	}
}

func TestSessionOpenFailure(t *testing.T) {
	svc := &fakeService{openErr: errors.New("recognizer unreachable")}
	failed := make(chan error, 1)
	s := newTestSession(svc, SessionOptions{OnFailure: func(err error) { failed <- err }})

	s.Begin(context.Background())
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}
	waitState(t, s, StateFailed)

	if _, err := s.Stop(context.Background()); err == nil {
		t.Error("Stop after open failure should return the failure")
	}
}

func TestSessionTrailingFrameMarkedFinal(t *testing.T) {
	conn := &fakeConn{transcript: "tail"}
	svc := &fakeService{conn: conn}
	s := newTestSession(svc, SessionOptions{})

	s.Begin(context.Background())
	waitState(t, s, StateStreaming)

	s.PushFrame(seqSamples(0, 4))
	if err := s.PushTrailing(seqSamples(4, 2)); err != nil {
		t.Fatalf("PushTrailing failed: %v", err)
	}
	if err := s.PushTrailing(nil); err != nil {
		t.Errorf("empty PushTrailing = %v, want nil", err)
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	frames := conn.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("delivered %d frames, want 2", len(frames))
	}
	if frames[0].Header.FrameType != FrameTypeAudio {
		t.Errorf("frame 0 type = 0x%02x, want audio", frames[0].Header.FrameType)
	}
	if frames[1].Header.FrameType != FrameTypeFinal {
		t.Errorf("frame 1 type = 0x%02x, want final", frames[1].Header.FrameType)
	}
}

func TestSessionEmptyTranscript(t *testing.T) {
	conn := &fakeConn{transcript: ""}
	svc := &fakeService{conn: conn}
	s := newTestSession(svc, SessionOptions{})

	s.Begin(context.Background())
	waitState(t, s, StateStreaming)
	s.PushFrame(seqSamples(0, 4))

	transcript, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if transcript != "" {
		t.Errorf("transcript = %q, want empty", transcript)
	}
	if s.State() != StateFinalized {
		t.Errorf("state = %s, want finalized", s.State())
	}
}

func TestSessionStats(t *testing.T) {
	conn := &fakeConn{transcript: "stats"}
	svc := &fakeService{conn: conn}
	s := newTestSession(svc, SessionOptions{})

	s.Begin(context.Background())
	waitState(t, s, StateStreaming)
	s.PushFrame(seqSamples(0, 4))
	s.Stop(context.Background())

	stats := s.Stats()
	if stats.State != "finalized" {
		t.Errorf("stats state = %q, want finalized", stats.State)
	}
	if stats.FramesPushed != 1 || stats.FramesSent != 1 {
		t.Errorf("frames pushed/sent = %d/%d, want 1/1", stats.FramesPushed, stats.FramesSent)
	}
}
