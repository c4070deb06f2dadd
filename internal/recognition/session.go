package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the lifecycle phase of a recognition session.
type State int

const (
	// StateIdle means Begin has not been called.
	StateIdle State = iota
	// StateStarting means the open handshake is in flight.
	StateStarting
	// StateStreaming means the session accepts and delivers audio frames.
	StateStreaming
	// StateStopping means end-of-audio was signaled and the final
	// transcript is pending.
	StateStopping
	// StateFinalized means the transcript was delivered. Terminal.
	StateFinalized
	// StateFailed means the session aborted. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// ErrQueueFull means audio was produced faster than it could be sent for
// longer than the queue can absorb. It fails the session.
var ErrQueueFull = errors.New("recognition: frame queue full")

type queuedFrame struct {
	samples []int16
	final   bool
}

// SessionOptions tune a session. Zero values pick sensible defaults.
type SessionOptions struct {
	// QueueSize bounds the number of frames buffered between the capture
	// callback and the sender goroutine. Default 256.
	QueueSize int
	// OnFailure is invoked at most once, when the session transitions to
	// StateFailed. Called on its own goroutine.
	OnFailure func(error)
	Logger    *slog.Logger
}

// Session drives one speech-to-text exchange. Frames pushed by the capture
// pipeline are delivered to the recognizer in push order by a single sender
// goroutine; any delivery failure moves the session to StateFailed exactly
// once and nothing queued after the failing frame is ever sent.
type Session struct {
	service   Service
	cfg       SessionConfig
	opts      SessionOptions
	logger    *slog.Logger
	onFailure func(error)

	mu         sync.Mutex
	state      State
	conn       Conn
	seq        uint32
	failErr    error
	transcript string
	qClosed    bool

	startDone  chan struct{} // closed when the open handshake resolves
	done       chan struct{} // closed on entering a terminal state
	sendQ      chan queuedFrame
	senderDone chan struct{}

	framesPushed uint64
	framesSent   uint64
	startedAt    time.Time
}

// SessionStats is a point-in-time snapshot for monitoring.
type SessionStats struct {
	State        string        `json:"state"`
	FramesPushed uint64        `json:"frames_pushed"`
	FramesSent   uint64        `json:"frames_sent"`
	QueueDepth   int           `json:"queue_depth"`
	Uptime       time.Duration `json:"uptime"`
}

// NewSession creates an idle session. Begin starts it.
func NewSession(service Service, cfg SessionConfig, opts SessionOptions) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		service:    service,
		cfg:        cfg,
		opts:       opts,
		logger:     logger,
		onFailure:  opts.OnFailure,
		state:      StateIdle,
		startDone:  make(chan struct{}),
		done:       make(chan struct{}),
		sendQ:      make(chan queuedFrame, opts.QueueSize),
		senderDone: make(chan struct{}),
	}
}

// Begin moves the session to StateStarting and opens the recognizer
// connection in the background. Frames may be pushed immediately; they are
// queued until the open handshake completes.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.open(ctx)
	return nil
}

func (s *Session) open(ctx context.Context) {
	conn, err := s.service.Open(ctx, s.cfg)
	if err != nil {
		s.fail(&SessionError{Op: "open", State: StateStarting, Err: err})
		close(s.startDone)
		return
	}

	s.mu.Lock()
	if s.state != StateStarting {
		// Failed while the handshake was in flight.
		s.mu.Unlock()
		conn.Abort()
		close(s.startDone)
		return
	}
	s.conn = conn
	s.state = StateStreaming
	s.mu.Unlock()

	go s.sender()
	close(s.startDone)
}

// PushFrame queues one full audio frame for delivery. It never blocks: a
// full queue fails the session instead of stalling the capture callback.
func (s *Session) PushFrame(samples []int16) error {
	return s.push(samples, false)
}

// PushTrailing queues the partial frame flushed when capture stops. Empty
// input is a no-op.
func (s *Session) PushTrailing(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	return s.push(samples, true)
}

func (s *Session) push(samples []int16, final bool) error {
	s.mu.Lock()
	if s.state != StateStarting && s.state != StateStreaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	select {
	case s.sendQ <- queuedFrame{samples: samples, final: final}:
		s.framesPushed++
		s.mu.Unlock()
		return nil
	default:
	}
	state := s.state
	s.mu.Unlock()

	err := &SessionError{Op: "enqueue frame", State: state, Err: ErrQueueFull}
	s.fail(err)
	return err
}

// sender is the only goroutine that writes audio to the connection, which
// guarantees frames arrive in push order. On the first delivery error it
// fails the session and drains the rest of the queue unsent.
func (s *Session) sender() {
	defer close(s.senderDone)

	for item := range s.sendQ {
		s.mu.Lock()
		if s.state == StateFailed {
			s.mu.Unlock()
			continue
		}
		conn := s.conn
		seq := s.seq
		s.seq++
		state := s.state
		s.mu.Unlock()

		frameType := uint8(FrameTypeAudio)
		if item.final {
			frameType = FrameTypeFinal
		}
		frame, err := EncodeFrame(frameType, seq, item.samples)
		if err == nil {
			err = conn.SendFrame(frame)
		}
		if err != nil {
			s.fail(&SessionError{Op: "send frame", State: state, Err: err})
			continue
		}

		s.mu.Lock()
		s.framesSent++
		s.mu.Unlock()
	}
}

// Stop ends the session and returns the final transcript. Behavior by
// state: during the open handshake it blocks until the handshake resolves;
// while streaming it flushes queued frames, signals end of audio and waits
// for the transcript; on a session that already finished it returns the
// prior outcome without side effects. An idle session finalizes with an
// empty transcript.
func (s *Session) Stop(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		switch s.state {
		case StateIdle:
			s.state = StateFinalized
			s.closeQueueLocked()
			close(s.done)
			s.mu.Unlock()
			return "", nil

		case StateStarting:
			s.mu.Unlock()
			select {
			case <-s.startDone:
			case <-ctx.Done():
				return "", fmt.Errorf("recognition: stop while starting: %w", ctx.Err())
			}
			continue

		case StateStreaming:
			s.state = StateStopping
			s.closeQueueLocked()
			conn := s.conn
			s.mu.Unlock()

			// Let the sender finish delivering everything already queued.
			<-s.senderDone

			s.mu.Lock()
			if s.state != StateStopping {
				// The sender failed on a queued frame.
				err := s.failErr
				s.mu.Unlock()
				return "", err
			}
			s.mu.Unlock()

			transcript, err := conn.Finish(ctx)
			if err != nil {
				failErr := &SessionError{Op: "finish", State: StateStopping, Err: err}
				s.fail(failErr)
				return "", failErr
			}

			s.mu.Lock()
			s.state = StateFinalized
			s.transcript = transcript
			close(s.done)
			s.mu.Unlock()

			s.logger.Debug("recognition session finalized",
				slog.Int("transcript_len", len(transcript)))
			return transcript, nil

		case StateStopping:
			// Another Stop is already in flight; wait for its outcome.
			s.mu.Unlock()
			select {
			case <-s.done:
			case <-ctx.Done():
				return "", fmt.Errorf("recognition: stop while stopping: %w", ctx.Err())
			}
			continue

		case StateFinalized:
			transcript := s.transcript
			s.mu.Unlock()
			return transcript, nil

		case StateFailed:
			err := s.failErr
			s.mu.Unlock()
			return "", err

		default:
			s.mu.Unlock()
			return "", fmt.Errorf("recognition: stop in unexpected state")
		}
	}
}

// fail moves the session to StateFailed at most once, aborts the
// connection and notifies the failure callback.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateFailed
	s.failErr = err
	s.closeQueueLocked()
	close(s.done)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Abort()
	}
	s.logger.Error("recognition session failed",
		slog.String("prior_state", prev.String()),
		slog.String("error", err.Error()))
	if s.onFailure != nil {
		go s.onFailure(err)
	}
}

func (s *Session) closeQueueLocked() {
	if !s.qClosed {
		s.qClosed = true
		close(s.sendQ)
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure cause, or nil if the session has not failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

// Done returns a channel closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot for monitoring.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt)
	}
	return SessionStats{
		State:        s.state.String(),
		FramesPushed: s.framesPushed,
		FramesSent:   s.framesSent,
		QueueDepth:   len(s.sendQ),
		Uptime:       uptime,
	}
}
