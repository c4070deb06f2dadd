package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wngkj/RoleVerse/internal/audio"
	"github.com/wngkj/RoleVerse/internal/conversation"
	"github.com/wngkj/RoleVerse/internal/metrics"
	"github.com/wngkj/RoleVerse/internal/recognition"
)

var (
	// ErrRecordingActive is returned by StartVoiceTurn while a voice turn
	// is live or still starting; the prior one must fully stop first.
	ErrRecordingActive = errors.New("voice: recording already active")
	// ErrNotRecording is returned by StopVoiceTurn with no live capture.
	ErrNotRecording = errors.New("voice: no active recording")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voice: controller closed")
)

// Chat drives one turn's event stream to a terminal status. Implemented by
// the chat client; tests substitute fakes.
type Chat interface {
	StreamTurn(ctx context.Context, turn *conversation.Turn) error
}

// Player accepts synthesized audio payloads for queued playback.
type Player interface {
	Enqueue(payload []byte)
}

// Config tunes the controller.
type Config struct {
	CharacterID string
	// Recognition is the session template; the conversation id is filled
	// in per turn from the reconciler.
	Recognition recognition.SessionConfig
	FrameSize   int
	// QueueSize bounds the frame buffer between capture and sender.
	QueueSize int
	// OnAssistantText receives each text fragment as it streams in.
	OnAssistantText func(fragment string)
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Controller owns the voice-turn lifecycle. The device stream, the level
// meter and the recognition session each belong to exactly one active
// recording; a second recording cannot start until the prior one is fully
// stopped.
type Controller struct {
	cfg        Config
	source     audio.Source
	recognizer recognition.Service
	chat       Chat
	reconciler *conversation.Reconciler
	player     Player
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	capture *audio.CaptureSession
	session *recognition.Session
	framer  *audio.Framer
	started time.Time
	closed  bool

	turnsStarted uint64
	turnsSilent  uint64
}

// Info is a point-in-time snapshot for the debug endpoint.
type Info struct {
	Recording    bool                         `json:"recording"`
	InputLevel   float64                      `json:"input_level"`
	Session      *recognition.SessionStats    `json:"session,omitempty"`
	Conversation conversation.ReconcilerStats `json:"conversation"`
	TurnsStarted uint64                       `json:"turns_started"`
	TurnsSilent  uint64                       `json:"turns_silent"`
}

// NewController wires the pipeline stages together. player may be nil when
// no output device is available; voice turns then render text only.
func NewController(cfg Config, source audio.Source, recognizer recognition.Service, chat Chat, reconciler *conversation.Reconciler, player Player) *Controller {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audio.FrameSamples
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		source:     source,
		recognizer: recognizer,
		chat:       chat,
		reconciler: reconciler,
		player:     player,
		logger:     logger.With(slog.String("component", "voice")),
		metrics:    cfg.Metrics,
	}
}

// StartVoiceTurn acquires the microphone and opens a recognition session.
// Captured audio streams to the recognizer until StopVoiceTurn. A session
// failure at any point tears the capture down and surfaces through the
// returned turn of StopVoiceTurn.
func (c *Controller) StartVoiceTurn(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// c.session is assigned below while the lock is still held, so it
	// covers the whole start sequence. c.capture only lands after the
	// source reports, which leaves a window a second caller could slip
	// through.
	if c.session != nil {
		c.mu.Unlock()
		return ErrRecordingActive
	}

	framer := audio.NewFramer(c.cfg.FrameSize)
	sessCfg := c.cfg.Recognition
	sessCfg.CharacterID = c.cfg.CharacterID
	sessCfg.ConversationID = c.reconciler.ConversationID()

	session := recognition.NewSession(c.recognizer, sessCfg, recognition.SessionOptions{
		QueueSize: c.cfg.QueueSize,
		Logger:    c.logger,
		OnFailure: func(err error) {
			c.abortCapture(err)
		},
	})
	c.session = session
	c.framer = framer
	c.started = time.Now()
	c.mu.Unlock()

	if err := session.Begin(ctx); err != nil {
		c.clearRecording()
		return err
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Inc()
	}

	capture, err := c.source.Start(ctx, func(samples []int16) {
		c.deliver(session, framer, samples)
	})
	if err != nil {
		c.clearRecording()
		// Finalize the session we will never feed.
		go session.Stop(context.Background())
		if c.metrics != nil {
			c.metrics.CaptureErrors.Inc()
			c.metrics.ActiveSessions.Dec()
		}
		return fmt.Errorf("voice: capture start failed: %w", err)
	}

	c.mu.Lock()
	c.capture = capture
	c.mu.Unlock()

	// The handshake may have failed before the capture handle landed; make
	// sure a dead session never keeps the device open.
	if session.State() == recognition.StateFailed {
		c.abortCapture(session.Err())
	}

	c.logger.Info("recording started",
		slog.String("character_id", c.cfg.CharacterID),
		slog.String("conversation_id", sessCfg.ConversationID))
	return nil
}

// deliver carries captured PCM into the session: frame, push. It never
// blocks; frame delivery failures are handled by the session itself.
func (c *Controller) deliver(session *recognition.Session, framer *audio.Framer, samples []int16) {
	for _, frame := range framer.Push(samples) {
		if err := session.PushFrame(frame); err != nil {
			return
		}
		if c.metrics != nil {
			c.metrics.FramesCaptured.Inc()
		}
	}
}

// StopVoiceTurn releases the microphone, finalizes the recognition session
// and, for a non-empty transcript, runs the chat turn to completion. A
// silent recording returns (nil, nil): the session ends without a turn.
func (c *Controller) StopVoiceTurn(ctx context.Context) (*conversation.Turn, error) {
	c.mu.Lock()
	capture, session, framer := c.capture, c.session, c.framer
	c.capture, c.session, c.framer = nil, nil, nil
	started := c.started
	c.mu.Unlock()

	if session == nil {
		return nil, ErrNotRecording
	}

	if capture != nil {
		if err := capture.Stop(); err != nil {
			c.logger.Warn("capture release failed", slog.String("error", err.Error()))
		}
	}
	if trailing := framer.Flush(); trailing != nil {
		session.PushTrailing(trailing)
	}

	transcript, err := session.Stop(ctx)
	if c.metrics != nil {
		c.metrics.ActiveSessions.Dec()
		c.metrics.SessionDuration.Observe(time.Since(started).Seconds())
		c.metrics.FramesSent.Add(float64(session.Stats().FramesSent))
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.SessionsFailed.Inc()
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.SessionsFinalized.Inc()
		c.metrics.TranscriptLength.Observe(float64(len(transcript)))
	}

	if strings.TrimSpace(transcript) == "" {
		c.mu.Lock()
		c.turnsSilent++
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.EmptyTranscripts.Inc()
		}
		c.logger.Info("recording ended silently")
		return nil, nil
	}

	return c.runTurn(ctx, transcript, conversation.InputModeVoice), nil
}

// SendText submits a typed utterance through the same turn path as voice,
// minus capture and playback.
func (c *Controller) SendText(ctx context.Context, text string) (*conversation.Turn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("voice: message cannot be empty")
	}
	return c.runTurn(ctx, text, conversation.InputModeText), nil
}

// runTurn streams one turn and commits the outcome. Synthesized audio is
// queued for playback only on voice turns.
func (c *Controller) runTurn(ctx context.Context, utterance string, mode conversation.InputMode) *conversation.Turn {
	turn := conversation.NewTurn(c.cfg.CharacterID, utterance, mode, c.reconciler.ConversationID())
	if c.cfg.OnAssistantText != nil {
		turn.OnText(c.cfg.OnAssistantText)
	}

	c.mu.Lock()
	c.turnsStarted++
	c.mu.Unlock()

	started := time.Now()
	err := c.chat.StreamTurn(ctx, turn)
	if c.metrics != nil {
		c.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	}

	if turn.Status() == conversation.TurnCompleted {
		if cerr := c.reconciler.CommitCompleted(turn); cerr != nil {
			c.logger.Error("commit failed", slog.String("error", cerr.Error()))
		}
		if c.metrics != nil {
			c.metrics.TurnsCompleted.Inc()
		}
		if mode == conversation.InputModeVoice && c.player != nil {
			if payload := turn.Audio(); len(payload) > 0 {
				c.player.Enqueue(payload)
			}
		}
		return turn
	}

	// Anything short of completion is an errored turn.
	if !turn.Status().Terminal() {
		if err == nil {
			err = fmt.Errorf("voice: stream ended in status %s", turn.Status())
		}
		turn.Fail(err)
	}
	if cerr := c.reconciler.CommitErrored(turn); cerr != nil {
		c.logger.Error("commit failed", slog.String("error", cerr.Error()))
	}
	if c.metrics != nil {
		c.metrics.TurnsErrored.Inc()
	}
	return turn
}

// abortCapture releases the device stream after a session failure. The
// failed session stays in place so StopVoiceTurn reports its error to the
// user.
func (c *Controller) abortCapture(cause error) {
	c.mu.Lock()
	capture := c.capture
	c.capture = nil
	c.mu.Unlock()

	if capture != nil {
		if err := capture.Stop(); err != nil {
			c.logger.Warn("capture release failed", slog.String("error", err.Error()))
		}
	}
	c.logger.Error("recording aborted", slog.String("error", cause.Error()))
}

func (c *Controller) clearRecording() {
	c.mu.Lock()
	c.capture, c.session, c.framer = nil, nil, nil
	c.mu.Unlock()
}

// Recording reports whether a capture session is live.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// Level returns the current input level for the visualizer.
func (c *Controller) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return 0
	}
	return c.capture.Level()
}

// Snapshot returns the controller state for the debug endpoint.
func (c *Controller) Snapshot() Info {
	c.mu.Lock()
	capture, session := c.capture, c.session
	turnsStarted, turnsSilent := c.turnsStarted, c.turnsSilent
	c.mu.Unlock()

	info := Info{
		Recording:    capture != nil,
		Conversation: c.reconciler.Stats(),
		TurnsStarted: turnsStarted,
		TurnsSilent:  turnsSilent,
	}
	if capture != nil {
		info.InputLevel = capture.Level()
	}
	if session != nil {
		stats := session.Stats()
		info.Session = &stats
	}
	return info
}

// Close stops any live recording and marks the controller unusable. The
// recognition session is aborted rather than finalized; no turn is run.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	capture, session := c.capture, c.session
	c.capture, c.session, c.framer = nil, nil, nil
	c.mu.Unlock()

	var err error
	if capture != nil {
		err = capture.Stop()
	}
	if session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		session.Stop(ctx)
	}
	return err
}
