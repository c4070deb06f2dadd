package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/wngkj/RoleVerse/internal/conversation"
	"github.com/wngkj/RoleVerse/internal/metrics"
)

// Stream is one turn's event stream. It owns the network channel
// exclusively until end, error or cancellation.
type Stream struct {
	body      io.ReadCloser
	parser    *sseParser
	logger    *slog.Logger
	metrics   *metrics.Metrics
	closeOnce sync.Once

	mu        sync.Mutex
	applied   uint64
	malformed uint64
}

// StreamStats reports per-stream event counts.
type StreamStats struct {
	EventsApplied   uint64 `json:"events_applied"`
	MalformedEvents uint64 `json:"malformed_events"`
}

func newStream(body io.ReadCloser, logger *slog.Logger, m *metrics.Metrics) *Stream {
	return &Stream{
		body:    body,
		parser:  newSSEParser(body),
		logger:  logger,
		metrics: m,
	}
}

// Apply consumes the stream and folds every event into the turn, returning
// when the turn reaches a terminal status. Malformed frames are logged and
// skipped; an explicit error event or a truncated stream fails the turn.
// Context cancellation discards any buffered partial frame.
func (s *Stream) Apply(ctx context.Context, turn *conversation.Turn) error {
	if err := turn.BeginStreaming(); err != nil {
		s.Close()
		return err
	}
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			turn.Fail(ctx.Err())
			return ctx.Err()
		default:
		}

		frame, err := s.parser.Next()
		if errors.Is(err, io.EOF) {
			turn.Fail(ErrStreamTruncated)
			return ErrStreamTruncated
		}
		if err != nil {
			perr := &ProtocolError{Message: "stream read failed", Err: err}
			turn.Fail(perr)
			return perr
		}

		event, err := parseEvent(frame)
		if err != nil {
			s.countMalformed()
			s.logger.Warn("skipping malformed stream event",
				slog.String("event", frame.Event),
				slog.String("error", err.Error()))
			continue
		}
		s.countApplied()

		switch event.Kind {
		case EventStart:
			turn.BindConversation(event.ConversationID)

		case EventChunk:
			turn.AppendText(event.Text)
			if s.metrics != nil {
				s.metrics.ChunkEvents.Inc()
			}

		case EventAudio:
			turn.SetAudio(event.Audio)
			if s.metrics != nil {
				s.metrics.AudioEvents.Inc()
			}

		case EventEnd:
			turn.Complete()
			return nil

		case EventError:
			perr := &ProtocolError{Message: event.Message}
			turn.Fail(perr)
			return perr
		}
	}
}

// Close releases the network channel. Safe to call more than once and
// concurrently with Apply.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

func (s *Stream) countApplied() {
	s.mu.Lock()
	s.applied++
	s.mu.Unlock()
}

func (s *Stream) countMalformed() {
	s.mu.Lock()
	s.malformed++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.MalformedEvents.Inc()
	}
}

// Stats returns event counts for this stream.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{EventsApplied: s.applied, MalformedEvents: s.malformed}
}
