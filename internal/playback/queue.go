package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wngkj/RoleVerse/internal/metrics"
)

// Player renders decoded PCM samples on an output device. Implementations
// block until playback finishes or the context is cancelled.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// Error wraps a decode or device failure with the stage that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("playback: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Queue plays payloads one at a time in enqueue order. A single worker
// goroutine owns the player; Enqueue never blocks the caller.
type Queue struct {
	player  Player
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	jobs   chan []byte
	closed bool

	enqueued uint64
	played   uint64
	failed   uint64
	dropped  uint64

	done chan struct{}
}

// QueueStats reports playback counters for monitoring.
type QueueStats struct {
	Enqueued uint64 `json:"enqueued"`
	Played   uint64 `json:"played"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Pending  int    `json:"pending"`
}

// NewQueue creates a playback queue holding up to queueSize pending
// payloads and starts its worker.
func NewQueue(player Player, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if queueSize <= 0 {
		queueSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		player:  player,
		logger:  logger.With(slog.String("component", "playback")),
		metrics: m,
		jobs:    make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue queues one payload for playback. A full or closed queue drops
// the payload with a log line; playback problems are never fatal to the
// conversation.
func (q *Queue) Enqueue(payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		q.logger.Warn("payload dropped: queue closed")
		return
	}
	select {
	case q.jobs <- payload:
		q.enqueued++
		if q.metrics != nil {
			q.metrics.PlaybackPending.Set(float64(len(q.jobs)))
		}
	default:
		q.dropped++
		q.logger.Warn("payload dropped: queue full", slog.Int("pending", len(q.jobs)))
	}
}

// Close stops accepting payloads, lets queued ones finish playing and
// waits for the worker to exit. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) worker() {
	defer close(q.done)
	for payload := range q.jobs {
		q.play(payload)
	}
}

func (q *Queue) play(payload []byte) {
	samples, rate, err := decodePayload(payload)
	if err != nil {
		q.countFailed()
		q.logger.Warn("audio decode failed", slog.String("error", err.Error()))
		return
	}

	if err := q.player.Play(context.Background(), samples, rate); err != nil {
		q.countFailed()
		q.logger.Warn("audio playback failed",
			slog.Int("samples", len(samples)),
			slog.String("error", err.Error()))
		return
	}

	q.mu.Lock()
	q.played++
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.PayloadsPlayed.Inc()
		q.metrics.PlaybackPending.Set(float64(len(q.jobs)))
	}
}

func (q *Queue) countFailed() {
	q.mu.Lock()
	q.failed++
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.PlaybackFailures.Inc()
	}
}

// Stats returns current playback counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Enqueued: q.enqueued,
		Played:   q.played,
		Failed:   q.failed,
		Dropped:  q.dropped,
		Pending:  len(q.jobs),
	}
}
