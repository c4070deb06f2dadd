package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Control message types exchanged as JSON text frames. Audio travels as
// binary frames (see wire.go).
const (
	msgSessionOpen   = "session.open"
	msgSessionOpened = "session.opened"
	msgSessionClose  = "session.close"
	msgSessionClosed = "session.closed"
	msgError         = "error"
)

// controlMessage is the JSON envelope for every text frame in both
// directions. Fields are populated per message type.
type controlMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id,omitempty"`
	CharacterID    string `json:"character_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	Channels       int    `json:"channels,omitempty"`
	Format         string `json:"format,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	Message        string `json:"message,omitempty"`
}

// SessionConfig describes one recognizer session. ConversationID is empty
// for a conversation the backend has not assigned an id to yet.
type SessionConfig struct {
	CharacterID    string
	ConversationID string
	Model          string
	SampleRate     int
	Channels       int
}

// Conn is one live recognizer connection. Implementations are safe for a
// single writer; the session's sender goroutine is the only caller of
// SendFrame.
type Conn interface {
	// SendFrame transmits one encoded binary audio frame.
	SendFrame(frame []byte) error
	// Finish signals end of audio and waits for the final transcript.
	Finish(ctx context.Context) (string, error)
	// Abort tears the connection down without waiting for a transcript.
	Abort() error
}

// Service opens recognizer connections. The WebSocket implementation is
// the production one; tests substitute fakes.
type Service interface {
	Open(ctx context.Context, cfg SessionConfig) (Conn, error)
}

// WSConfig configures the WebSocket recognizer client.
type WSConfig struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// WSService dials the recognizer over WebSocket and speaks the session
// control protocol.
type WSService struct {
	cfg    WSConfig
	logger *slog.Logger
}

// NewWSService creates a WebSocket recognizer client.
func NewWSService(cfg WSConfig) *WSService {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WSService{cfg: cfg, logger: logger.With(slog.String("component", "recognition"))}
}

// Open dials the recognizer, sends session.open and waits for the server's
// session.opened acknowledgement. The context bounds the whole handshake.
func (s *WSService) Open(ctx context.Context, cfg SessionConfig) (Conn, error) {
	headers := http.Header{}
	if s.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, s.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("recognition: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("recognition: dial failed: %w", err)
	}

	conn := &wsConn{
		ws:      ws,
		logger:  s.logger,
		closeCh: make(chan struct{}),
		ctrlCh:  make(chan controlOrError, 16),
	}
	go conn.readLoop()

	open := controlMessage{
		Type:           msgSessionOpen,
		CharacterID:    cfg.CharacterID,
		ConversationID: cfg.ConversationID,
		Model:          cfg.Model,
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		Format:         "pcm16",
	}
	if err := conn.writeJSON(open); err != nil {
		conn.Abort()
		return nil, fmt.Errorf("recognition: failed to send session.open: %w", err)
	}

	ack, err := conn.waitControl(ctx, msgSessionOpened)
	if err != nil {
		conn.Abort()
		return nil, err
	}
	conn.sessionID = ack.SessionID

	s.logger.Debug("recognizer session opened",
		slog.String("session_id", ack.SessionID),
		slog.String("model", cfg.Model))
	return conn, nil
}

type controlOrError struct {
	msg controlMessage
	err error
}

// wsConn is one open recognizer WebSocket. A background read loop feeds
// control messages to ctrlCh; writes are serialized by writeMu.
type wsConn struct {
	ws        *websocket.Conn
	logger    *slog.Logger
	sessionID string

	closeCh   chan struct{}
	ctrlCh    chan controlOrError
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func (c *wsConn) SendFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsConn) Finish(ctx context.Context) (string, error) {
	if err := c.writeJSON(controlMessage{Type: msgSessionClose}); err != nil {
		return "", fmt.Errorf("recognition: failed to send session.close: %w", err)
	}
	closed, err := c.waitControl(ctx, msgSessionClosed)
	if err != nil {
		return "", err
	}
	c.close()
	return closed.Transcript, nil
}

func (c *wsConn) Abort() error {
	return c.close()
}

func (c *wsConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) writeJSON(msg controlMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// waitControl blocks until the server sends a control message of the
// wanted type, the server reports an error, or the context expires.
func (c *wsConn) waitControl(ctx context.Context, want string) (controlMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return controlMessage{}, fmt.Errorf("recognition: waiting for %s: %w", want, ctx.Err())
		case <-c.closeCh:
			return controlMessage{}, errors.New("recognition: connection closed")
		case item, ok := <-c.ctrlCh:
			if !ok {
				return controlMessage{}, errors.New("recognition: connection closed")
			}
			if item.err != nil {
				return controlMessage{}, item.err
			}
			switch item.msg.Type {
			case want:
				return item.msg, nil
			case msgError:
				return controlMessage{}, fmt.Errorf("%w: %s", ErrServerRejected, item.msg.Message)
			default:
				c.logger.Debug("ignoring control message",
					slog.String("type", item.msg.Type),
					slog.String("expected", want))
			}
		}
	}
}

// readLoop pumps inbound text frames into ctrlCh until the connection
// closes. Binary frames from the server are not part of the protocol and
// are dropped with a log line.
func (c *wsConn) readLoop() {
	defer close(c.ctrlCh)

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			case c.ctrlCh <- controlOrError{err: fmt.Errorf("recognition: read failed: %w", err)}:
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Warn("unexpected binary message from recognizer", slog.Int("bytes", len(data)))
			continue
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed control message", slog.String("error", err.Error()))
			continue
		}

		select {
		case <-c.closeCh:
			return
		case c.ctrlCh <- controlOrError{msg: msg}:
		}
	}
}
