package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wngkj/RoleVerse/internal/conversation"
	"github.com/wngkj/RoleVerse/internal/metrics"
)

// ClientConfig configures the streaming chat client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Voice selects the synthesis voice for audio events. Empty lets the
	// server use the character's default.
	Voice string
	// Timeout bounds the whole stream, not just the connect. Zero means
	// the stream may run as long as the context allows.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// turnRequest is the JSON body of a chat-stream request.
type turnRequest struct {
	CharacterID    string `json:"character_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	InputMode      string `json:"input_mode"`
	Voice          string `json:"voice,omitempty"`
}

// Client opens one event stream per turn against the chat service.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a streaming chat client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With(slog.String("component", "chat")),
	}, nil
}

// OpenStream submits a turn and returns its event stream. The caller owns
// the stream and must run Apply (or Close) on it.
func (c *Client) OpenStream(ctx context.Context, turn *conversation.Turn) (*Stream, error) {
	body, err := json.Marshal(turnRequest{
		CharacterID:    turn.CharacterID(),
		Message:        turn.UserUtterance(),
		ConversationID: turn.ConversationID(),
		InputMode:      string(turn.InputMode()),
		Voice:          c.config.Voice,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/api/chat/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", turn.ID())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("chat: HTTP error %d: %s", resp.StatusCode, string(msg))
	}

	c.logger.Debug("chat stream opened",
		slog.String("request_id", turn.ID()),
		slog.String("character_id", turn.CharacterID()),
		slog.String("input_mode", string(turn.InputMode())))

	return newStream(resp.Body, c.logger, c.config.Metrics), nil
}

// StreamTurn opens the turn's event stream and applies it until the turn
// reaches a terminal status. A failure to open the stream fails the turn,
// so the caller can commit it as errored.
func (c *Client) StreamTurn(ctx context.Context, turn *conversation.Turn) error {
	stream, err := c.OpenStream(ctx, turn)
	if err != nil {
		turn.Fail(err)
		return err
	}
	return stream.Apply(ctx, turn)
}
