package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wngkj/RoleVerse/internal/metrics"
)

// Summary is one row of the externally owned conversation list.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	CharacterName  string `json:"character_name"`
	Title          string `json:"title"`
	LastMessage    string `json:"last_message"`
}

// Character is the lookup record used to render names and avatars.
type Character struct {
	ID          string `json:"character_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
	Voice       string `json:"voice,omitempty"`
}

// DefaultVoice is used when a character record carries no voice.
const DefaultVoice = "zhifeng"

// Voices lists the synthesis voices the backend accepts.
var Voices = []string{"zhifeng", "zhichu", "zhimiao", "zhiyan"}

// ValidVoice reports whether name is an accepted synthesis voice.
func ValidVoice(name string) bool {
	for _, v := range Voices {
		if v == name {
			return true
		}
	}
	return false
}

// ClientConfig contains backend HTTP client configuration.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	Metrics       *metrics.Metrics
}

// Client talks to the conversation list and character lookup services.
// Requests are rate limited by a semaphore and retried with exponential
// backoff on transient failures.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents backend client statistics.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a backend HTTP client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// ListConversations fetches the conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]Summary, error) {
	var payload struct {
		Conversations []Summary `json:"conversations"`
	}
	if err := c.getJSON(ctx, "conversations", "/api/conversations", &payload); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return payload.Conversations, nil
}

// GetCharacter fetches one character record.
func (c *Client) GetCharacter(ctx context.Context, id string) (*Character, error) {
	if id == "" {
		return nil, fmt.Errorf("character id cannot be empty")
	}
	var character Character
	if err := c.getJSON(ctx, "character", "/api/characters/"+id, &character); err != nil {
		return nil, fmt.Errorf("get character %s: %w", id, err)
	}
	return &character, nil
}

// getJSON performs a rate-limited GET with retries and decodes the JSON
// response into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out interface{}) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}
			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, path, out)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			c.recordRequest(endpoint, "ok", time.Since(startTime))
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	c.recordRequest(endpoint, "error", time.Since(startTime))
	return fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) recordRequest(endpoint, status string, elapsed time.Duration) {
	if c.config.Metrics == nil {
		return
	}
	c.config.Metrics.BackendRequests.WithLabelValues(endpoint, status).Inc()
	c.config.Metrics.BackendDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (c *Client) doRequest(ctx context.Context, path string, out interface{}) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// isRetryableError treats 5xx, rate limiting and connection-level failures
// as transient.
func isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	errStr := err.Error()
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}
	return false
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
