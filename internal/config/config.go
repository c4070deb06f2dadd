package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wngkj/RoleVerse/internal/audio"
)

// Config represents the complete client configuration
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Chat        ChatConfig        `yaml:"chat"`
	Audio       AudioConfig       `yaml:"audio"`
	Playback    PlaybackConfig    `yaml:"playback"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BackendConfig contains the conversation/character REST API configuration
type BackendConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// RecognitionConfig contains the speech recognition websocket configuration
type RecognitionConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Timeout   int    `yaml:"timeout"` // seconds, session open handshake
	QueueSize int    `yaml:"queue_size"`
}

// ChatConfig contains the streaming chat configuration
type ChatConfig struct {
	BaseURL string `yaml:"base_url"` // empty: backend base_url
	Timeout int    `yaml:"timeout"`  // seconds, whole stream; 0 = unbounded
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	FrameSize  int `yaml:"frame_size"` // samples per recognition frame
	RingFrames int `yaml:"ring_frames"`
}

// PlaybackConfig contains the synthesized-audio playback configuration
type PlaybackConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// HTTPConfig contains the local debug/monitoring server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration usable without a file, relying on
// environment variables for the secrets.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:5000"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = 3
	}
	if c.Backend.MaxConcurrent == 0 {
		c.Backend.MaxConcurrent = 4
	}
	if c.Recognition.Endpoint == "" {
		c.Recognition.Endpoint = "ws://127.0.0.1:5001/recognize"
	}
	if c.Recognition.Model == "" {
		c.Recognition.Model = "paraformer-realtime-v2"
	}
	if c.Recognition.Timeout == 0 {
		c.Recognition.Timeout = 10
	}
	if c.Recognition.QueueSize == 0 {
		c.Recognition.QueueSize = 256
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = c.Backend.BaseURL
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = audio.SampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = audio.Channels
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = audio.FrameSamples
	}
	if c.Audio.RingFrames == 0 {
		c.Audio.RingFrames = 16
	}
	if c.Playback.QueueSize == 0 {
		c.Playback.QueueSize = 8
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates backend configuration
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	if b.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", b.MaxRetries)
	}

	if b.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", b.MaxConcurrent)
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", r.QueueSize)
	}

	return nil
}

// Validate validates chat configuration
func (c *ChatConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", c.Timeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != audio.SampleRate {
		return fmt.Errorf("sample_rate must be %d Hz, got %d", audio.SampleRate, a.SampleRate)
	}

	if a.Channels != audio.Channels {
		return fmt.Errorf("channels must be %d (mono), got %d", audio.Channels, a.Channels)
	}

	if a.FrameSize < 160 {
		return fmt.Errorf("frame_size must be at least 160 samples (10 ms), got %d", a.FrameSize)
	}

	if a.RingFrames < 1 {
		return fmt.Errorf("ring_frames must be at least 1, got %d", a.RingFrames)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", p.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the backend request timeout as a time.Duration
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetTimeoutDuration returns the session open timeout as a time.Duration
func (r *RecognitionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetTimeoutDuration returns the stream timeout as a time.Duration
func (c *ChatConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Redacted returns a copy safe to expose on the debug endpoint, with the
// secrets blanked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Backend.APIKey != "" {
		out.Backend.APIKey = "***"
	}
	if out.Recognition.APIKey != "" {
		out.Recognition.APIKey = "***"
	}
	return out
}
