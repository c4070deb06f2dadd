package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wngkj/RoleVerse/internal/audio"
	"github.com/wngkj/RoleVerse/internal/chat"
	"github.com/wngkj/RoleVerse/internal/config"
	"github.com/wngkj/RoleVerse/internal/conversation"
	"github.com/wngkj/RoleVerse/internal/metrics"
	"github.com/wngkj/RoleVerse/internal/playback"
	"github.com/wngkj/RoleVerse/internal/recognition"
	"github.com/wngkj/RoleVerse/internal/server"
	"github.com/wngkj/RoleVerse/internal/voice"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "roleverse-voicechat"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	characterID := flag.String("character", "", "Character to talk to (required)")
	voiceName := flag.String("voice", "", "Synthesis voice (default: the character's own)")
	noPlayback := flag.Bool("no-playback", false, "Disable synthesized audio playback")
	flag.Parse()

	if *voiceName != "" && !conversation.ValidVoice(*voiceName) {
		fmt.Fprintf(os.Stderr, "Unknown voice %q, available: %s\n", *voiceName, strings.Join(conversation.Voices, ", "))
		os.Exit(1)
	}

	// Secrets may live in a .env next to the binary; missing file is fine.
	_ = godotenv.Load()

	if *characterID == "" {
		fmt.Fprintln(os.Stderr, "Usage: voicechat -character <id> [-config path]")
		os.Exit(1)
	}

	// Load configuration; fall back to defaults when no file exists.
	var cfg *config.Config
	if _, err := os.Stat(*configPath); err == nil {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}
	applyEnvOverrides(cfg)

	logger := initLogger(cfg.Logging)

	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("character_id", *characterID),
	)
	logger.Info("Configuration loaded",
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_size", cfg.Audio.FrameSize),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Backend REST client: conversation list + character lookup
	backend, err := conversation.NewClient(conversation.ClientConfig{
		BaseURL:       cfg.Backend.BaseURL,
		APIKey:        cfg.Backend.APIKey,
		Timeout:       cfg.Backend.GetTimeoutDuration(),
		MaxRetries:    cfg.Backend.MaxRetries,
		MaxConcurrent: cfg.Backend.MaxConcurrent,
		Metrics:       appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create backend client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	character, err := backend.GetCharacter(ctx, *characterID)
	if err != nil {
		logger.Error("Character lookup failed",
			slog.String("character_id", *characterID),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Printf("Talking to %s. %s\n", character.Name, character.Description)

	synthVoice := *voiceName
	if synthVoice == "" {
		synthVoice = character.Voice
	}
	if synthVoice == "" {
		synthVoice = conversation.DefaultVoice
	}

	reconciler := conversation.NewReconciler(*characterID, backend, func(list []conversation.Summary) {
		logger.Debug("conversation list refreshed", slog.Int("count", len(list)))
	}, logger)

	// Streaming chat client
	chatClient, err := chat.NewClient(chat.ClientConfig{
		BaseURL: cfg.Chat.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Voice:   synthVoice,
		Timeout: cfg.Chat.GetTimeoutDuration(),
		Logger:  logger,
		Metrics: appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create chat client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Speech recognition websocket client
	recognizer := recognition.NewWSService(recognition.WSConfig{
		URL:              cfg.Recognition.Endpoint,
		APIKey:           cfg.Recognition.APIKey,
		HandshakeTimeout: cfg.Recognition.GetTimeoutDuration(),
		Logger:           logger,
	})

	// Capture and playback devices
	source := audio.NewPortAudioSource(audio.CaptureConfig{
		SampleRate:   cfg.Audio.SampleRate,
		RingCapacity: cfg.Audio.RingFrames * cfg.Audio.FrameSize,
		OnDrop: func(dropped int) {
			appMetrics.SamplesDropped.Add(float64(dropped))
		},
	}, logger)

	var queue *playback.Queue
	var player voice.Player
	if cfg.Playback.Enabled && !*noPlayback {
		queue = playback.NewQueue(playback.NewPortAudioPlayer(), cfg.Playback.QueueSize, logger, appMetrics)
		player = queue
		logger.Info("Playback enabled", slog.Int("queue_size", cfg.Playback.QueueSize))
	}

	controller := voice.NewController(voice.Config{
		CharacterID: *characterID,
		Recognition: recognition.SessionConfig{
			Model:      cfg.Recognition.Model,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		},
		FrameSize: cfg.Audio.FrameSize,
		QueueSize: cfg.Recognition.QueueSize,
		OnAssistantText: func(fragment string) {
			fmt.Print(fragment)
		},
		Logger:  logger,
		Metrics: appMetrics,
	}, source, recognizer, chatClient, reconciler, player)

	// Monitoring HTTP server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, controller, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Shut down cleanly on interrupt.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	fmt.Println("Commands: :rec start recording, :stop stop and send, :quit exit.")
	fmt.Println("Any other line is sent as a text message.")

	runREPL(ctx, controller, logger)

	logger.Info("Starting graceful shutdown...")
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}
	if err := controller.Close(); err != nil {
		logger.Error("Error closing controller", slog.String("error", err.Error()))
	}
	if queue != nil {
		queue.Close()
	}

	info := controller.Snapshot()
	logger.Info("Final client statistics",
		slog.Uint64("turns_started", info.TurnsStarted),
		slog.Uint64("turns_silent", info.TurnsSilent),
	)
	logger.Info("Client stopped")
}

// runREPL reads commands from stdin until :quit, EOF or cancellation.
func runREPL(ctx context.Context, controller *voice.Controller, logger *slog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
			case ":quit", ":q":
				return
			case ":rec":
				if err := controller.StartVoiceTurn(ctx); err != nil {
					fmt.Printf("cannot start recording: %v\n", err)
					continue
				}
				fmt.Println("recording... type :stop to send")
			case ":stop":
				turn, err := controller.StopVoiceTurn(ctx)
				if err != nil {
					fmt.Printf("recording failed: %v\n", err)
					continue
				}
				if turn == nil {
					fmt.Println("(nothing heard)")
					continue
				}
				fmt.Printf("\nyou said: %s\n", turn.UserUtterance())
				fmt.Println()
			default:
				turn, err := controller.SendText(ctx, line)
				if err != nil {
					fmt.Printf("send failed: %v\n", err)
					continue
				}
				if turn.Status() != conversation.TurnCompleted {
					logger.Warn("turn did not complete", slog.String("status", turn.Status().String()))
				}
				fmt.Println()
			}
		}
	}
}

// applyEnvOverrides lets the .env overlay supply the secrets and endpoints
// without touching the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("ROLEVERSE_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
		if os.Getenv("ROLEVERSE_CHAT_URL") == "" {
			cfg.Chat.BaseURL = v
		}
	}
	if v := os.Getenv("ROLEVERSE_CHAT_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("ROLEVERSE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("ROLEVERSE_RECOGNITION_URL"); v != "" {
		cfg.Recognition.Endpoint = v
	}
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.Recognition.APIKey = v
	}
}

// initLogger creates the structured logger from configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
