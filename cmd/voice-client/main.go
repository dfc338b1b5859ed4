package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonavox/voice-client/internal/audio"
	"github.com/sonavox/voice-client/internal/capture"
	"github.com/sonavox/voice-client/internal/chat"
	"github.com/sonavox/voice-client/internal/config"
	"github.com/sonavox/voice-client/internal/device"
	"github.com/sonavox/voice-client/internal/live"
	"github.com/sonavox/voice-client/internal/narration"
	"github.com/sonavox/voice-client/internal/observability"
	"github.com/sonavox/voice-client/internal/playback"
	"github.com/sonavox/voice-client/internal/resilience"
	"github.com/sonavox/voice-client/internal/synthesis"
)

func main() {
	sayText := flag.String("say", "", "Narrate the given text instead of starting a live session")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("live_model", cfg.LiveModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice client starting")

	if err := device.Initialize(); err != nil {
		logger.Fatal().Err(err).Msg("Audio device initialization failed")
	}
	defer device.Terminate()

	speaker, err := device.OpenSpeaker()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open output device")
	}
	defer speaker.Close()

	synthBreaker := resilience.NewCircuitBreaker(
		"synthesis",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	synthClient := synthesis.NewClient(cfg.GeminiAPIKey, cfg.SynthesisBaseURL, cfg.Voice, synthBreaker)

	if *sayText != "" {
		runNarration(cfg, speaker, synthClient, *sayText)
		return
	}

	runLiveSession(cfg, speaker, synthClient)
}

// runNarration exercises the narration path: synthesize the text,
// cache it, and play it through the single-clip player.
func runNarration(cfg *config.Config, speaker *device.Speaker, synthClient *synthesis.Client, text string) {
	logger := observability.GetLogger()

	cache, err := narration.NewLRUCache(cfg.NarrationCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create narration cache")
	}

	player := playback.NewPlayer(speaker)
	done := make(chan struct{})
	player.SetCallbacks(nil, func() { close(done) })

	loader := narration.NewLoader(synthClient.Synthesize, cache, cfg.NarrationDebounce(), narration.Callbacks{
		OnLoading: func(chunk narration.Chunk) {
			logger.Info().Int("chunk_id", chunk.ID).Msg("Fetching narration")
		},
		OnReady: func(chunk narration.Chunk, buf *audio.DecodedAudio, autoplay bool) {
			logger.Info().Dur("duration", buf.Duration()).Msg("Narration ready")
			if err := player.Play(buf); err != nil {
				logger.Fatal().Err(err).Msg("Playback failed")
			}
		},
		OnError: func(chunk narration.Chunk, err error) {
			logger.Fatal().Err(err).Msg("Narration failed")
		},
	})
	defer loader.Close()

	loader.SetPlayIntent(true)
	loader.ChunkChanged(narration.Chunk{ID: 1, Text: text})

	select {
	case <-done:
		logger.Info().Msg("Narration finished")
	case <-time.After(5 * time.Minute):
		logger.Error().Msg("Narration timed out")
	}
}

// runLiveSession starts a bidirectional voice conversation and serves
// health and metrics endpoints until interrupted.
func runLiveSession(cfg *config.Config, speaker *device.Speaker, synthClient *synthesis.Client) {
	logger := observability.GetLogger()

	scheduler := playback.NewScheduler(speaker, playback.WithStaleGap(cfg.SchedulerStaleGap()))
	player := playback.NewPlayer(speaker)

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	chatClient := chat.NewClient(cfg.GeminiAPIKey, cfg.ChatBaseURL, cfg.ChatModel, retryConfig)

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
	transport := live.NewGeminiTransport(cfg.GeminiAPIKey, cfg.LiveBaseURL, reconnectConfig)

	session := live.NewSession(live.SessionOptions{
		Transport: transport,
		Scheduler: scheduler,
		CaptureFactory: func(send func(string) error) (live.CapturePipeline, error) {
			mic, err := device.OpenMicrophone(cfg.CaptureFrameSize)
			if err != nil {
				return nil, fmt.Errorf("open input device: %w", err)
			}
			return capture.NewPipeline(mic, send, nil, cfg.CaptureFrameSize), nil
		},
		Chat: chatClient.Send,
		Speak: func(ctx context.Context, text string) (*audio.DecodedAudio, error) {
			encoded, err := synthClient.Synthesize(ctx, text)
			if err != nil {
				return nil, err
			}
			return audio.Decode(encoded, audio.PlaybackSampleRate)
		},
		Player: player,
		Grace:  cfg.TurnCompleteGrace(),
		OnStateChange: func(state live.State) {
			logger.Info().Str("state", string(state)).Msg("Session state changed")
		},
	})

	// Health and metrics endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"session": func(ctx context.Context) (bool, error) {
			state := session.State()
			return state == live.StateListening || state == live.StateSpeaking, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), time.Minute)
	err := session.Connect(connectCtx, live.SessionConfig{
		Model:        cfg.LiveModel,
		SystemPrompt: cfg.SystemPrompt,
		Voice:        cfg.Voice,
	})
	cancelConnect()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open live session")
	}

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	if err := session.Close(); err != nil {
		logger.Error().Err(err).Msg("Session close failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Voice client exited gracefully")
}
