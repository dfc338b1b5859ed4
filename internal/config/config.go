package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice client
type Config struct {
	// Server configuration (health and metrics endpoints)
	Port string `envconfig:"PORT" default:"8080"`

	// Gemini Live API configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveModel    string `envconfig:"LIVE_MODEL" default:"gemini-2.0-flash-live-001"`
	LiveBaseURL  string `envconfig:"LIVE_BASE_URL" default:"wss://generativelanguage.googleapis.com"`
	Voice        string `envconfig:"VOICE" default:"Aoede"` // Prebuilt voice name for live responses
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:""`

	// Text chat endpoint (non-live fallback path)
	ChatBaseURL string `envconfig:"CHAT_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	ChatModel   string `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`

	// Narration synthesis endpoint
	SynthesisBaseURL string `envconfig:"SYNTHESIS_BASE_URL" default:"https://texttospeech.googleapis.com"`

	// Audio processing configuration
	CaptureFrameSize    int `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"`     // Samples per microphone frame
	NarrationDebounceMs int `envconfig:"NARRATION_DEBOUNCE_MS" default:"1000"`  // Quiet period before fetching narration
	TurnCompleteGraceMs int `envconfig:"TURN_COMPLETE_GRACE_MS" default:"500"`  // Grace before accepting audio after an interrupt
	SchedulerStaleGapMs int `envconfig:"SCHEDULER_STALE_GAP_MS" default:"500"`  // Idle gap before the playback cursor resets
	NarrationCacheSize  int `envconfig:"NARRATION_CACHE_SIZE" default:"64"`     // Decoded narration clips kept in memory

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum dial attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Dial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.CaptureFrameSize <= 0 {
		return nil, fmt.Errorf("CAPTURE_FRAME_SIZE must be positive, got %d", cfg.CaptureFrameSize)
	}
	if cfg.NarrationCacheSize <= 0 {
		return nil, fmt.Errorf("NARRATION_CACHE_SIZE must be positive, got %d", cfg.NarrationCacheSize)
	}

	return &cfg, nil
}

// NarrationDebounce returns the narration debounce window as a duration.
func (c *Config) NarrationDebounce() time.Duration {
	return time.Duration(c.NarrationDebounceMs) * time.Millisecond
}

// TurnCompleteGrace returns the post-interrupt grace window as a duration.
func (c *Config) TurnCompleteGrace() time.Duration {
	return time.Duration(c.TurnCompleteGraceMs) * time.Millisecond
}

// SchedulerStaleGap returns the playback cursor reset gap as a duration.
func (c *Config) SchedulerStaleGap() time.Duration {
	return time.Duration(c.SchedulerStaleGapMs) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
