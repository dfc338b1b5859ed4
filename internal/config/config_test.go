package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("GEMINI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.LiveModel != "gemini-2.0-flash-live-001" {
		t.Errorf("Expected default LiveModel 'gemini-2.0-flash-live-001', got '%s'", cfg.LiveModel)
	}

	if cfg.Voice != "Aoede" {
		t.Errorf("Expected default Voice 'Aoede', got '%s'", cfg.Voice)
	}

	if cfg.CaptureFrameSize != 4096 {
		t.Errorf("Expected default CaptureFrameSize 4096, got %d", cfg.CaptureFrameSize)
	}

	if cfg.NarrationDebounceMs != 1000 {
		t.Errorf("Expected default NarrationDebounceMs 1000, got %d", cfg.NarrationDebounceMs)
	}

	if cfg.TurnCompleteGraceMs != 500 {
		t.Errorf("Expected default TurnCompleteGraceMs 500, got %d", cfg.TurnCompleteGraceMs)
	}

	if cfg.SchedulerStaleGapMs != 500 {
		t.Errorf("Expected default SchedulerStaleGapMs 500, got %d", cfg.SchedulerStaleGapMs)
	}

	if cfg.NarrationCacheSize != 64 {
		t.Errorf("Expected default NarrationCacheSize 64, got %d", cfg.NarrationCacheSize)
	}
}

func TestLoad_InvalidFrameSize(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Setenv("CAPTURE_FRAME_SIZE", "0")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("CAPTURE_FRAME_SIZE")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for zero CAPTURE_FRAME_SIZE")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := &Config{
		NarrationDebounceMs: 1000,
		TurnCompleteGraceMs: 500,
		SchedulerStaleGapMs: 250,
	}

	if cfg.NarrationDebounce() != time.Second {
		t.Errorf("Expected NarrationDebounce 1s, got %v", cfg.NarrationDebounce())
	}

	if cfg.TurnCompleteGrace() != 500*time.Millisecond {
		t.Errorf("Expected TurnCompleteGrace 500ms, got %v", cfg.TurnCompleteGrace())
	}

	if cfg.SchedulerStaleGap() != 250*time.Millisecond {
		t.Errorf("Expected SchedulerStaleGap 250ms, got %v", cfg.SchedulerStaleGap())
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
