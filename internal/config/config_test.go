package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoad_DevModeDefaults(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("UPSTREAM_URL", "ws://localhost:9000/stream")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("API_KEY", "")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.VoiceID != "matthew" {
		t.Errorf("Expected default voice matthew, got %s", cfg.VoiceID)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("Expected default idle timeout 5m, got %v", cfg.IdleTimeout)
	}
	if cfg.StrictToolFailures {
		t.Error("Strict tool failures should default to off")
	}
	if !cfg.EnableSpeechDetection {
		t.Error("Speech detection should default to on")
	}
}

func TestLoad_RequiresUpstreamURL(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("UPSTREAM_URL", "")

	if _, err := Load(zap.NewNop()); err == nil {
		t.Error("Expected error without UPSTREAM_URL")
	}
}

func TestLoad_RequiresSecretsOutsideDevMode(t *testing.T) {
	t.Setenv("DEV_MODE", "false")
	t.Setenv("UPSTREAM_URL", "ws://localhost:9000/stream")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("API_KEY", "")

	if _, err := Load(zap.NewNop()); err == nil {
		t.Error("Expected error without JWT_SECRET outside dev mode")
	}

	t.Setenv("JWT_SECRET", "s")
	if _, err := Load(zap.NewNop()); err == nil {
		t.Error("Expected error without API_KEY outside dev mode")
	}

	t.Setenv("API_KEY", "k")
	if _, err := Load(zap.NewNop()); err != nil {
		t.Errorf("Unexpected error with full config: %v", err)
	}
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("UPSTREAM_URL", "ws://localhost:9000/stream")
	t.Setenv("IDLE_TIMEOUT", "90s")
	t.Setenv("MAX_TOKENS", "2048")
	t.Setenv("TOP_P", "0.5")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Errorf("Expected 90s idle timeout, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxTokens != 2048 {
		t.Errorf("Expected 2048 max tokens, got %d", cfg.MaxTokens)
	}
	if cfg.TopP != 0.5 {
		t.Errorf("Expected topP 0.5, got %f", cfg.TopP)
	}
}
