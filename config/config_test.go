package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port=%q, want 8080", cfg.Port)
	}
	if cfg.AuthEnabled() {
		t.Fatalf("expected auth disabled without JWT_SECRET")
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected redis disabled by default")
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("Redis.Addr()=%q", cfg.Redis.Addr())
	}
	if cfg.Redis.PresenceTTL != 24*time.Hour {
		t.Fatalf("PresenceTTL=%s", cfg.Redis.PresenceTTL)
	}
	if cfg.Session.SendBufferSize != 256 || cfg.Session.MaxMessageSize != 64*1024 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.ExclusiveRooms {
		t.Fatalf("expected multi-room membership by default")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if w := cfg.Validate(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %v", w)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PRESENCE_TTL", "90m")
	t.Setenv("EXCLUSIVE_ROOMS", "1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MESSAGES_PER_SECOND", "7")

	cfg := Load()

	if cfg.Port != "9000" || !cfg.AuthEnabled() {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if got := cfg.AllowedOrigins; len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins=%v", got)
	}
	if !cfg.Redis.Enabled || cfg.Redis.DB != 3 || cfg.Redis.PresenceTTL != 90*time.Minute {
		t.Fatalf("unexpected redis cfg: %+v", cfg.Redis)
	}
	if !cfg.ExclusiveRooms {
		t.Fatalf("expected EXCLUSIVE_ROOMS=1 to enable exclusive rooms")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel=%s", cfg.LogLevel)
	}
	if cfg.Session.MessagesPerSecond != 7 {
		t.Fatalf("MessagesPerSecond=%d", cfg.Session.MessagesPerSecond)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	t.Setenv("PRESENCE_TTL", "-1s")
	t.Setenv("EXCLUSIVE_ROOMS", "maybe")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("SEND_BUFFER_SIZE", "0")

	cfg := Load()

	if cfg.Redis.DB != 0 || cfg.Redis.PresenceTTL != 24*time.Hour || cfg.ExclusiveRooms {
		t.Fatalf("expected defaults, got %+v exclusive=%t", cfg.Redis, cfg.ExclusiveRooms)
	}
	warnings := cfg.Validate()
	if len(warnings) != 5 {
		t.Fatalf("expected 5 warnings, got %d: %v", len(warnings), warnings)
	}
	if cfg.Session.SendBufferSize != 256 {
		t.Fatalf("SendBufferSize=%d, want 256 after Validate", cfg.Session.SendBufferSize)
	}
}
