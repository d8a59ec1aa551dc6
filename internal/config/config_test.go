package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("HOLD_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.HoldTTL != 15*time.Minute {
		t.Fatalf("expected default hold TTL, got %s", cfg.HoldTTL)
	}
	if cfg.SlotWindowDays != 14 {
		t.Fatalf("expected default slot window, got %d", cfg.SlotWindowDays)
	}
	if cfg.SlotLeadTime != 5*time.Minute {
		t.Fatalf("expected default slot lead time, got %s", cfg.SlotLeadTime)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("HOLD_TTL", "10m")
	t.Setenv("SLOT_WINDOW_DAYS", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://runcall.app, https://staging.runcall.app")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.HoldTTL != 10*time.Minute {
		t.Fatalf("expected hold TTL override, got %s", cfg.HoldTTL)
	}
	if cfg.SlotWindowDays != 7 {
		t.Fatalf("expected slot window override, got %d", cfg.SlotWindowDays)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://staging.runcall.app" {
		t.Fatalf("expected trimmed origin list, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("CONFIRM_LOCK_TTL", "not-a-duration")
	cfg := Load()
	if cfg.ConfirmLockTTL != 30*time.Second {
		t.Fatalf("expected fallback lock TTL, got %s", cfg.ConfirmLockTTL)
	}
}
