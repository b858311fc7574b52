package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("VOICE_MEDIUM", "")
	t.Setenv("STAGE_TEMPERATURE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("EMAIL_PROVIDER", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StageVoice != "Jessica" {
		t.Fatalf("expected default stage voice, got %s", cfg.StageVoice)
	}
	if cfg.StageTemperature != 0.3 {
		t.Fatalf("expected default temperature 0.3, got %v", cfg.StageTemperature)
	}
	if cfg.SlotToolID != "b12be5dc-46c7-41bc-be10-ef2eee906df8" {
		t.Fatalf("unexpected slot tool id %s", cfg.SlotToolID)
	}
	if cfg.UsesServerVoiceLink() {
		t.Fatalf("expected browser medium by default")
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected default origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "log" {
		t.Fatalf("expected log email provider by default, got %s", cfg.EmailProvider)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("expected default shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VOICE_MEDIUM", "SERVER_WEBSOCKET")
	t.Setenv("STAGE_TEMPERATURE", "0.7")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("APPOINTMENTS_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("EMAIL_PROVIDER", "SES")
	cfg := Load()
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected lower-cased email provider, got %s", cfg.EmailProvider)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.UsesServerVoiceLink() {
		t.Fatalf("expected server voice link, got %s", cfg.VoiceMedium)
	}
	if cfg.StageTemperature != 0.7 {
		t.Fatalf("expected temperature override, got %v", cfg.StageTemperature)
	}
	if cfg.RateLimitBurst != 5 {
		t.Fatalf("expected burst override, got %d", cfg.RateLimitBurst)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.AppointmentsTimeout != 3*time.Second {
		t.Fatalf("expected appointments timeout override, got %s", cfg.AppointmentsTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("STAGE_TEMPERATURE", "warm")
	t.Setenv("RATE_LIMIT_RPS", "fast")
	cfg := Load()
	if cfg.StageTemperature != 0.3 {
		t.Fatalf("expected fallback temperature, got %v", cfg.StageTemperature)
	}
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("expected fallback rps, got %v", cfg.RateLimitRPS)
	}
}
