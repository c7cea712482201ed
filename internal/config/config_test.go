package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "APP_ENV", "FLASK_ENV", "DATABASE_URL", "LLM_PROVIDER", "GROQ_API_KEY", "LLM_API_KEY",
		"CACHE_TTL_SECONDS", "MEMORY_WINDOW", "JWT_EXPIRES_IN", "RATE_LIMIT_REQUESTS", "SMTP_HOST",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":5000" || cfg.Server.Development {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Database.Postgres() || cfg.Database.Path != "./chatbot.db" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.AI.Provider != ProviderOpenAI || cfg.AI.Enabled() {
		t.Fatalf("expected openai provider without credentials, got %+v", cfg.AI)
	}
	if cfg.AI.CacheTTL != time.Hour || cfg.AI.MemoryWindow != 10 || cfg.AI.TopP != 0.9 {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	if !cfg.AI.EnableCache || !cfg.AI.EnableTaskDetection || !cfg.AI.EnableSentiment || !cfg.AI.EnableMemory {
		t.Fatalf("expected feature flags on by default: %+v", cfg.AI)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	if cfg.RateLimit.Requests != 60 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Mail.Enabled() || cfg.Vision.Enabled {
		t.Fatal("expected mail and vision disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("FLASK_ENV", "development")
	t.Setenv("DATABASE_URL", "postgresql://u:p@localhost/db")
	t.Setenv("GROQ_API_KEY", "gsk")
	t.Setenv("LLM_ENABLE_CACHE", "false")
	t.Setenv("CACHE_TTL_SECONDS", "30")
	t.Setenv("MEMORY_WINDOW", "0")
	t.Setenv("JWT_EXPIRES_IN", "24h")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "bot@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || !cfg.Server.Development {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if !cfg.Database.Postgres() {
		t.Fatal("expected postgres database")
	}
	if !cfg.AI.Enabled() || cfg.AI.EnableCache || cfg.AI.CacheTTL != 30*time.Second || cfg.AI.MemoryWindow != 1 {
		t.Fatalf("unexpected ai config: %+v", cfg.AI)
	}
	if !cfg.Vision.Enabled {
		t.Fatal("expected vision to follow the api key")
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	if !cfg.Mail.Enabled() || cfg.Mail.Sender != "bot@example.com" || !cfg.Mail.Development {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":             "80 80",
		"LLM_PROVIDER":     "bedrock",
		"LLM_ENABLE_CACHE": "maybe",
		"LLM_TOP_P":        "high",
		"JWT_EXPIRES_IN":   "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
			if key != "PORT" && !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error to name %s, got %v", key, err)
			}
		})
	}
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]time.Duration{
		"7d":   7 * 24 * time.Hour,
		"24h":  24 * time.Hour,
		"15m":  15 * time.Minute,
		"3600": time.Hour,
		"90s":  90 * time.Second,
	}
	for raw, want := range cases {
		got, err := ParseExpiry(raw)
		if err != nil || got != want {
			t.Fatalf("ParseExpiry(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}
	for _, raw := range []string{"", "d", "-1h", "0"} {
		if _, err := ParseExpiry(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
