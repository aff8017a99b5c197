package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv は設定が参照する環境変数をすべて未設定にする。
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"JWT_SECRET_KEY", "JWT_ALGORITHM", "ACCESS_TOKEN_EXPIRE_MINUTES",
		"ALLOW_ANONYMOUS", "FREE_TIER_LIMIT", "MAX_TEXT_LENGTH",
		"PROVIDER_URL", "PROVIDER_API_KEY", "PROVIDER_TIMEOUT",
		"PROVIDER_MAX_ATTEMPTS", "PROVIDER_RETRY_BACKOFF", "TASK_MAX_CONCURRENT",
		"DATABASE_URL", "RATE_LIMIT_GENERAL", "SERVER_PORT", "CORS_ALLOWED_ORIGIN",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingSecretIsError(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded without JWT_SECRET_KEY")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET_KEY") {
		t.Errorf("error = %q, want mention of JWT_SECRET_KEY", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SigningAlgorithm != "HS256" {
		t.Errorf("SigningAlgorithm = %q, want HS256", cfg.SigningAlgorithm)
	}
	if cfg.TokenLifetime != 30*time.Minute {
		t.Errorf("TokenLifetime = %v, want 30m", cfg.TokenLifetime)
	}
	if cfg.AllowAnonymous {
		t.Error("AllowAnonymous = true, want false")
	}
	if cfg.FreeTierLimit != 10 {
		t.Errorf("FreeTierLimit = %d, want 10", cfg.FreeTierLimit)
	}
	if cfg.MaxTextLength != 10000 {
		t.Errorf("MaxTextLength = %d, want 10000", cfg.MaxTextLength)
	}
	if cfg.ProviderTimeout != 5*time.Minute {
		t.Errorf("ProviderTimeout = %v, want 5m", cfg.ProviderTimeout)
	}
	if cfg.ProviderMaxAttempts != 3 {
		t.Errorf("ProviderMaxAttempts = %d, want 3", cfg.ProviderMaxAttempts)
	}
	if cfg.ProviderRetryBackoff != 5*time.Second {
		t.Errorf("ProviderRetryBackoff = %v, want 5s", cfg.ProviderRetryBackoff)
	}
	if cfg.TaskMaxConcurrent != 4 {
		t.Errorf("TaskMaxConcurrent = %d, want 4", cfg.TaskMaxConcurrent)
	}
	if cfg.RateLimitGeneral != 100 {
		t.Errorf("RateLimitGeneral = %d, want 100", cfg.RateLimitGeneral)
	}
	if cfg.ServerPort != "8000" {
		t.Errorf("ServerPort = %q, want 8000", cfg.ServerPort)
	}
	if cfg.CORSAllowedOrigin != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigin = %q", cfg.CORSAllowedOrigin)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "60")
	t.Setenv("ALLOW_ANONYMOUS", "true")
	t.Setenv("FREE_TIER_LIMIT", "5")
	t.Setenv("PROVIDER_URL", "https://provider.example.com")
	t.Setenv("PROVIDER_TIMEOUT", "30s")
	t.Setenv("TASK_MAX_CONCURRENT", "8")
	t.Setenv("DATABASE_URL", "postgres://localhost/textcheck")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SigningAlgorithm != "HS512" {
		t.Errorf("SigningAlgorithm = %q, want HS512", cfg.SigningAlgorithm)
	}
	if cfg.TokenLifetime != time.Hour {
		t.Errorf("TokenLifetime = %v, want 1h", cfg.TokenLifetime)
	}
	if !cfg.AllowAnonymous {
		t.Error("AllowAnonymous = false, want true")
	}
	if cfg.FreeTierLimit != 5 {
		t.Errorf("FreeTierLimit = %d, want 5", cfg.FreeTierLimit)
	}
	if cfg.ProviderURL != "https://provider.example.com" {
		t.Errorf("ProviderURL = %q", cfg.ProviderURL)
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Errorf("ProviderTimeout = %v, want 30s", cfg.ProviderTimeout)
	}
	if cfg.TaskMaxConcurrent != 8 {
		t.Errorf("TaskMaxConcurrent = %d, want 8", cfg.TaskMaxConcurrent)
	}
	if cfg.DatabaseURL != "postgres://localhost/textcheck" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("FREE_TIER_LIMIT", "not-a-number")
	t.Setenv("ALLOW_ANONYMOUS", "maybe")
	t.Setenv("PROVIDER_TIMEOUT", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.FreeTierLimit != 10 {
		t.Errorf("FreeTierLimit = %d, want default 10", cfg.FreeTierLimit)
	}
	if cfg.AllowAnonymous {
		t.Error("AllowAnonymous = true, want default false")
	}
	if cfg.ProviderTimeout != 5*time.Minute {
		t.Errorf("ProviderTimeout = %v, want default 5m", cfg.ProviderTimeout)
	}
}

func TestLoad_NonPositiveLifetimeIsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded with zero token lifetime")
	}
}

func TestLoad_ZeroAttemptsIsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("PROVIDER_MAX_ATTEMPTS", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded with zero provider attempts")
	}
}
