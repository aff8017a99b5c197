package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Token
	SigningSecret    string
	SigningAlgorithm string
	TokenLifetime    time.Duration
	AllowAnonymous   bool

	// Quota
	FreeTierLimit int

	// Job
	MaxTextLength int

	// Provider
	ProviderURL          string
	ProviderAPIKey       string
	ProviderTimeout      time.Duration
	ProviderMaxAttempts  int
	ProviderRetryBackoff time.Duration
	TaskMaxConcurrent    int

	// Database（未設定の場合はインメモリストアを使用）
	DatabaseURL string

	// Rate Limit（req/hour/identity）
	RateLimitGeneral int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SigningSecret = os.Getenv("JWT_SECRET_KEY")
	if cfg.SigningSecret == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SigningAlgorithm = getEnvString("JWT_ALGORITHM", "HS256")
	cfg.TokenLifetime = time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute
	cfg.AllowAnonymous = getEnvBool("ALLOW_ANONYMOUS", false)
	cfg.FreeTierLimit = getEnvInt("FREE_TIER_LIMIT", 10)
	cfg.MaxTextLength = getEnvInt("MAX_TEXT_LENGTH", 10000)
	cfg.ProviderURL = getEnvString("PROVIDER_URL", "")
	cfg.ProviderAPIKey = getEnvString("PROVIDER_API_KEY", "")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 5*time.Minute)
	cfg.ProviderMaxAttempts = getEnvInt("PROVIDER_MAX_ATTEMPTS", 3)
	cfg.ProviderRetryBackoff = getEnvDuration("PROVIDER_RETRY_BACKOFF", 5*time.Second)
	cfg.TaskMaxConcurrent = getEnvInt("TASK_MAX_CONCURRENT", 4)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 100)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.TokenLifetime <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if cfg.ProviderMaxAttempts < 1 {
		return nil, fmt.Errorf("PROVIDER_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
