// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// 認証プロバイダの種別。
const (
	AuthProviderFirebase = "firebase"
	AuthProviderLocal    = "local"
)

// セッションストアの種別。
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`

	// Logging
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// Auth provider
	AuthProvider            string `env:"AUTH_PROVIDER" envDefault:"firebase"`
	FirebaseAPIKey          string `env:"FIREBASE_API_KEY"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`

	// Session
	SessionStore           string        `env:"SESSION_STORE" envDefault:"postgres"`
	SessionMaxAge          time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SSEHeartbeatInterval   time.Duration `env:"SSE_HEARTBEAT_INTERVAL" envDefault:"25s"`

	// Storage
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Fact generation
	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	FactTimeout  time.Duration `env:"FACT_TIMEOUT" envDefault:"15s"`

	// Avatar proxy
	AvatarTimeout time.Duration `env:"AVATAR_TIMEOUT" envDefault:"5s"`
	AvatarMaxSize int64         `env:"AVATAR_MAX_SIZE" envDefault:"1048576"`

	// Rate Limit (req/min)
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"10"`
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`

	// Cookie
	CookieSecure bool   `env:"-"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数名をまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if missing := cfg.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.AuthProvider {
	case AuthProviderFirebase, AuthProviderLocal:
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q", cfg.AuthProvider)
	}
	switch cfg.SessionStore {
	case SessionStorePostgres, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE %q", cfg.SessionStore)
	}
	if err := cfg.validatePositive(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// NeedsDatabase はPostgreSQL接続が必要な構成かどうかを返す。
func (c *Config) NeedsDatabase() bool {
	return c.SessionStore == SessionStorePostgres || c.AuthProvider == AuthProviderLocal
}

// validatePositive は0以下を受け付けない期間・件数の設定を検証する。
func (c *Config) validatePositive() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SESSION_MAX_AGE", c.SessionMaxAge},
		{"SESSION_CLEANUP_INTERVAL", c.SessionCleanupInterval},
		{"SSE_HEARTBEAT_INTERVAL", c.SSEHeartbeatInterval},
		{"FACT_TIMEOUT", c.FactTimeout},
		{"AVATAR_TIMEOUT", c.AvatarTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	counts := []struct {
		name  string
		value int64
	}{
		{"AVATAR_MAX_SIZE", c.AvatarMaxSize},
		{"RATE_LIMIT_AUTH", int64(c.RateLimitAuth)},
		{"RATE_LIMIT_GENERAL", int64(c.RateLimitGeneral)},
	}
	for _, n := range counts {
		if n.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", n.name, n.value)
		}
	}
	return nil
}

func (c *Config) missing() []string {
	var missing []string

	if c.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.AuthProvider == AuthProviderFirebase {
		if c.FirebaseAPIKey == "" {
			missing = append(missing, "FIREBASE_API_KEY")
		}
		if c.FirebaseProjectID == "" {
			missing = append(missing, "FIREBASE_PROJECT_ID")
		}
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.SessionStore == SessionStoreRedis && c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}

	return missing
}
