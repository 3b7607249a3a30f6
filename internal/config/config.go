package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins []string

	// Messages a user may post per minute. Zero disables the limit.
	RateLimitMessages int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "./data/collabsphere.db"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TokenTTL:          getDuration("TOKEN_TTL", 24*time.Hour),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimitMessages: getInt("RATE_LIMIT_MESSAGES", 30),
	}

	if cfg.Env == "production" && cfg.JWTSecret == "" {
		panic("JWT_SECRET is required in production")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "collabsphere-dev-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Client holds configuration for the collab command line client.
type Client struct {
	BaseURL   string
	LiveURL   string
	ConfigDir string
	LogLevel  string

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	ReconnectGiveUp  time.Duration
}

// LoadClient reads the client configuration from the environment.
func LoadClient() *Client {
	_ = godotenv.Load()

	c := &Client{
		BaseURL:          strings.TrimRight(getEnv("COLLAB_URL", "http://localhost:8080"), "/"),
		LiveURL:          os.Getenv("COLLAB_WS_URL"),
		ConfigDir:        os.Getenv("COLLAB_CONFIG"),
		LogLevel:         getEnv("COLLAB_LOG_LEVEL", "warn"),
		ReconnectInitial: getDuration("COLLAB_RECONNECT_INITIAL", time.Second),
		ReconnectMax:     getDuration("COLLAB_RECONNECT_MAX", 30*time.Second),
		ReconnectGiveUp:  getDuration("COLLAB_RECONNECT_GIVEUP", 15*time.Minute),
	}

	if c.LiveURL == "" {
		c.LiveURL = liveURL(c.BaseURL)
	}
	if c.ConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.ConfigDir = filepath.Join(home, ".collabsphere")
		}
	}
	return c
}

// liveURL derives the WebSocket endpoint from the REST base URL.
func liveURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
