// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	BaseURL             string // public origin used to build OAuth callback URLs
	FrontendURL         string
	DBPath              string
	LoginSessionTTL     time.Duration
	CreatorEmail        string
	MaxRequestBodyBytes int64
	Session             SessionConfig
	Completion          CompletionConfig
	OAuth               OAuthConfig
	RateLimit           RateLimitConfig
	EmbellishSeed       uint64
}

// SessionConfig controls the conversational session store.
type SessionConfig struct {
	Store         string
	TTL           time.Duration
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// CompletionConfig controls the upstream text-generation API.
type CompletionConfig struct {
	BaseURL               string
	APIKey                string
	Model                 string
	MaxTokens             int64
	Temperature           float64
	Timeout               time.Duration // 0 keeps the transport default
	SurfaceProviderErrors bool
}

// OAuthConfig holds provider credentials. A provider with an empty client id
// is not registered.
type OAuthConfig struct {
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftCallbackURL  string
	MicrosoftTenant       string
}

// RateLimitConfig controls per-client chat throttling. Zero requests disables it.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiKey := getEnv("COMPLETION_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GROQ_API_KEY", "")
	}

	cfg := &Config{
		Port:                getEnv("PORT", "3000"),
		BaseURL:             strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		DBPath:              getEnv("DB_PATH", "./data/aviya.db"),
		LoginSessionTTL:     getEnvDuration("LOGIN_SESSION_TTL", 30*24*time.Hour),
		CreatorEmail:        strings.TrimSpace(getEnv("CREATOR_EMAIL", "")),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 10<<20)),
		Session: SessionConfig{
			Store:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
			TTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
			MaxEntries:    getEnvInt("SESSION_MAX_ENTRIES", 10000),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Completion: CompletionConfig{
			BaseURL:               getEnv("COMPLETION_BASE_URL", "https://api.groq.com/openai/v1/"),
			APIKey:                apiKey,
			Model:                 getEnv("COMPLETION_MODEL", "llama-3.1-8b-instant"),
			MaxTokens:             int64(getEnvInt("COMPLETION_MAX_TOKENS", 180)),
			Temperature:           getEnvFloat("COMPLETION_TEMPERATURE", 0.7),
			Timeout:               getEnvDuration("COMPLETION_TIMEOUT", 0),
			SurfaceProviderErrors: getEnvBool("COMPLETION_SURFACE_PROVIDER_ERRORS", true),
		},
		OAuth: OAuthConfig{
			GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
			MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
			MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
			MicrosoftCallbackURL:  getEnv("MICROSOFT_CALLBACK_URL", ""),
			MicrosoftTenant:       getEnv("MICROSOFT_TENANT", "common"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		EmbellishSeed: getEnvUint64("EMBELLISH_SEED", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Session.Store {
	case SessionStoreMemory:
		if c.Session.MaxEntries <= 0 {
			return fmt.Errorf("SESSION_MAX_ENTRIES must be > 0")
		}
	case SessionStoreRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.LoginSessionTTL <= 0 {
		return fmt.Errorf("LOGIN_SESSION_TTL must be > 0")
	}
	if c.Completion.BaseURL == "" {
		return fmt.Errorf("COMPLETION_BASE_URL cannot be empty")
	}
	if c.Completion.Model == "" {
		return fmt.Errorf("COMPLETION_MODEL cannot be empty")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("COMPLETION_MAX_TOKENS must be > 0")
	}
	if c.Completion.Timeout < 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT cannot be negative")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow > 0 && c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0 when rate limiting is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	origin := c.BaseURL
	if origin == "" {
		origin = c.FrontendURL
	}
	return origin == "" ||
		strings.Contains(origin, "localhost") ||
		strings.Contains(origin, "127.0.0.1")
}

// CallbackURL returns the OAuth callback URL for a provider.
func (c *Config) CallbackURL(provider string) string {
	if provider == "microsoft" && c.OAuth.MicrosoftCallbackURL != "" {
		return c.OAuth.MicrosoftCallbackURL
	}
	base := c.BaseURL
	if base == "" {
		base = "http://localhost:" + c.Port
	}
	return base + "/auth/" + provider + "/callback"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvUint64 rejects negative values instead of wrapping them.
func getEnvUint64(key string, fallback uint64) uint64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "24h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
