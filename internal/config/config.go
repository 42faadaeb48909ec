package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the AdsConnect server.
// It is resolved once at process start and injected into components.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Amazon    AmazonConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string

	// WriteTimeout fits a token refresh plus a few profiles; larger campaign
	// syncs belong on the task queue.
	WriteTimeout time.Duration
}

// writeMargin is the time left after an inline handler's deadline to write
// its response before WriteTimeout closes the connection.
const writeMargin = 5 * time.Second

// HandlerTimeout is the deadline for handlers that call Amazon inline.
func (c ServerConfig) HandlerTimeout() time.Duration {
	return c.WriteTimeout - writeMargin
}

type LogConfig struct {
	Level string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// IdentityConfig configures verification of identity-provider session tokens.
type IdentityConfig struct {
	JWTSecret    string
	ServiceToken string
}

type AmazonConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scope        string
	Timeout      time.Duration
	MaxRetries   int
}

// CallBudget is the longest one Advertising API call can take with retries.
func (c AmazonConfig) CallBudget() time.Duration {
	return time.Duration(c.MaxRetries+1) * c.Timeout
}

// HasClientCredentials reports whether the client id and secret are both set.
func (c AmazonConfig) HasClientCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type SyncConfig struct {
	UpsertConcurrency int
	MaxAttempts       int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("ADSCONNECT_PORT", 8080),
			Env:          envString("ADSCONNECT_ENV", "development"),
			WriteTimeout: envDuration("ADSCONNECT_WRITE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Identity: IdentityConfig{
			JWTSecret:    os.Getenv("SESSION_JWT_SECRET"),
			ServiceToken: os.Getenv("SERVICE_TOKEN"),
		},
		Amazon: AmazonConfig{
			ClientID:     os.Getenv("AMAZON_CLIENT_ID"),
			ClientSecret: os.Getenv("AMAZON_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("AMAZON_REDIRECT_URI"),
			AuthURL:      envString("AMAZON_AUTH_URL", "https://www.amazon.com/ap/oa"),
			TokenURL:     envString("AMAZON_TOKEN_URL", "https://api.amazon.com/auth/o2/token"),
			APIBaseURL:   strings.TrimRight(envString("AMAZON_API_BASE_URL", "https://advertising-api.amazon.com"), "/"),
			Scope:        envString("AMAZON_SCOPE", "advertising::campaign_management"),
			Timeout:      envDuration("AMAZON_TIMEOUT", 30*time.Second),
			MaxRetries:   envInt("AMAZON_MAX_RETRIES", 3),
		},
		Sync: SyncConfig{
			UpsertConcurrency: envInt("SYNC_UPSERT_CONCURRENCY", 8),
			MaxAttempts:       envInt("SYNC_MAX_ATTEMPTS", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Identity.JWTSecret == "" {
		return fmt.Errorf("SESSION_JWT_SECRET is required")
	}

	for key, u := range map[string]string{
		"AMAZON_AUTH_URL":     c.Amazon.AuthURL,
		"AMAZON_TOKEN_URL":    c.Amazon.TokenURL,
		"AMAZON_API_BASE_URL": c.Amazon.APIBaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", key, u)
		}
	}

	if c.Amazon.MaxRetries < 0 {
		return fmt.Errorf("AMAZON_MAX_RETRIES must not be negative, got %d", c.Amazon.MaxRetries)
	}
	// An inline sync needs at least a token refresh and one listing.
	if minWrite := 2*c.Amazon.CallBudget() + writeMargin; c.Server.WriteTimeout < minWrite {
		return fmt.Errorf("ADSCONNECT_WRITE_TIMEOUT must be at least %s for AMAZON_TIMEOUT=%s and AMAZON_MAX_RETRIES=%d, got %s",
			minWrite, c.Amazon.Timeout, c.Amazon.MaxRetries, c.Server.WriteTimeout)
	}
	if c.Sync.UpsertConcurrency <= 0 {
		return fmt.Errorf("SYNC_UPSERT_CONCURRENCY must be positive, got %d", c.Sync.UpsertConcurrency)
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive, got %d", c.Sync.MaxAttempts)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
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

func envDuration(key string, defaultVal time.Duration) time.Duration {
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
