// Package config loads process configuration from VCSYNC_* environment variables.
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

const prefix = "VCSYNC_"

// Config is the full process configuration.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	ServiceName string

	Log struct {
		Level  string
		Format string
	}

	// PGDSN empty selects the in-memory stores.
	PGDSN string

	// Redis.Addr empty selects the in-process cache.
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	ManifestCacheTTL time.Duration

	JWT struct {
		Secret     string
		Issuer     string
		AccessTTL  time.Duration
		RefreshTTL time.Duration
	}

	OTP struct {
		TTL         time.Duration
		MaxAttempts int
		ExposeCodes bool
	}

	// SMTP.Host empty selects the log mail sender.
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}

	DIDResolveTimeout   time.Duration
	ContextFetchTimeout time.Duration
	ContextURLs         []string

	StatusListDefaultPurpose []string

	RateLimit struct {
		RPS   float64
		Burst int
	}
	CORSAllowedOrigins []string
}

// DefaultContextURLs are fetched by the JSON-LD refresh when no URLs are given.
var DefaultContextURLs = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://w3id.org/security/v1",
	"https://w3id.org/security/v2",
}

// Load reads an optional .env file (VCSYNC_ENV_FILE overrides the path) and then the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := os.Getenv(prefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := &Config{}
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.GRPCAddr = getEnv("GRPC_ADDR", ":9090")
	cfg.ServiceName = getEnv("SERVICE_NAME", "vcsync-api")
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.PGDSN = getEnv("PG_DSN", "")
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)
	cfg.ManifestCacheTTL = getDuration("MANIFEST_CACHE_TTL", 5*time.Minute)

	cfg.JWT.Secret = getEnv("JWT_SECRET", "")
	cfg.JWT.Issuer = getEnv("JWT_ISSUER", "vcsync")
	cfg.JWT.AccessTTL = getDuration("JWT_ACCESS_TTL", 15*time.Minute)
	cfg.JWT.RefreshTTL = getDuration("JWT_REFRESH_TTL", 14*24*time.Hour)

	cfg.OTP.TTL = getDuration("OTP_TTL", 10*time.Minute)
	cfg.OTP.MaxAttempts = getInt("OTP_MAX_ATTEMPTS", 5)
	cfg.OTP.ExposeCodes = getBool("EXPOSE_CODES", false)

	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Port = getInt("SMTP_PORT", 587)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", "no-reply@vcsync.org")

	cfg.DIDResolveTimeout = getDuration("DID_RESOLVE_TIMEOUT", 10*time.Second)
	cfg.ContextFetchTimeout = getDuration("CONTEXT_FETCH_TIMEOUT", 15*time.Second)
	cfg.ContextURLs = getList("CONTEXT_URLS", DefaultContextURLs)

	cfg.StatusListDefaultPurpose = getList("STATUSLIST_DEFAULT_PURPOSE", nil)

	cfg.RateLimit.RPS = getFloat("RATE_LIMIT_RPS", 20)
	cfg.RateLimit.Burst = getInt("RATE_LIMIT_BURST", 40)
	cfg.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS", nil)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: " + prefix + "JWT_SECRET is required")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("config: " + prefix + "OTP_MAX_ATTEMPTS must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(prefix + key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	i, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return i
}

func getFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// getList splits a comma-separated value. An unset variable yields def.
func getList(key string, def []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
