// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the room chat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string

	// MaxMessageBytes is the largest accepted client frame, in UTF-8 bytes.
	MaxMessageBytes int
	// NamePattern is the regular expression room ids and usernames must match.
	NamePattern string
	// MaxRooms caps explicit room creation. Zero means unlimited.
	MaxRooms  int
	RateLimit RateLimitConfig

	// Advisory values published to clients through /config.
	MaxMessages       int
	StorageMaxBytes   int
	StorageMaxAgeDays int

	StaticDir          string
	StaticCacheSeconds int

	LogLevel  string
	LogFormat string
}

const (
	defaultMaxMessageBytes   = 16 * 1024 * 1024
	defaultMaxMessages       = 100
	minMaxMessages           = 10
	defaultStorageMaxBytes   = 5 * 1024 * 1024
	minStorageMaxBytes       = 1024 * 1024
	defaultStorageMaxAgeDays = 7
	defaultStaticCache       = 86400
)

func defaultConfig() Config {
	return Config{
		Port:              ":8080",
		AllowedOrigins:    []string{"*"},
		MaxMessageBytes:   defaultMaxMessageBytes,
		NamePattern:       protocol.DefaultNamePattern,
		MaxRooms:          0,
		MaxMessages:       defaultMaxMessages,
		StorageMaxBytes:   defaultStorageMaxBytes,
		StorageMaxAgeDays: defaultStorageMaxAgeDays,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		StaticCacheSeconds: defaultStaticCache,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Sanitize replaces out-of-range values with defaults or clamps them to
// their minimum, and returns the result.
func (cfg Config) Sanitize() Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}

	if cfg.NamePattern == "" {
		cfg.NamePattern = protocol.DefaultNamePattern
	}

	if cfg.MaxRooms < 0 {
		cfg.MaxRooms = 0
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.MaxMessages < minMaxMessages {
		cfg.MaxMessages = minMaxMessages
	}

	if cfg.StorageMaxBytes < minStorageMaxBytes {
		cfg.StorageMaxBytes = minStorageMaxBytes
	}

	if cfg.StorageMaxAgeDays < 1 {
		cfg.StorageMaxAgeDays = 1
	}

	if cfg.StaticCacheSeconds < 0 {
		cfg.StaticCacheSeconds = 0
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or
// cannot be parsed.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		if parsed := parseOrigins(origins); len(parsed) > 0 {
			cfg.AllowedOrigins = parsed
		}
	}

	cfg.MaxMessageBytes = envInt("MAX_MESSAGE_BYTES", cfg.MaxMessageBytes, 1)
	cfg.MaxMessages = envInt("MAX_MESSAGES", cfg.MaxMessages, minMaxMessages)
	cfg.MaxRooms = envInt("MAX_ROOMS", cfg.MaxRooms, 0)
	cfg.StorageMaxBytes = envInt("STORAGE_MAX_BYTES", cfg.StorageMaxBytes, minStorageMaxBytes)
	cfg.StorageMaxAgeDays = envInt("STORAGE_MAX_AGE_DAYS", cfg.StorageMaxAgeDays, 1)
	cfg.StaticCacheSeconds = envInt("STATIC_CACHE_SECONDS", cfg.StaticCacheSeconds, 0)

	if pattern := os.Getenv("NAME_PATTERN"); pattern != "" {
		cfg.NamePattern = pattern
	}

	cfg.StaticDir = os.Getenv("STATIC_DIR")

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// envInt reads an integer variable, falling back to defaultValue when it is
// unset or malformed and clamping it to minValue.
func envInt(key string, defaultValue, minValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	if value < minValue {
		return minValue
	}
	return value
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
