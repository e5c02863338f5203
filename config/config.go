package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	LogLevel       slog.Level
	Redis          RedisConfig
	Session        SessionConfig

	// ExclusiveRooms makes a join leave every other room the participant
	// occupies first. Off by default: multi-room membership is tolerated.
	ExclusiveRooms bool

	// warnings collects values that failed to parse and fell back to defaults.
	warnings []string
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// SessionConfig bounds a single websocket session.
type SessionConfig struct {
	SendBufferSize    int
	MaxMessageSize    int64
	MessagesPerSecond int64
	MessageBurst      int64
}

func Load() *Config {
	cfg := &Config{}

	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	for _, origin := range strings.Split(originsStr, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	cfg.Port = getEnv("PORT", "8080")
	cfg.Environment = getEnv("ENVIRONMENT", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.LogLevel = cfg.getLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ExclusiveRooms = cfg.getBool("EXCLUSIVE_ROOMS", false)

	cfg.Redis = RedisConfig{
		Enabled:     cfg.getBool("REDIS_ENABLED", false),
		Host:        getEnv("REDIS_HOST", "localhost"),
		Port:        getEnv("REDIS_PORT", "6379"),
		Password:    getEnv("REDIS_PASSWORD", ""),
		DB:          int(cfg.getInt("REDIS_DB", 0)),
		PresenceTTL: cfg.getDuration("PRESENCE_TTL", 24*time.Hour),
	}

	cfg.Session = SessionConfig{
		SendBufferSize:    int(cfg.getInt("SEND_BUFFER_SIZE", 256)),
		MaxMessageSize:    cfg.getInt("MAX_MESSAGE_SIZE", 64*1024),
		MessagesPerSecond: cfg.getInt("MESSAGES_PER_SECOND", 50),
		MessageBurst:      cfg.getInt("MESSAGE_BURST", 100),
	}

	return cfg
}

// AuthEnabled reports whether signaling connections must carry a JWT.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Validate returns one message per environment value that was ignored.
func (c *Config) Validate() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)

	if c.Session.SendBufferSize <= 0 {
		out = append(out, "SEND_BUFFER_SIZE must be positive, using 256")
		c.Session.SendBufferSize = 256
	}
	if c.Session.MaxMessageSize <= 0 {
		out = append(out, "MAX_MESSAGE_SIZE must be positive, using 65536")
		c.Session.MaxMessageSize = 64 * 1024
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getInt(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.warnings = append(c.warnings, fmt.Sprintf("invalid %s=%q, using %d", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func (c *Config) getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.warnings = append(c.warnings, fmt.Sprintf("invalid %s=%q, using %t", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func (c *Config) getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		c.warnings = append(c.warnings, fmt.Sprintf("invalid %s=%q, using %s", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func (c *Config) getLevel(key string, defaultValue slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		c.warnings = append(c.warnings, fmt.Sprintf("invalid %s=%q, using %s", key, raw, defaultValue))
		return defaultValue
	}
	return level
}
