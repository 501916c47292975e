// Package config loads runtime configuration from environment variables,
// using a flat Config-struct-plus-getenv-helpers approach.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Source (Discord)
	DiscordAuthTokens []string

	// Sink (Telegram)
	TelegramBotToken string
	TelegramChatID   string
	TelegramUseTopics bool

	// Message formatting
	ShowTimestamps      bool
	ShowServerInMessage bool

	// Discovery bounds
	MaxChannelsPerGuild int
	MaxTotalChannels    int
	MaxServers          int

	// Rate limits
	DiscordRateLimitPerSecond   float64
	TelegramRateLimitPerMinute  float64

	// Message lifecycle
	MessageTTLSeconds    int
	MaxHistoryMessages   int
	MessageBatchSize     int
	CleanupInterval      time.Duration
	HealthCheckInterval  time.Duration
	PeriodicSyncInterval time.Duration
	StatsRefreshInterval time.Duration

	// Persistence
	PersistenceBackend string // "file" | "redis" | "postgres"
	BlobPath           string
	RedisDSN           string
	DBDSN              string

	// Ambient
	LogLevel string
	HTTPAddr string

	// Security / admin surface
	AdminSecretKey string
	CORSOrigins    []string
	EncryptionKey  []byte // decoded from ENCRYPTION_KEY, 32 bytes
}

func Load() (Config, error) {
	cfg := Config{
		DiscordAuthTokens: splitNonEmpty(os.Getenv("DISCORD_AUTH_TOKENS"), ","),

		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramUseTopics: getenvBoolDefault("TELEGRAM_USE_TOPICS", true),

		ShowTimestamps:      getenvBoolDefault("SHOW_TIMESTAMPS", true),
		ShowServerInMessage: getenvBoolDefault("SHOW_SERVER_IN_MESSAGE", true),

		MaxChannelsPerGuild: getenvIntDefault("MAX_CHANNELS_PER_SERVER", 10),
		MaxTotalChannels:    getenvIntDefault("MAX_TOTAL_CHANNELS", 200),
		MaxServers:          getenvIntDefault("MAX_SERVERS", 50),

		DiscordRateLimitPerSecond:  getenvFloatDefault("DISCORD_RATE_LIMIT_PER_SECOND", 45),
		TelegramRateLimitPerMinute: getenvFloatDefault("TELEGRAM_RATE_LIMIT_PER_MINUTE", 20),

		MessageTTLSeconds:  getenvIntDefault("MESSAGE_TTL_SECONDS", 0),
		MaxHistoryMessages: getenvIntDefault("MAX_HISTORY_MESSAGES", 50),
		MessageBatchSize:   getenvIntDefault("MESSAGE_BATCH_SIZE", 10),

		CleanupInterval:      time.Duration(getenvIntDefault("CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute,
		HealthCheckInterval:  time.Duration(getenvIntDefault("HEALTH_CHECK_INTERVAL", 300)) * time.Second,
		PeriodicSyncInterval: 30 * time.Minute,
		StatsRefreshInterval: time.Minute,

		PersistenceBackend: getenvDefault("PERSISTENCE_BACKEND", "file"),
		BlobPath:           getenvDefault("BLOB_PATH", "telegram_data.json"),
		RedisDSN:           os.Getenv("REDIS_DSN"),
		DBDSN:              os.Getenv("DB_DSN"),

		LogLevel: getenvDefault("LOG_LEVEL", "info"),
		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),

		AdminSecretKey: os.Getenv("ADMIN_SECRET_KEY"),
	}

	if len(cfg.DiscordAuthTokens) == 0 {
		return Config{}, errors.New("config: missing DISCORD_AUTH_TOKENS")
	}
	if cfg.TelegramBotToken == "" {
		return Config{}, errors.New("config: missing TELEGRAM_BOT_TOKEN")
	}
	if cfg.TelegramChatID == "" {
		return Config{}, errors.New("config: missing TELEGRAM_CHAT_ID")
	}

	if cfg.MaxChannelsPerGuild < 1 || cfg.MaxChannelsPerGuild > 20 {
		return Config{}, fmt.Errorf("config: MAX_CHANNELS_PER_SERVER must be in [1, 20], got %d", cfg.MaxChannelsPerGuild)
	}

	switch cfg.PersistenceBackend {
	case "file", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("config: PERSISTENCE_BACKEND must be one of file|redis|postgres, got %q", cfg.PersistenceBackend)
	}
	if cfg.PersistenceBackend == "redis" && cfg.RedisDSN == "" {
		return Config{}, errors.New("config: PERSISTENCE_BACKEND=redis requires REDIS_DSN")
	}
	if cfg.PersistenceBackend == "postgres" && cfg.DBDSN == "" {
		return Config{}, errors.New("config: PERSISTENCE_BACKEND=postgres requires DB_DSN")
	}

	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, errors.New("config: ENCRYPTION_KEY must be valid base64")
		}
		if len(key) != 32 {
			return Config{}, errors.New("config: ENCRYPTION_KEY must be 32 bytes (256 bits)")
		}
		cfg.EncryptionKey = key
	}

	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = splitNonEmpty(corsOrigins, ",")
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvBoolDefault(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvIntDefault(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func getenvFloatDefault(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return def
	}
	return f
}
