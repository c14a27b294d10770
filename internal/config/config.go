package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config is the relay server configuration.
type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	SessionTTL  time.Duration
	PresenceTTL time.Duration
	MDNSEnabled bool
	MDNSName    string
}

func LoadConfig() (*Config, error) {
	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, errors.New("invalid SESSION_TTL format")
	}
	presenceTTL, err := time.ParseDuration(getEnv("PRESENCE_TTL", "90s"))
	if err != nil {
		return nil, errors.New("invalid PRESENCE_TTL format")
	}
	mdnsEnabled, err := strconv.ParseBool(getEnv("MDNS_ENABLED", "false"))
	if err != nil {
		return nil, errors.New("invalid MDNS_ENABLED value")
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SessionTTL:  sessionTTL,
		PresenceTTL: presenceTTL,
		MDNSEnabled: mdnsEnabled,
		MDNSName:    getEnv("MDNS_NAME", "syncboard"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return nil, errors.New("invalid SERVER_PORT")
	}

	return cfg, nil
}

// BoardConfig configures a headless board participant.
type BoardConfig struct {
	// ServerURL of the relay; empty means browse mDNS for one.
	ServerURL string
	// SessionID to join; empty means create a new session.
	SessionID   string
	SessionName string
	// ExportPath, when set, receives a PDF of the canvas on exit.
	ExportPath      string
	ThrottleRate    int
	CheckpointEvery int64
	DiscoverTimeout time.Duration
}

func LoadBoardConfig() (*BoardConfig, error) {
	rate, err := strconv.Atoi(getEnv("THROTTLE_RATE", "20"))
	if err != nil || rate < 0 {
		return nil, errors.New("invalid THROTTLE_RATE")
	}
	every, err := strconv.ParseInt(getEnv("CHECKPOINT_EVERY", "50"), 10, 64)
	if err != nil || every < 0 {
		return nil, errors.New("invalid CHECKPOINT_EVERY")
	}
	timeout, err := time.ParseDuration(getEnv("DISCOVER_TIMEOUT", "3s"))
	if err != nil {
		return nil, errors.New("invalid DISCOVER_TIMEOUT format")
	}

	return &BoardConfig{
		ServerURL:       os.Getenv("SERVER_URL"),
		SessionID:       os.Getenv("SESSION_ID"),
		SessionName:     getEnv("SESSION_NAME", "whiteboard"),
		ExportPath:      os.Getenv("EXPORT_PATH"),
		ThrottleRate:    rate,
		CheckpointEvery: every,
		DiscoverTimeout: timeout,
	}, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
