package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced knob the hub reads at startup.
type Config struct {
	Port       string
	CORSOrigin string

	TokenSecret string

	SnapshotDSN       string
	SnapshotCacheAddr string
	BusURL            string

	RoomDebounce      time.Duration
	RoomEvictTimeout  time.Duration
	AwarenessTimeout  time.Duration
	HeartbeatInterval time.Duration

	JaegerEndpoint string
	LogFormatJSON  bool
}

// Load reads .env (if present) then environment variables, applying the
// defaults from the hub's external-interface contract.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "4000"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		TokenSecret: getEnv("TOKEN_SECRET", ""),

		SnapshotDSN:       getEnv("SNAPSHOT_DSN", ""),
		SnapshotCacheAddr: getEnv("SNAPSHOT_CACHE_ADDR", ""),
		BusURL:            getEnv("BUS_URL", ""),

		RoomDebounce:      time.Duration(getEnvInt("ROOM_DEBOUNCE_SECONDS", 5)) * time.Second,
		RoomEvictTimeout:  time.Duration(getEnvInt("ROOM_EVICT_SECONDS", 30)) * time.Second,
		AwarenessTimeout:  time.Duration(getEnvInt("AWARENESS_TIMEOUT_SECONDS", 30)) * time.Second,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_SECONDS", 30)) * time.Second,

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		LogFormatJSON:  getEnv("LOG_FORMAT", "console") == "json",
	}

	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
