// internal/config/config.go
//
// Runtime configuration for the Memory Pulse server.
// Responsibilities:
//   - Load a local .env file when present (development).
//   - Read environment variables with defaults.
//
// Command-line flags override these values in cmd/memorypulse.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config is the resolved server configuration.
type Config struct {
	Port          string
	LogLevel      string
	LogFormat     string // "json" | "console"
	Store         string // StoreSQLite | StoreMemory
	DBPath        string
	JWTSecret     string
	ClientOrigin  string
	SecureCookies bool
	LevelsFile    string
	Tick          time.Duration
	SessionTTL    time.Duration
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{
		Port:          getEnv("PORT", "5175"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Store:         strings.ToLower(getEnv("STORE", StoreSQLite)),
		DBPath:        getEnv("DB_PATH", "./data/app.db"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		ClientOrigin:  getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		SecureCookies: getEnv("SECURE_COOKIES", "") == "true",
		LevelsFile:    os.Getenv("LEVELS_FILE"),
	}

	ms, err := strconv.Atoi(getEnv("TICK_MS", "100"))
	if err != nil || ms < 0 {
		return c, fmt.Errorf("TICK_MS: want a non-negative integer, got %q", os.Getenv("TICK_MS"))
	}
	c.Tick = time.Duration(ms) * time.Millisecond

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "30m"))
	if err != nil || ttl <= 0 {
		return c, fmt.Errorf("SESSION_TTL: want a positive duration, got %q", os.Getenv("SESSION_TTL"))
	}
	c.SessionTTL = ttl

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks values that flags may also set.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("STORE: unknown backend %q", c.Store)
	}
	if c.Store == StoreSQLite && c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required for the sqlite store")
	}
	return nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
