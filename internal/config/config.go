// Package config centralises configuration parsing for the tracker.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values.
type Config struct {
	HTTPAddress     string
	DataPath        string        // SQLite file backing the local store.
	RemoteURL       string        // postgres:// DSN or PostgREST base URL; empty disables sync.
	RemoteKey       string        // Password or API key for RemoteURL.
	RemoteTable     string
	RemoteTimeout   time.Duration // Bound on every remote call.
	KafkaBrokers    []string      // Empty disables sync events.
	SyncEventsTopic string
	MetricsEnabled  bool
	CORSOrigin      string
	TimeZone        string // IANA name used for date keys; empty means the host zone.
}

// Load reads environment variables into Config, applying defaults for local use.
func Load() Config {
	cfg := Config{
		HTTPAddress:     getEnv("HTTP_ADDRESS", ":8080"),
		DataPath:        getEnv("DATA_PATH", defaultDataPath()),
		RemoteURL:       getEnv("REMOTE_URL", getEnv("SUPABASE_URL", "")),
		RemoteKey:       getEnv("REMOTE_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		RemoteTable:     getEnv("REMOTE_TABLE", "workout_data"),
		RemoteTimeout:   getDurationEnv("REMOTE_TIMEOUT", 10*time.Second),
		SyncEventsTopic: getEnv("SYNC_EVENTS_TOPIC", "hybrid-tracker.sync.v1"),
		MetricsEnabled:  getBoolEnv("METRICS_ENABLED", true),
		CORSOrigin:      getEnv("CORS_ORIGIN", "http://localhost:5173"),
		TimeZone:        getEnv("TZ", ""),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", ""))
	return cfg
}

// RemoteConfigured reports whether both remote endpoint and credential are set.
func (c Config) RemoteConfigured() bool {
	return strings.TrimSpace(c.RemoteURL) != "" && strings.TrimSpace(c.RemoteKey) != ""
}

// Location resolves TimeZone, falling back to time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "hybrid-tracker.db"
	}
	return filepath.Join(dir, "hybrid-tracker", "tracker.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
