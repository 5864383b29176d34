// Package config loads runtime configuration from environment variables.
// Every knob has a sensible default so the server starts with nothing but
// DATABASE_URL set (and even that is optional, the in-memory store kicks in).
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Matching MatchingConfig
	Embedder EmbedderConfig
	Database DatabaseConfig
	Sessions SessionsConfig
	Bus      BusConfig
	HTTP     HTTPConfig
}

type MatchingConfig struct {
	AcceptThreshold float64       // minimum cosine similarity to accept a match (default 0.75)
	AmbiguityMargin float64       // minimum top-2 separation (default 0.02)
	GracePeriod     time.Duration // window-start grace before arrivals count as late (default 10m)
	EmbeddingDim    int           // expected embedding dimension (default 128)
}

type EmbedderConfig struct {
	URL       string // face-embedding service URL, defaults to http://localhost:8000
	Synthetic bool   // use the deterministic synthetic provider instead of the HTTP service
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty runs fully in-memory
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type SessionsConfig struct {
	TimetablePath string // YAML timetable for the scheduler; empty disables scheduling
	TickInterval  time.Duration
}

type BusConfig struct {
	Capacity  int           // notification feed capacity (default 500)
	Retention time.Duration // acknowledged events older than this are evicted (default 7 days)
}

type HTTPConfig struct {
	Listen string // listen address, defaults to :8080
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a positive
// duration ("10m", "1h30m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Matching: MatchingConfig{
			AcceptThreshold: envFloat("PRESENCE_ACCEPT_THRESHOLD", 0.75),
			AmbiguityMargin: envFloat("PRESENCE_AMBIGUITY_MARGIN", 0.02),
			GracePeriod:     envDuration("PRESENCE_GRACE_PERIOD", 10*time.Minute),
			EmbeddingDim:    envInt("PRESENCE_EMBEDDING_DIM", 128),
		},
		Embedder: EmbedderConfig{
			URL:       envString("EMBEDDING_URL", "http://localhost:8000"),
			Synthetic: envBool("PRESENCE_SYNTHETIC_EMBEDDER"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Sessions: SessionsConfig{
			TimetablePath: os.Getenv("PRESENCE_TIMETABLE"),
			TickInterval:  envDuration("PRESENCE_SCHEDULER_INTERVAL", 30*time.Second),
		},
		Bus: BusConfig{
			Capacity:  envInt("PRESENCE_BUS_CAPACITY", 500),
			Retention: envDuration("PRESENCE_BUS_RETENTION", 7*24*time.Hour),
		},
		HTTP: HTTPConfig{
			Listen: envString("PRESENCE_LISTEN", ":8080"),
		},
	}
}
