// Package config loads the plugin host's process configuration from the
// environment, following the teacher's getEnv/getEnvInt helper pattern
// (cmd/main.go) rather than a config-file parser: this process is meant
// to be configured the way it is deployed, through its container's env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting the host needs at boot.
type Config struct {
	// Platform identity
	BaseURL     string // frontend origin, spec.md §6
	InternalURL string // in-cluster backend origin, spec.md §6

	// Postgres (core tables live in `public`; plugin schemas are
	// `plugin_<pluginId>`, spec.md §3)
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Queue broker (NATS), spec.md §4.1
	BrokerURL      string
	BrokerUser     string
	BrokerPassword string

	// Redis (internal/cache; sessions are stored in Postgres by internal/auth)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	// Service-token signing (spec.md §6: RS256, 5-minute TTL)
	ServiceTokenTTL time.Duration

	// Plugin discovery roots, spec.md §4.5
	CoreDir    string
	PluginsDir string

	Port string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads Config from the environment. DATABASE_URL, when set, wins
// over the granular DB_* fallbacks (matching spec.md §6's "DATABASE_URL
// (Postgres, required)" while keeping the teacher's per-field knobs for
// local development).
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:         getEnv("BASE_URL", "http://localhost:3000"),
		InternalURL:     getEnv("INTERNAL_URL", "http://localhost:8000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "corehost"),
		DBPassword:      getEnv("DB_PASSWORD", "corehost"),
		DBName:          getEnv("DB_NAME", "corehost"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		BrokerURL:       getEnv("BROKER_URL", getEnv("NATS_URL", "")),
		BrokerUser:      getEnv("BROKER_USER", ""),
		BrokerPassword:  getEnv("BROKER_PASSWORD", ""),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CacheEnabled:    getEnvBool("CACHE_ENABLED", false),
		ServiceTokenTTL: getEnvDuration("SERVICE_TOKEN_TTL", 5*time.Minute),
		CoreDir:         getEnv("CORE_DIR", "./core"),
		PluginsDir:      getEnv("PLUGIN_DIR", "./plugins"),
		Port:            getEnv("API_PORT", "8000"),
	}

	if cfg.DatabaseURL == "" && cfg.DBHost == "" {
		return nil, fmt.Errorf("DATABASE_URL or DB_HOST must be set")
	}

	return cfg, nil
}
