package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries all runtime settings for the server. Values come from the
// environment, with a .env file loaded first when present.
type Config struct {
	Port          string
	AllowedOrigin string

	// DatabaseURL selects the postgres store when set; otherwise the
	// server runs on the in-memory store with seed data.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret            string
	AccessTokenTTLMinutes int

	StatsCacheTTLSeconds int
}

func Load() Config {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 60*12),
		StatsCacheTTLSeconds:  getEnvInt("STATS_CACHE_TTL_SECONDS", 30),
	}
}

func (c Config) Address() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	return ":" + strings.TrimPrefix(port, ":")
}

// ValidateSecurity rejects configurations that are unsafe to expose: a
// short or missing AUTH_SECRET together with a postgres database means
// the deployment is real, so an ephemeral dev secret is not acceptable.
func (c Config) ValidateSecurity() error {
	if c.DatabaseURL == "" {
		return nil
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters when DATABASE_URL is set (got %d)", len(c.AuthSecret))
	}
	return nil
}

func getEnv(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
