package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // empty selects lite mode (SQLite under DataDir)
	DataDir     string
	ProfilePath string

	// ClaimBackend is "sql" (default), "redis" or "memory".
	ClaimBackend  string
	RedisAddr     string
	RedisPassword string

	JWTIssuer      string
	RateLimitRPS   float64
	RateLimitBurst int
	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// disables cross-origin access.
	CORSOrigins []string

	OTELEndpoint string
	OTELEnabled  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getenv("PORT", "8080"),
		LogLevel:       getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DataDir:        getenv("DATA_DIR", "data"),
		ProfilePath:    getenv("PROFILE_PATH", "profile.yaml"),
		ClaimBackend:   getenv("CLAIM_BACKEND", "sql"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTIssuer:      getenv("JWT_ISSUER", "helm-bridge"),
		RateLimitRPS:   getfloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getint("RATE_LIMIT_BURST", 20),
		CORSOrigins:    getlist("CORS_ORIGINS"),
		OTELEndpoint:   getenv("OTEL_ENDPOINT", "localhost:4317"),
		OTELEnabled:    os.Getenv("OTEL_ENABLED") == "true",
	}
}

// LiteMode reports whether no external database is configured.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func getlist(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
