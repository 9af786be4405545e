package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	LogLevel       string
	Environment    string
	AllowedOrigins []string

	// Persistence and security event log paths
	DataFile    string
	SecurityLog string

	// Optional Redis backend for the rate limiter. Empty means the
	// in-process sliding window storage is used.
	RedisURL string

	// Email alert delivery
	SMTPHost           string
	SMTPPort           string
	AlertEmailFrom     string
	AlertEmailTo       string
	AlertEmailPassword string
	EnableEmailAlerts  bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Environment:        getEnv("ENVIRONMENT", "production"),
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:8000,http://127.0.0.1:8000")),
		DataFile:           getEnv("DATA_FILE", "session_data.json"),
		SecurityLog:        getEnv("SECURITY_LOG", "security.log"),
		RedisURL:           getEnv("REDIS_URL", ""),
		SMTPHost:           getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:           getEnv("SMTP_PORT", "587"),
		AlertEmailFrom:     getEnv("ALERT_EMAIL_FROM", ""),
		AlertEmailTo:       getEnv("ALERT_EMAIL_TO", ""),
		AlertEmailPassword: getEnv("ALERT_EMAIL_PASSWORD", ""),
		EnableEmailAlerts:  getBoolEnv("ENABLE_EMAIL_ALERTS", false),
	}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
