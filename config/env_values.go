package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Environment struct {
	// Server configs
	IsDocker          bool
	Port              string
	Environment       string
	CorsAllowedOrigin string

	// Query gateway configs
	IdleTimeout       time.Duration
	KeepAliveInterval time.Duration
	QueryTimeout      time.Duration
	MaxJoins          int

	// Schema cache configs
	SchemaEncryptionKey string

	// Redis configs (optional session/schema cache mirror)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
}

var Env Environment

// LoadEnv loads environment variables from .env file if present
// and validates required variables
func LoadEnv() error {
	// Check if running in Docker
	Env.IsDocker = os.Getenv("IS_DOCKER") == "true"

	// Load .env file only if not running in Docker
	if !Env.IsDocker {
		if err := godotenv.Load(); err != nil {
			fmt.Printf("Warning: .env file not found: %v\n", err)
		}
	}

	// Server configs
	Env.Port = getEnvWithDefault("PORT", "3000")
	Env.Environment = getEnvWithDefault("ENVIRONMENT", "DEVELOPMENT")
	Env.CorsAllowedOrigin = getEnvWithDefault("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	// Query gateway configs
	Env.IdleTimeout = getDurationEnvWithDefault("SESSION_IDLE_TIMEOUT_SECONDS", 10*time.Minute)
	Env.KeepAliveInterval = getDurationEnvWithDefault("KEEPALIVE_INTERVAL_SECONDS", 5*time.Minute)
	Env.QueryTimeout = getDurationEnvWithDefault("QUERY_TIMEOUT_SECONDS", time.Minute)
	Env.MaxJoins = getIntEnvWithDefault("MAX_JOINS_PER_QUERY", 10)

	// Schema cache configs
	Env.SchemaEncryptionKey = getEnvWithDefault("SCHEMA_ENCRYPTION_KEY", "querypilot_schema_encryption_32b")

	// Redis configs
	Env.RedisEnabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	Env.RedisHost = getEnvWithDefault("REDIS_HOST", "localhost")
	Env.RedisPort = getEnvWithDefault("REDIS_PORT", "6379")
	Env.RedisPassword = getEnvWithDefault("REDIS_PASSWORD", "")

	return validateConfig()
}

// Helper functions to get environment variables with defaults and validation
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(strValue)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %d\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(strValue)
	if err != nil || seconds <= 0 {
		fmt.Printf("Warning: Invalid value for %s, using default: %v\n", key, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func validateConfig() error {
	if len(Env.SchemaEncryptionKey) != 32 {
		return fmt.Errorf("SCHEMA_ENCRYPTION_KEY must be exactly 32 bytes, got: %d", len(Env.SchemaEncryptionKey))
	}

	if Env.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT_SECONDS must be positive, got: %v", Env.IdleTimeout)
	}

	if Env.MaxJoins <= 0 {
		return fmt.Errorf("MAX_JOINS_PER_QUERY must be positive, got: %d", Env.MaxJoins)
	}

	return nil
}
