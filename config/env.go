package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv loads variables from .env if present. Missing .env is not fatal
// because production deployments inject everything through the environment.
func LoadEnv() {
	if err := godotenv.Load(".env"); err != nil {
		Logger.Warn("No .env file loaded, relying on process environment", zap.Error(err))
	}
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvDefault returns the variable or the given default, logging when the
// default is used so misconfigured deployments are visible in the logs.
func GetEnvDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		Logger.Warn(key+" not set, using default", zap.String("default", fallback))
		return fallback
	}
	return val
}

// GetEnvInt parses an integer variable, falling back when unset or invalid.
func GetEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		Logger.Warn(key+" is not a valid integer, using default",
			zap.String("value", val), zap.Int("default", fallback))
		return fallback
	}
	return n
}
