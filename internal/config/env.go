package config

import (
	"os"
	"strconv"
	"time"

	xlog "github.com/aircast/aircast/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. Empty values fall back to the default.
func ParseString(key, defaultValue string) string {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
		return v
	}
	logger.Debug().Str("key", key).Str("default", defaultValue).Str("source", "default").Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default. It falls back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer, using default value")
	}
	return defaultValue
}

// ParseDuration reads a duration ("500ms", "10s") from an environment
// variable or returns the default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := xlog.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration, using default value")
	}
	return defaultValue
}
