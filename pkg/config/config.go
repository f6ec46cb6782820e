// Package config reads service configuration from environment variables.
// Malformed values fall back to the default rather than aborting startup.
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// GetString returns the variable's value, or fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt parses the variable as an integer, falling back when unset or
// malformed.
func GetInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring malformed config value", "key", key, "error", err)
		return fallback
	}
	return parsed
}

// GetBool parses the variable as a boolean, falling back when unset or
// malformed.
func GetBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("ignoring malformed config value", "key", key, "error", err)
		return fallback
	}
	return parsed
}
