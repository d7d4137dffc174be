// Package config reads the engine's environment-variable knobs.
package config

import (
	"os"
	"strconv"
)

// GetEnv retrieves an environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MustGetEnv retrieves an environment variable or panics if it is unset.
func MustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

// GetEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparsable.
func GetEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvBool retrieves a 0/1 environment variable as a bool.
func GetEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v != 0
}

// Defaults holds the engine-wide knobs read from the environment.
type Defaults struct {
	// ZeroLogs disables logging entirely (GOALDSL_ZERO_LOGS).
	ZeroLogs bool
	// LogLevel is a standard level name (GOALDSL_LOG_LEVEL, default INFO).
	LogLevel string
	// TickFreqHz is the default goal tick frequency (GOAL_TICK_FREQ_HZ, default 10).
	TickFreqHz int
}

// Load reads Defaults from the process environment.
func Load() Defaults {
	return Defaults{
		ZeroLogs:   GetEnvBool("GOALDSL_ZERO_LOGS", false),
		LogLevel:   GetEnv("GOALDSL_LOG_LEVEL", "INFO"),
		TickFreqHz: GetEnvInt("GOAL_TICK_FREQ_HZ", 10),
	}
}
