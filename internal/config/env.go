package config

import (
	"os"
	"strconv"
)

// Get returns the first non-empty environment variable from the provided keys.
func Get(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// GetInt is Get for positive integers; unset or malformed values yield def.
func GetInt(def int, keys ...string) int {
	raw := Get(keys...)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
