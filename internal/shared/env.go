// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package shared

import (
	"os"
	"strings"
)

// GetEnvDefault returns the value of an environment variable,
// or the default value if the variable is not set or empty.
func GetEnvDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// EnvEnabled reports whether a boolean-ish environment variable is switched on.
func EnvEnabled(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}
