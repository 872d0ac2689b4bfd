// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package shared

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log format constants.
const (
	// LogFormatJSON outputs logs in JSON format (default).
	LogFormatJSON = "json"

	// LogFormatText outputs logs in human-readable text format.
	LogFormatText = "text"
)

// Environment variable names for logging configuration.
const (
	EnvLogFormat    = "LOG_FORMAT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogAddSource = "LOG_ADD_SOURCE"
)

// NewSlogHandler creates a new slog.Handler writing to stderr based on the
// LOG_FORMAT and LOG_LEVEL environment variables.
func NewSlogHandler() slog.Handler {
	return NewSlogHandlerTo(os.Stderr)
}

// NewSlogHandlerTo is NewSlogHandler with an explicit destination. The stdin
// worker host logs here because stdout carries response frames.
func NewSlogHandlerTo(w io.Writer) slog.Handler {
	format := strings.ToLower(GetEnvDefault(EnvLogFormat, LogFormatJSON))

	opts := &slog.HandlerOptions{
		Level:     parseLevel(os.Getenv(EnvLogLevel)),
		AddSource: EnvEnabled(EnvLogAddSource),
	}

	switch format {
	case LogFormatText:
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
