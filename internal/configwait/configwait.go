// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package configwait waits for an application root to become loadable during
// startup and keeps HTTP hosts answering 503 until it has.
package configwait

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/goccy/go-json"
)

// Environment variable names for wait configuration.
const (
	EnvMaxRetries    = "CONFIG_WAIT_MAX_RETRIES"
	EnvRetryInterval = "CONFIG_WAIT_RETRY_INTERVAL"
)

// Default wait configuration.
const (
	DefaultMaxRetries    = 30
	DefaultRetryInterval = 2 * time.Second
)

// Config configures the wait behavior.
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// NewConfigFromEnv reads Config from CONFIG_WAIT_MAX_RETRIES and
// CONFIG_WAIT_RETRY_INTERVAL, keeping defaults for unset or invalid values.
func NewConfigFromEnv() Config {
	cfg := Config{
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
	}

	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvRetryInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RetryInterval = d
		}
	}
	return cfg
}

// LoadFunc attempts one load and returns nil on success.
type LoadFunc func(ctx context.Context) error

// Wait calls load until it succeeds, MaxRetries attempts have failed or ctx
// is done. It returns the last load error on exhaustion.
func Wait(ctx context.Context, cfg Config, load LoadFunc) error {
	log := clog.FromContext(ctx)
	attempts := max(cfg.MaxRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = load(ctx)
		if lastErr == nil {
			if attempt > 1 {
				log.Infof("[configwait] loaded after %d attempts", attempt)
			}
			return nil
		}
		log.Warnf("[configwait] attempt %d/%d failed: %v", attempt, attempts, lastErr)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	return lastErr
}

// ReadyGate serves 503 until a handler is installed and marked ready.
// Requests under an allowed path prefix skip the readiness check but still
// need a handler.
type ReadyGate struct {
	allowed []string
	ready   atomic.Bool
	handler atomic.Pointer[http.Handler]
}

// NewReadyGate creates a gate around h, which may be nil until SetHandler.
func NewReadyGate(h http.Handler, allowedPaths []string) *ReadyGate {
	g := &ReadyGate{allowed: allowedPaths}
	if h != nil {
		g.handler.Store(&h)
	}
	return g
}

// SetHandler swaps the served handler. Safe for concurrent use with ServeHTTP.
func (g *ReadyGate) SetHandler(h http.Handler) {
	g.handler.Store(&h)
}

// SetReady opens the gate.
func (g *ReadyGate) SetReady() {
	g.ready.Store(true)
}

// IsReady reports whether SetReady has been called.
func (g *ReadyGate) IsReady() bool {
	return g.ready.Load()
}

func (g *ReadyGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() && !g.isAllowed(r.URL.Path) {
		unavailable(w, r, "application root is still loading")
		return
	}

	h := g.handler.Load()
	if h == nil || *h == nil {
		unavailable(w, r, "service starting up")
		return
	}
	(*h).ServeHTTP(w, r)
}

func (g *ReadyGate) isAllowed(path string) bool {
	for _, p := range g.allowed {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func unavailable(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "5")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":   "service_unavailable",
		"message": message,
	}); err != nil {
		clog.FromContext(r.Context()).Errorf("[configwait] failed to write unavailable response: %v", err)
	}
}
