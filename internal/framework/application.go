// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"time"
)

// Application is a bootstrapped web application. It contributes the base
// middleware and is the final handler of the pipeline. After Bootstrap the
// application is shared read-only across concurrent requests.
type Application interface {
	Handler

	// Bootstrap runs once, before any request is served.
	Bootstrap(ctx context.Context) error

	// Middleware adds the application middleware to q and returns the queue to run.
	Middleware(q *MiddlewareQueue) *MiddlewareQueue
}

// PluginApplication is an Application that loads plugins. Plugins bootstrap
// after the application and may extend the middleware queue.
type PluginApplication interface {
	Application

	PluginBootstrap(ctx context.Context) error
	PluginMiddleware(q *MiddlewareQueue) *MiddlewareQueue
}

// AppConfig is the application configuration read from config/app.yaml
// beneath the application root.
type AppConfig struct {
	// Name identifies the application in logs.
	Name string `json:"name"`

	// Debug enables verbose error output in application responses.
	Debug bool `json:"debug"`

	// Session configures server-side sessions.
	Session SessionConfig `json:"session"`

	// Throttle configures request rate limiting; zero disables it.
	Throttle ThrottleConfig `json:"throttle"`

	// Plugins lists plugin names to load during PluginBootstrap.
	Plugins []string `json:"plugins"`

	// RootDir is the application root, without trailing slash.
	RootDir string `json:"-"`

	// ConfigDir is the configuration directory beneath RootDir.
	ConfigDir string `json:"-"`
}

// SessionConfig configures server-side sessions.
type SessionConfig struct {
	// Cookie is the session cookie name.
	Cookie string `json:"cookie"`

	// TTL is the idle session lifetime as a Go duration string, e.g. "30m".
	TTL string `json:"ttl"`

	// MaxEntries bounds the in-memory session store.
	MaxEntries int `json:"maxEntries"`
}

// ThrottleConfig configures the token bucket applied to all requests.
type ThrottleConfig struct {
	// RPS is the sustained request rate.
	RPS float64 `json:"rps"`

	// Burst is the bucket size; it defaults to 1 when RPS is set.
	Burst int `json:"burst"`
}

// CookieName returns the session cookie name or fallback when unset.
func (c SessionConfig) CookieName(fallback string) string {
	if c.Cookie != "" {
		return c.Cookie
	}
	return fallback
}

// TTLDuration returns the parsed TTL or fallback when unset or invalid.
func (c SessionConfig) TTLDuration(fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(c.TTL); err == nil && d > 0 {
		return d
	}
	return fallback
}
