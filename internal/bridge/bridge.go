// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package bridge connects application-server workers to the framework. It
// normalizes generic requests into framework requests, runs the application
// middleware pipeline and flattens the result back into a plain response.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/yaml"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/sessionstore"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// ConfigFile is the configuration entry point relative to the root directory.
const ConfigFile = "config/app.yaml"

var (
	// ErrRootDirNotFound is returned when the root directory does not exist.
	ErrRootDirNotFound = errors.New("root directory not found")

	// ErrConfigNotFound is returned when the configuration entry point is missing.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigInvalid is returned when the configuration cannot be parsed.
	ErrConfigInvalid = errors.New("invalid configuration file")

	// ErrAppNotCreated is returned when the factory yields no application.
	ErrAppNotCreated = errors.New("application could not be created")
)

// AppFactory creates the application for a configuration.
type AppFactory func(ctx context.Context, cfg framework.AppConfig) (framework.Application, error)

// Bridge dispatches requests into a bootstrapped application. It is safe for
// concurrent use once New returns.
type Bridge struct {
	rootDir    string
	config     framework.AppConfig
	app        framework.Application
	events     *framework.EventManager
	sessions   framework.SessionStore
	ownStore   bool
	cookieName string
	now        func() time.Time
	metrics    *metrics
	runner     framework.Runner
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	events     *framework.EventManager
	sessions   framework.SessionStore
	now        func() time.Time
	registerer prometheus.Registerer
}

// WithEventManager sets the event manager that receives pipeline events.
func WithEventManager(m *framework.EventManager) Option {
	return func(o *options) { o.events = m }
}

// WithSessionStore sets the session store. The caller keeps ownership and
// must close it after the Bridge.
func WithSessionStore(s framework.SessionStore) Option {
	return func(o *options) { o.sessions = s }
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics registers request metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New validates rootDir, loads its configuration, creates the application
// with factory and bootstraps it together with its plugins. On error no
// Bridge is returned.
func New(ctx context.Context, rootDir string, factory AppFactory, opts ...Option) (*Bridge, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	root := trimRoot(rootDir)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootDirNotFound, root)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		return nil, err
	}

	if factory == nil {
		return nil, fmt.Errorf("%w: %s: no application factory", ErrAppNotCreated, root)
	}
	app, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAppNotCreated, root, err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %s", ErrAppNotCreated, root)
	}

	if err := app.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap application: %w", err)
	}
	if p, ok := app.(framework.PluginApplication); ok {
		if err := p.PluginBootstrap(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap plugins: %w", err)
		}
	}

	var m *metrics
	if o.registerer != nil {
		if m, err = newMetrics(o.registerer); err != nil {
			return nil, err
		}
	}

	b := &Bridge{
		rootDir:    root,
		config:     cfg,
		app:        app,
		events:     o.events,
		sessions:   o.sessions,
		cookieName: cfg.Session.CookieName(shared.DefaultSessionCookie),
		now:        o.now,
		metrics:    m,
	}
	if b.sessions == nil {
		b.sessions = sessionstore.NewMemoryStore(
			cfg.Session.MaxEntries,
			cfg.Session.TTLDuration(shared.DefaultSessionTTL),
		)
		b.ownStore = true
	}

	clog.InfoContextf(ctx, "[bridge] application %q ready at %s", cfg.Name, root)
	return b, nil
}

// LoadConfig reads the configuration entry point beneath root.
func LoadConfig(root string) (framework.AppConfig, error) {
	path := filepath.Join(root, ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return framework.AppConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return framework.AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg framework.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return framework.AppConfig{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	cfg.RootDir = root
	cfg.ConfigDir = filepath.Dir(path)
	return cfg, nil
}

// RootDir returns the root directory without trailing slash.
func (b *Bridge) RootDir() string { return b.rootDir }

// Config returns the loaded application configuration.
func (b *Bridge) Config() framework.AppConfig { return b.config }

// App returns the bootstrapped application.
func (b *Bridge) App() framework.Application { return b.app }

// Close releases the session store when the Bridge created it.
func (b *Bridge) Close() error {
	if b.ownStore && b.sessions != nil {
		return b.sessions.Close()
	}
	return nil
}

func trimRoot(dir string) string {
	trimmed := strings.TrimRight(dir, "/")
	if trimmed == "" && strings.HasPrefix(dir, "/") {
		return "/"
	}
	return trimmed
}
