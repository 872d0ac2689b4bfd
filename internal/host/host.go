// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package host holds the process-level wiring shared by the bridge commands:
// environment configuration, session store selection and bridge construction.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/echoapp"
	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/sessionstore"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// HTTP engines.
const (
	EngineNetHTTP  = "nethttp"
	EngineFastHTTP = "fasthttp"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

var (
	// ErrUnknownEngine is returned for an unsupported BRIDGE_HTTP_ENGINE.
	ErrUnknownEngine = errors.New("unknown http engine")

	// ErrUnknownSessionStore is returned for an unsupported BRIDGE_SESSION_STORE.
	ErrUnknownSessionStore = errors.New("unknown session store")
)

// Config is the host configuration read from the environment.
type Config struct {
	RootDir      string        `envconfig:"BRIDGE_ROOT_DIR" required:"true"`
	Port         int           `envconfig:"PORT" default:"8080"`
	Engine       string        `envconfig:"BRIDGE_HTTP_ENGINE" default:"nethttp"`
	SessionStore string        `envconfig:"BRIDGE_SESSION_STORE" default:"memory"`
	SessionDSN   string        `envconfig:"BRIDGE_SESSION_DSN" default:"file:sessions.db"`
	SessionTTL   time.Duration `envconfig:"BRIDGE_SESSION_TTL" default:"30m"`
	SessionSize  int           `envconfig:"BRIDGE_SESSION_MAX_ENTRIES" default:"10000"`
	Metrics      bool          `envconfig:"BRIDGE_METRICS" default:"true"`
}

// LoadConfig loads .env from the working directory when present and then
// reads Config from the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("host config: %w", err)
	}

	if cfg.Port <= 0 {
		cfg.Port = shared.DefaultPort
	}

	cfg.Engine = strings.ToLower(cfg.Engine)
	switch cfg.Engine {
	case EngineNetHTTP, EngineFastHTTP:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}

	cfg.SessionStore = strings.ToLower(cfg.SessionStore)
	switch cfg.SessionStore {
	case StoreMemory, StoreSQLite:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownSessionStore, cfg.SessionStore)
	}
	return cfg, nil
}

// OpenSessionStore opens the configured store. It outlives reloaded bridges
// and must be closed by the caller.
func OpenSessionStore(ctx context.Context, cfg Config) (framework.SessionStore, error) {
	switch cfg.SessionStore {
	case StoreSQLite:
		return sessionstore.NewSQLiteStore(ctx, cfg.SessionDSN, sessionstore.WithTTL(cfg.SessionTTL))
	case StoreMemory, "":
		return sessionstore.NewMemoryStore(cfg.SessionSize, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSessionStore, cfg.SessionStore)
	}
}

// NewBridge builds a bridge for the echo application at cfg.RootDir. reg may
// be nil to skip metrics.
func NewBridge(ctx context.Context, cfg Config, store framework.SessionStore, reg prometheus.Registerer) (*bridge.Bridge, error) {
	opts := []bridge.Option{bridge.WithSessionStore(store)}
	if reg != nil && cfg.Metrics {
		opts = append(opts, bridge.WithMetrics(reg))
	}
	return bridge.New(ctx, cfg.RootDir, echoapp.New, opts...)
}
