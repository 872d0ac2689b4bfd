// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package echoapp is the application served by the bridge hosts. It answers a
// small set of JSON routes that echo what the framework received.
package echoapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// ErrFailRoute is returned by the debug-only failure route.
var ErrFailRoute = errors.New("requested failure")

var (
	_ framework.PluginApplication = (*App)(nil)
	_ framework.EventDispatcher   = (*App)(nil)
)

type route struct {
	method string
	path   string
}

// App is the echo application.
type App struct {
	cfg     framework.AppConfig
	events  *framework.EventManager
	routes  map[route]framework.HandlerFunc
	plugins []Plugin

	// throttle is shared by every request so its bucket persists
	throttle framework.Middleware
}

// New creates the application for cfg. It has the bridge.AppFactory signature.
func New(_ context.Context, cfg framework.AppConfig) (framework.Application, error) {
	return &App{
		cfg:    cfg,
		events: framework.NewEventManager(),
		routes: make(map[route]framework.HandlerFunc),
	}, nil
}

// Events returns the application event manager.
func (a *App) Events() *framework.EventManager { return a.events }

// Bootstrap registers the routes and creates the rate limiter.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.cfg.Throttle.RPS > 0 {
		a.throttle = framework.ThrottleMiddleware(a.cfg.Throttle)
	}

	a.handle(http.MethodGet, "/", a.index)
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		a.handle(m, "/write.json", a.write)
	}
	a.handle(http.MethodDelete, "/delete.json", a.noContent)
	a.handle(http.MethodGet, "/session.json", a.sessionVisit)
	a.handle(http.MethodDelete, "/session.json", a.sessionDestroy)
	a.handle(http.MethodGet, "/whoami.json", a.whoami)
	a.handle(http.MethodGet, "/cookies.json", a.cookies)
	if a.cfg.Debug {
		a.handle(http.MethodGet, "/fail.json", a.fail)
	}

	clog.InfoContextf(ctx, "[echoapp] registered %d routes", len(a.routes))
	return nil
}

// PluginBootstrap loads the configured plugins in order.
func (a *App) PluginBootstrap(ctx context.Context) error {
	for _, name := range a.cfg.Plugins {
		newPlugin, ok := registry[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
		}
		p := newPlugin()
		if err := p.Bootstrap(ctx, a); err != nil {
			return fmt.Errorf("bootstrap plugin %s: %w", name, err)
		}
		a.plugins = append(a.plugins, p)
	}
	return nil
}

// Middleware adds the throttle, when configured, and the session middleware.
func (a *App) Middleware(q *framework.MiddlewareQueue) *framework.MiddlewareQueue {
	if a.throttle != nil {
		q.Add(a.throttle)
	}
	return q.Add(framework.SessionMiddleware(a.cfg.Session.CookieName(shared.DefaultSessionCookie)))
}

// PluginMiddleware adds the middleware of every loaded plugin.
func (a *App) PluginMiddleware(q *framework.MiddlewareQueue) *framework.MiddlewareQueue {
	for _, p := range a.plugins {
		q = p.Middleware(q)
	}
	return q
}

// DispatchEvent forwards events to the application listeners.
func (a *App) DispatchEvent(ctx context.Context, name string, payload map[string]any) {
	a.events.DispatchEvent(ctx, name, payload)
}

// Handle routes req by method and path.
func (a *App) Handle(ctx context.Context, req *framework.Request) (*framework.Response, error) {
	path := req.Path()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	if h, ok := a.routes[route{req.Method(), path}]; ok {
		return h(ctx, req)
	}
	for r := range a.routes {
		if r.path == path {
			resp := framework.ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return resp, nil
		}
	}
	return framework.ErrorResponse(http.StatusNotFound, "not_found", "not found"), nil
}

func (a *App) handle(method, path string, h framework.HandlerFunc) {
	a.routes[route{method, path}] = h
}
