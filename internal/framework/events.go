// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"sync"
)

// EventBuildMiddleware is dispatched with the assembled middleware queue
// under the "middleware" payload key before the pipeline runs.
const EventBuildMiddleware = "Server.buildMiddleware"

// EventDispatcher delivers named events. Listeners may mutate the payload.
type EventDispatcher interface {
	DispatchEvent(ctx context.Context, name string, payload map[string]any)
}

// Listener handles a dispatched event.
type Listener func(ctx context.Context, payload map[string]any)

// EventManager is a concurrency-safe EventDispatcher with per-name listeners.
type EventManager struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewEventManager creates an EventManager without listeners.
func NewEventManager() *EventManager {
	return &EventManager{listeners: make(map[string][]Listener)}
}

// On registers l for events called name.
func (m *EventManager) On(name string, l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[name] = append(m.listeners[name], l)
}

// DispatchEvent calls every listener registered for name in registration order.
func (m *EventManager) DispatchEvent(ctx context.Context, name string, payload map[string]any) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners[name]...)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, payload)
	}
}
