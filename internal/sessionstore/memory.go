// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package sessionstore provides the server-side session stores used by the
// bridge: a bounded in-memory LRU with idle expiry and a SQLite store.
package sessionstore

import (
	"context"
	"maps"
	"time"

	expirablelru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

var _ framework.SessionStore = (*MemoryStore)(nil)

// MemoryStore keeps sessions in a size-bounded LRU. Entries expire ttl after
// their last save. It is local to one process.
type MemoryStore struct {
	cache *expirablelru.LRU[string, map[string]any]
}

// NewMemoryStore creates a store holding at most size sessions.
// Non-positive arguments select the package defaults.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = shared.DefaultSessionCacheSize
	}
	if ttl <= 0 {
		ttl = shared.DefaultSessionTTL
	}
	return &MemoryStore{cache: expirablelru.NewLRU[string, map[string]any](size, nil, ttl)}
}

// Load returns a copy of the values stored under id.
func (s *MemoryStore) Load(_ context.Context, id string) (map[string]any, bool, error) {
	values, ok := s.cache.Get(id)
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(values), true, nil
}

// Save stores a copy of values under id and refreshes its expiry.
func (s *MemoryStore) Save(_ context.Context, id string, values map[string]any) error {
	s.cache.Add(id, maps.Clone(values))
	return nil
}

// Delete removes id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int { return s.cache.Len() }

// Close drops every session.
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
