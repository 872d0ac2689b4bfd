// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNoSession is returned when no session scope is attached to the context.
	ErrNoSession = errors.New("no session scope in context")

	// ErrSessionClosed is returned when a session is requested after its scope closed.
	ErrSessionClosed = errors.New("session scope closed")

	// ErrNoSessionStore is returned when the scope has no backing store.
	ErrNoSessionStore = errors.New("no session store configured")
)

// SessionStore persists session values by id.
type SessionStore interface {
	// Load returns the values stored for id. Unknown ids report ok=false.
	Load(ctx context.Context, id string) (values map[string]any, ok bool, err error)

	// Save stores values under id.
	Save(ctx context.Context, id string, values map[string]any) error

	// Delete removes id.
	Delete(ctx context.Context, id string) error

	// Close releases the store.
	Close() error
}

// Session is the per-request view of server-side session state.
type Session struct {
	mu        sync.Mutex
	id        string
	values    map[string]any
	isNew     bool
	dirty     bool
	destroyed bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.isNew }

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.dirty = true
}

// Destroy marks the session for removal when the scope closes.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// SessionScope owns the session of a single request. The session is loaded
// lazily on first use and written back and released by Close, which runs at
// most once.
type SessionScope struct {
	store     SessionStore
	requestID string

	mu      sync.Mutex
	session *Session
	closed  bool

	once     sync.Once
	closeErr error
}

// NewSessionScope creates a scope over store for the session id sent by the
// client, which may be empty.
func NewSessionScope(store SessionStore, requestID string) *SessionScope {
	return &SessionScope{store: store, requestID: requestID}
}

// Session returns the request session, loading or creating it on first call.
func (s *SessionScope) Session(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.session != nil {
		return s.session, nil
	}
	if s.store == nil {
		return nil, ErrNoSessionStore
	}

	if s.requestID != "" {
		values, ok, err := s.store.Load(ctx, s.requestID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if ok {
			if values == nil {
				values = make(map[string]any)
			}
			s.session = &Session{id: s.requestID, values: values}
			return s.session, nil
		}
	}

	s.session = &Session{id: uuid.NewString(), values: make(map[string]any), isNew: true}
	return s.session, nil
}

// Active returns the session if one was acquired, without loading it.
func (s *SessionScope) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Close writes back a modified or new session, deletes a destroyed one and
// releases the handle. Only the first call has an effect; later calls return
// the first result.
func (s *SessionScope) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		sess := s.session
		s.session = nil
		s.closed = true
		s.mu.Unlock()

		if sess == nil {
			return
		}

		sess.mu.Lock()
		values := maps.Clone(sess.values)
		destroyed, dirty, isNew := sess.destroyed, sess.dirty, sess.isNew
		sess.mu.Unlock()

		switch {
		case destroyed && !isNew:
			s.closeErr = s.store.Delete(ctx, sess.id)
		case destroyed:
		case dirty || isNew:
			s.closeErr = s.store.Save(ctx, sess.id, values)
		}
	})
	return s.closeErr
}

type sessionScopeKey struct{}

// WithSessionScope returns a context carrying scope.
func WithSessionScope(ctx context.Context, scope *SessionScope) context.Context {
	return context.WithValue(ctx, sessionScopeKey{}, scope)
}

// SessionScopeFromContext returns the scope attached to ctx, or nil.
func SessionScopeFromContext(ctx context.Context) *SessionScope {
	scope, _ := ctx.Value(sessionScopeKey{}).(*SessionScope)
	return scope
}

// SessionFromContext returns the request session attached to ctx.
func SessionFromContext(ctx context.Context) (*Session, error) {
	scope := SessionScopeFromContext(ctx)
	if scope == nil {
		return nil, ErrNoSession
	}
	return scope.Session(ctx)
}

// SessionMiddleware emits the session cookie: it sets the cookie for sessions
// created by this request and expires it for destroyed ones.
func SessionMiddleware(cookieName string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		resp, err := next.Handle(ctx, req)
		if err != nil {
			return nil, err
		}

		scope := SessionScopeFromContext(ctx)
		if scope == nil {
			return resp, nil
		}
		sess := scope.Active()
		if sess == nil {
			return resp, nil
		}

		switch {
		case sess.Destroyed():
			resp.AddCookie(&http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		case sess.IsNew():
			resp.AddCookie(&http.Cookie{
				Name:     cookieName,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				Secure:   req.IsSecure(),
				SameSite: http.SameSiteLaxMode,
			})
		}
		return resp, nil
	})
}
