// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"sync"
	"testing"

	"github.com/chainguard-dev/clog/slogtest"
)

type fakeStore struct {
	mu      sync.Mutex
	data    map[string]map[string]any
	saves   int
	deletes int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]any)}
}

func (s *fakeStore) Load(_ context.Context, id string) (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[id]
	return maps.Clone(v), ok, nil
}

func (s *fakeStore) Save(_ context.Context, id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[id] = maps.Clone(values)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.data, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func TestSessionScopeLifecycle(t *testing.T) {
	ctx := slogtest.Context(t)
	store := newFakeStore()

	scope := NewSessionScope(store, "")
	sess, err := scope.Session(ctx)
	if err != nil {
		t.Fatalf("Session() unexpected error: %v", err)
	}
	if !sess.IsNew() || sess.ID() == "" {
		t.Fatalf("expected a new session with an id, got %+v", sess)
	}
	again, _ := scope.Session(ctx)
	if again != sess {
		t.Error("Session() returned a different session on second call")
	}
	sess.Set("count", 1)

	if err := scope.Close(ctx); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := scope.Close(ctx); err != nil {
		t.Fatalf("second Close() unexpected error: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
	if _, err := scope.Session(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Session() after Close error = %v, want ErrSessionClosed", err)
	}

	next := NewSessionScope(store, sess.ID())
	loaded, err := next.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.IsNew() {
		t.Error("existing session reported as new")
	}
	if v, _ := loaded.Get("count"); v != 1 {
		t.Errorf("Get(count) = %v, want 1", v)
	}
	if err := next.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if store.saves != 1 {
		t.Errorf("unmodified session was saved, saves = %d", store.saves)
	}
}

func TestSessionScopeUnknownID(t *testing.T) {
	ctx := slogtest.Context(t)
	scope := NewSessionScope(newFakeStore(), "does-not-exist")
	sess, err := scope.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !sess.IsNew() || sess.ID() == "does-not-exist" {
		t.Errorf("unknown id should start a fresh session, got id %q new=%v", sess.ID(), sess.IsNew())
	}
}

func TestSessionScopeDestroy(t *testing.T) {
	ctx := slogtest.Context(t)
	store := newFakeStore()
	store.data["abc"] = map[string]any{"k": "v"}

	scope := NewSessionScope(store, "abc")
	sess, err := scope.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sess.Destroy()
	if err := scope.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if store.deletes != 1 {
		t.Errorf("deletes = %d, want 1", store.deletes)
	}
	if _, ok := store.data["abc"]; ok {
		t.Error("destroyed session still stored")
	}
}

func TestSessionScopeUnused(t *testing.T) {
	ctx := slogtest.Context(t)
	store := newFakeStore()
	scope := NewSessionScope(store, "")
	if err := scope.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if store.saves != 0 {
		t.Errorf("unused scope saved a session")
	}
}

func TestSessionScopeCloseError(t *testing.T) {
	ctx := slogtest.Context(t)
	store := newFakeStore()
	store.saveErr = errors.New("disk full")

	scope := NewSessionScope(store, "")
	if _, err := scope.Session(ctx); err != nil {
		t.Fatal(err)
	}
	if err := scope.Close(ctx); !errors.Is(err, store.saveErr) {
		t.Errorf("Close() error = %v, want %v", err, store.saveErr)
	}
	if err := scope.Close(ctx); !errors.Is(err, store.saveErr) {
		t.Errorf("second Close() error = %v, want first result", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestSessionFromContext(t *testing.T) {
	ctx := slogtest.Context(t)
	if _, err := SessionFromContext(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("SessionFromContext() error = %v, want ErrNoSession", err)
	}

	scope := NewSessionScope(nil, "")
	ctx = WithSessionScope(ctx, scope)
	if SessionScopeFromContext(ctx) != scope {
		t.Error("SessionScopeFromContext() returned a different scope")
	}
	if _, err := SessionFromContext(ctx); !errors.Is(err, ErrNoSessionStore) {
		t.Errorf("SessionFromContext() error = %v, want ErrNoSessionStore", err)
	}
}

func TestSessionMiddleware(t *testing.T) {
	const cookie = "SID"

	tests := []struct {
		name       string
		existing   string
		handle     func(s *Session)
		wantCookie bool
		wantMaxAge int
	}{
		{
			name:       "new session sets cookie",
			handle:     func(s *Session) { s.Set("a", 1) },
			wantCookie: true,
		},
		{
			name:       "existing session sets nothing",
			existing:   "abc",
			handle:     func(s *Session) { s.Set("a", 1) },
			wantCookie: false,
		},
		{
			name:       "destroyed session expires cookie",
			existing:   "abc",
			handle:     func(s *Session) { s.Destroy() },
			wantCookie: true,
			wantMaxAge: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.data["abc"] = map[string]any{}
			scope := NewSessionScope(store, tt.existing)
			ctx := WithSessionScope(slogtest.Context(t), scope)

			final := HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				sess, err := SessionFromContext(ctx)
				if err != nil {
					return nil, err
				}
				tt.handle(sess)
				return NoContentResponse(), nil
			})

			resp, err := Runner{}.Run(ctx, NewMiddlewareQueue(SessionMiddleware(cookie)), mustRequest(t, Env{}), final)
			if err != nil {
				t.Fatal(err)
			}

			c := resp.Cookies.Get(cookie)
			if (c != nil) != tt.wantCookie {
				t.Fatalf("cookie present = %v, want %v", c != nil, tt.wantCookie)
			}
			if c != nil && c.MaxAge != tt.wantMaxAge {
				t.Errorf("MaxAge = %d, want %d", c.MaxAge, tt.wantMaxAge)
			}
			if c != nil && tt.wantMaxAge == 0 && c.SameSite != http.SameSiteLaxMode {
				t.Errorf("SameSite = %v, want Lax", c.SameSite)
			}
		})
	}
}
