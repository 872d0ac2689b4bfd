// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainguard-dev/clog/slogtest"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/echoapp"
)

func testBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, bridge.ConfigFile), []byte("name: lambda\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := bridge.New(slogtest.Context(t), root, echoapp.New)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func resetGlobals(t *testing.T, load func(context.Context) (*bridge.Bridge, error)) {
	t.Helper()
	orig := loadBridge
	loadBridge = load
	mu.Lock()
	current = nil
	mu.Unlock()
	t.Cleanup(func() {
		loadBridge = orig
		mu.Lock()
		current = nil
		mu.Unlock()
	})
}

func TestEnsureLoadedDoesNotBlockHealth(t *testing.T) {
	b := testBridge(t)
	started := make(chan struct{})
	release := make(chan struct{})
	resetGlobals(t, func(context.Context) (*bridge.Bridge, error) {
		close(started)
		<-release
		return b, nil
	})

	done := make(chan *bridge.Bridge, 1)
	go func() {
		got, err := ensureLoaded(slogtest.Context(t))
		if err != nil {
			t.Errorf("ensureLoaded() returned error: %v", err)
		}
		done <- got
	}()
	<-started

	health := make(chan *bridge.Bridge, 1)
	go func() { health <- loaded() }()
	select {
	case got := <-health:
		if got != nil {
			t.Errorf("loaded() = %v while loading, want nil", got)
		}
	case <-time.After(time.Second):
		t.Fatal("loaded() blocked while the bridge was loading")
	}

	close(release)
	if got := <-done; got != b {
		t.Errorf("ensureLoaded() = %p, want %p", got, b)
	}
	if got := loaded(); got != b {
		t.Errorf("loaded() = %p, want %p", got, b)
	}
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	b := testBridge(t)
	calls := 0
	resetGlobals(t, func(context.Context) (*bridge.Bridge, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ssm unavailable")
		}
		return b, nil
	})

	ctx := slogtest.Context(t)
	if _, err := ensureLoaded(ctx); err == nil {
		t.Fatal("ensureLoaded() expected error on first attempt")
	}
	if loaded() != nil {
		t.Fatal("failed load cached a bridge")
	}
	for range 2 {
		if got, err := ensureLoaded(ctx); err != nil || got != b {
			t.Fatalf("ensureLoaded() = %p, %v; want %p", got, err, b)
		}
	}
	if calls != 2 {
		t.Errorf("load called %d times, want 2", calls)
	}
}
