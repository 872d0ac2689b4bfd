// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package configwait

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chainguard-dev/clog"
)

// ReloadFunc rebuilds whatever the host serves. On error the previous state
// stays in place.
type ReloadFunc func(ctx context.Context) error

// Reloader runs a ReloadFunc on SIGHUP or Trigger. At most one reload runs at
// a time and at most one more is queued.
type Reloader struct {
	reload  ReloadFunc
	pending chan struct{}
	signals []os.Signal

	mu      sync.Mutex
	running bool
}

// NewReloader creates a reloader listening for SIGHUP.
func NewReloader(reload ReloadFunc) *Reloader {
	return &Reloader{
		reload:  reload,
		pending: make(chan struct{}, 1),
		signals: []os.Signal{syscall.SIGHUP},
	}
}

// Start runs the reload loop until ctx is done. The returned channel is
// closed when the loop exits.
func (r *Reloader) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, r.signals...)

	go func() {
		defer close(done)
		defer signal.Stop(sig)

		log := clog.FromContext(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sig:
				log.Infof("[reloader] received %s, reloading", s)
				r.run(ctx)
			case <-r.pending:
				r.run(ctx)
			}
		}
	}()
	return done
}

// Trigger queues a reload. It never blocks; a trigger while one is already
// queued is dropped.
func (r *Reloader) Trigger() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

func (r *Reloader) run(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log := clog.FromContext(ctx)
	if err := r.reload(ctx); err != nil {
		log.Errorf("[reloader] reload failed, keeping previous application: %v", err)
		return
	}
	log.Info("[reloader] reload complete")
}
