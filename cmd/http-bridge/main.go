// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/configwait"
	"github.com/cruxstack/workerbridge/internal/host"
	"github.com/cruxstack/workerbridge/internal/shared"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.New(shared.NewSlogHandler()))
	log := clog.FromContext(ctx)

	cfg, err := host.LoadConfig()
	if err != nil {
		log.Errorf("failed to load host config: %v", err)
		os.Exit(1)
	}

	store, err := host.OpenSessionStore(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open session store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// current is swapped on reload; requests in flight keep the bridge they loaded
	var current atomic.Pointer[bridge.Bridge]

	gate := configwait.NewReadyGate(nil, []string{"/healthz", "/metrics"})
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, "ok"
		if !gate.IsReady() {
			status, body = http.StatusServiceUnavailable, "not ready"
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			clog.FromContext(r.Context()).Errorf("failed to write health response: %v", err)
		}
	})
	if cfg.Metrics {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b := current.Load()
		if b == nil {
			http.Error(w, "application not loaded", http.StatusServiceUnavailable)
			return
		}
		bridge.HTTPHandler(b).ServeHTTP(w, r)
	})
	gate.SetHandler(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	shutdown, errCh := serve(ctx, cfg.Engine, addr, gate, &current)
	log.Infof("Starting %s server on %s (waiting for application root %s...)", cfg.Engine, addr, cfg.RootDir)

	load := func(ctx context.Context) error {
		b, err := host.NewBridge(ctx, cfg, store, reg)
		if err != nil {
			return err
		}
		if old := current.Swap(b); old != nil {
			if err := old.Close(); err != nil {
				clog.FromContext(ctx).Warnf("failed to close previous bridge: %v", err)
			}
		}
		gate.SetReady()
		return nil
	}

	go func() {
		if err := configwait.Wait(ctx, configwait.NewConfigFromEnv(), load); err != nil {
			log.Errorf("failed to load application after retries: %v", err)
			cancel()
			return
		}
		log.Infof("Application loaded, service is ready")

		configwait.NewReloader(load).Start(ctx)
		log.Infof("Reloader started (send SIGHUP to reload the application root)")
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Errorf("server error: %v", err)
	}
	log.Infof("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown error: %v", err)
	}
	if b := current.Load(); b != nil {
		_ = b.Close()
	}
}

// serve starts the selected engine in the background. The fasthttp engine
// dispatches bridge traffic natively and routes everything else through the
// net/http gate.
func serve(ctx context.Context, engine, addr string, gate *configwait.ReadyGate, current *atomic.Pointer[bridge.Bridge]) (func(context.Context) error, <-chan error) {
	errCh := make(chan error, 1)

	if engine == host.EngineFastHTTP {
		fallback := fasthttpadaptor.NewFastHTTPHandler(gate)
		base := context.WithoutCancel(ctx)
		srv := &fasthttp.Server{
			Handler: func(fctx *fasthttp.RequestCtx) {
				b := current.Load()
				switch path := string(fctx.Path()); {
				case b == nil || !gate.IsReady(), path == "/healthz", path == "/metrics":
					fallback(fctx)
				default:
					bridge.FastHTTPHandler(base, b)(fctx)
				}
			},
			MaxRequestBodySize: shared.DefaultMaxBodySize,
			ReadTimeout:        shared.DefaultReadHeaderTimeout,
			IdleTimeout:        30 * time.Second,
		}
		go func() { errCh <- srv.ListenAndServe(addr) }()
		return func(context.Context) error { return srv.Shutdown() }, errCh
	}

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: shared.DefaultReadHeaderTimeout,
		Handler:           gate,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return srv.Shutdown, errCh
}
