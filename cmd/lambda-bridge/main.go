// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/configwait"
	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/host"
	"github.com/cruxstack/workerbridge/internal/shared"
	"github.com/cruxstack/workerbridge/internal/ssmresolver"
)

var (
	// opsAdapter serves /healthz and /metrics through the net/http mux
	opsAdapter *httpadapter.HandlerAdapterV2

	registry = prometheus.NewRegistry()

	mu      sync.Mutex
	current *bridge.Bridge
	store   framework.SessionStore
)

func init() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if loaded() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	opsAdapter = httpadapter.NewV2(mux)
}

func loaded() *bridge.Bridge {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// ensureLoaded returns the cached bridge or builds one on first use. The
// build runs without holding mu so /healthz keeps answering during SSM
// retries. Failed attempts are retried on the next invocation.
func ensureLoaded(ctx context.Context) (*bridge.Bridge, error) {
	if b := loaded(); b != nil {
		return b, nil
	}

	b, err := loadBridge(ctx)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		// a concurrent invocation won
		_ = b.Close()
		return current, nil
	}
	current = b
	return b, nil
}

// loadBridge resolves SSM references and builds a bridge.
var loadBridge = func(ctx context.Context) (*bridge.Bridge, error) {
	var b *bridge.Bridge
	err := configwait.Wait(ctx, ssmresolver.RetryConfig(), func(ctx context.Context) error {
		resolver, err := ssmresolver.New(ctx)
		if err != nil {
			return err
		}
		if err := resolver.ResolveEnvironment(ctx); err != nil {
			return err
		}

		cfg, err := host.LoadConfig()
		if err != nil {
			return err
		}
		st, err := sessionStore(ctx, cfg)
		if err != nil {
			return err
		}
		b, err = host.NewBridge(ctx, cfg, st, registry)
		return err
	})
	return b, err
}

// sessionStore opens the shared session store once.
func sessionStore(ctx context.Context, cfg host.Config) (framework.SessionStore, error) {
	mu.Lock()
	defer mu.Unlock()
	if store == nil {
		st, err := host.OpenSessionStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = st
	}
	return store, nil
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	ctx = clog.WithLogger(ctx, clog.New(shared.NewSlogHandler()))
	log := clog.FromContext(ctx)

	path := req.RawPath
	method := req.RequestContext.HTTP.Method
	log.Infof("request: method=%s path=%s", method, path)

	switch path {
	case "/healthz", "/metrics":
		return opsAdapter.ProxyWithContext(ctx, req)
	}

	b, err := ensureLoaded(ctx)
	if err != nil {
		log.Warnf("failed to load application: %v", err)
		return serviceUnavailableResponse(), nil
	}

	gr, err := host.RequestFromAPIGatewayV2(ctx, req)
	if err != nil {
		log.Warnf("bad request event: %v", err)
		return errorResponse(http.StatusBadRequest, "bad_request"), nil
	}

	resp, err := b.Handle(ctx, gr)
	if err != nil {
		log.Errorf("request failed: %s %s: %v", method, path, err)
		return errorResponse(http.StatusInternalServerError, "internal_error"), nil
	}
	return host.ResponseToAPIGatewayV2(resp), nil
}

func errorResponse(status int, code string) events.APIGatewayV2HTTPResponse {
	return host.ResponseToAPIGatewayV2(framework.ErrorResponse(status, code, http.StatusText(status)))
}

func serviceUnavailableResponse() events.APIGatewayV2HTTPResponse {
	resp := errorResponse(http.StatusServiceUnavailable, "service_unavailable")
	resp.Headers["Retry-After"] = "5"
	return resp
}

func main() {
	lambda.Start(handler)
}
