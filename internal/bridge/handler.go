// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// PayloadMiddleware is the EventBuildMiddleware payload key holding the queue.
const PayloadMiddleware = "middleware"

// Handle normalizes req, runs it through the application middleware and
// returns the response with cookies flattened into Set-Cookie headers.
//
// The request session is closed exactly once before Handle returns, also
// when the pipeline fails or panics. Pipeline errors are returned
// unchanged; a session close error is returned only when the pipeline
// succeeded.
func (b *Bridge) Handle(ctx context.Context, req *shared.Request) (resp *framework.Response, err error) {
	start := b.now()
	defer func() {
		b.metrics.observe(req.Method, resp, err, b.now().Sub(start))
	}()

	fr, err := b.Normalize(req)
	if err != nil {
		return nil, err
	}

	sessionID, _ := fr.Cookie(b.cookieName)
	scope := framework.NewSessionScope(b.sessions, sessionID)
	ctx = framework.WithSessionScope(ctx, scope)
	defer func() {
		cerr := scope.Close(ctx)
		if cerr == nil {
			return
		}
		clog.ErrorContextf(ctx, "[bridge] failed to close session: %v", cerr)
		if err == nil && resp != nil {
			resp, err = nil, fmt.Errorf("close session: %w", cerr)
		}
	}()

	queue := b.buildMiddleware(ctx)

	resp, err = b.runner.Run(ctx, queue, fr, b.app)
	if err != nil {
		return nil, err
	}

	flattenCookies(resp)
	return resp, nil
}

// buildMiddleware asks the application, then its plugins, for middleware and
// lets event listeners replace or extend the queue.
func (b *Bridge) buildMiddleware(ctx context.Context) *framework.MiddlewareQueue {
	queue := b.app.Middleware(framework.NewMiddlewareQueue())
	if queue == nil {
		queue = framework.NewMiddlewareQueue()
	}
	if p, ok := b.app.(framework.PluginApplication); ok {
		if q := p.PluginMiddleware(queue); q != nil {
			queue = q
		}
	}

	payload := map[string]any{PayloadMiddleware: queue}
	if b.events != nil {
		b.events.DispatchEvent(ctx, framework.EventBuildMiddleware, payload)
	}
	if d, ok := b.app.(framework.EventDispatcher); ok {
		d.DispatchEvent(ctx, framework.EventBuildMiddleware, payload)
	}
	if q, ok := payload[PayloadMiddleware].(*framework.MiddlewareQueue); ok && q != nil {
		queue = q
	}
	return queue
}

// flattenCookies appends one Set-Cookie value per response cookie after any
// raw Set-Cookie headers. Cookies without an expiry never expire.
func flattenCookies(resp *framework.Response) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Cookies.Len() == 0 {
		return
	}

	values := resp.Header.Values("Set-Cookie")
	for _, c := range resp.Cookies.All() {
		if !framework.HasExpiry(c) {
			c = framework.WithNeverExpire(c)
		}
		if v := c.String(); v != "" {
			values = append(values, v)
		}
	}
	resp.Header["Set-Cookie"] = values
}
