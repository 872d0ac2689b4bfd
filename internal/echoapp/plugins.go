// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package echoapp

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cruxstack/workerbridge/internal/framework"
)

// ErrUnknownPlugin is returned by PluginBootstrap for unregistered plugin names.
var ErrUnknownPlugin = errors.New("unknown plugin")

// HeaderRequestID carries the request id set by the requestid plugin.
const HeaderRequestID = "X-Request-Id"

// Plugin extends the application during plugin bootstrap.
type Plugin interface {
	Bootstrap(ctx context.Context, app *App) error
	Middleware(q *framework.MiddlewareQueue) *framework.MiddlewareQueue
}

var registry = map[string]func() Plugin{
	"requestid": func() Plugin { return requestIDPlugin{} },
}

// requestIDPlugin tags every request and response with a request id,
// reusing one sent by the client.
type requestIDPlugin struct{}

func (requestIDPlugin) Bootstrap(context.Context, *App) error { return nil }

func (requestIDPlugin) Middleware(q *framework.MiddlewareQueue) *framework.MiddlewareQueue {
	return q.Prepend(framework.MiddlewareFunc(func(ctx context.Context, req *framework.Request, next framework.Handler) (*framework.Response, error) {
		id := req.Header(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		resp, err := next.Handle(ctx, req.WithAttribute("requestId", id).WithHeader(HeaderRequestID, id))
		if err != nil {
			return nil, err
		}
		resp.Header.Set(HeaderRequestID, id)
		return resp, nil
	}))
}
