// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// ErrNilResponse is returned by the Runner when a stage returns neither a
// response nor an error.
var ErrNilResponse = errors.New("handler returned nil response")

// Handler produces a response for a request.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware is one stage of the pipeline. It may short-circuit by returning
// without calling next, or adjust the request and response around next.
type Middleware interface {
	Process(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, req *Request, next Handler) (*Response, error)

// Process calls f.
func (f MiddlewareFunc) Process(ctx context.Context, req *Request, next Handler) (*Response, error) {
	return f(ctx, req, next)
}

// MiddlewareQueue is an ordered list of middleware. The first entry runs outermost.
type MiddlewareQueue struct {
	items []Middleware
}

// NewMiddlewareQueue creates a queue holding mw.
func NewMiddlewareQueue(mw ...Middleware) *MiddlewareQueue {
	return &MiddlewareQueue{items: slices.Clone(mw)}
}

// Add appends mw to the end of the queue.
func (q *MiddlewareQueue) Add(mw ...Middleware) *MiddlewareQueue {
	q.items = append(q.items, mw...)
	return q
}

// Prepend inserts mw at the front of the queue.
func (q *MiddlewareQueue) Prepend(mw ...Middleware) *MiddlewareQueue {
	q.items = append(slices.Clone(mw), q.items...)
	return q
}

// Insert places mw at index i, clamped to the queue bounds.
func (q *MiddlewareQueue) Insert(i int, mw ...Middleware) *MiddlewareQueue {
	i = max(0, min(i, len(q.items)))
	q.items = slices.Insert(q.items, i, mw...)
	return q
}

// Len returns the number of queued middleware.
func (q *MiddlewareQueue) Len() int { return len(q.items) }

// All returns the queued middleware in execution order.
func (q *MiddlewareQueue) All() []Middleware { return slices.Clone(q.items) }

// Runner executes a middleware queue and finally a handler.
type Runner struct{}

// Run passes req through every middleware in q and then to final.
// A nil queue runs final directly. Every stage sees a non-nil Header.
func (Runner) Run(ctx context.Context, q *MiddlewareQueue, req *Request, final Handler) (*Response, error) {
	var items []Middleware
	if q != nil {
		items = q.All()
	}
	return (&chain{items: items, final: final}).Handle(ctx, req)
}

type chain struct {
	items []Middleware
	index int
	final Handler
}

func (c *chain) Handle(ctx context.Context, req *Request) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	if c.index < len(c.items) {
		next := &chain{items: c.items, index: c.index + 1, final: c.final}
		resp, err = c.items[c.index].Process(ctx, req, next)
	} else {
		resp, err = c.final.Handle(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNilResponse
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp, nil
}
