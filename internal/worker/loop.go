// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// Handler dispatches a generic request. *bridge.Bridge implements it.
type Handler interface {
	Handle(ctx context.Context, req *shared.Request) (*framework.Response, error)
}

// Loop serves requests read from r and writes responses to w, one at a time.
type Loop struct {
	handler Handler
	r       io.Reader
	w       io.Writer
}

// NewLoop creates a loop over the given stream.
func NewLoop(h Handler, r io.Reader, w io.Writer) *Loop {
	return &Loop{handler: h, r: r, w: w}
}

// Serve processes frames until the input ends, ctx is cancelled or the
// stream breaks. Requests that fail to decode get a 400 frame; pipeline
// errors and panics get a 500 frame and the loop continues.
func (l *Loop) Serve(ctx context.Context) error {
	log := clog.FromContext(ctx)

	for served := 0; ; served++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := ReadFrame(l.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Infof("[worker] input closed after %d requests", served)
				return nil
			}
			return err
		}

		resp := l.serveOne(ctx, payload)

		out, err := EncodeResponse(resp)
		if err != nil {
			log.Errorf("[worker] %v", err)
			out, err = EncodeResponse(errorResponse(http.StatusInternalServerError))
			if err != nil {
				return err
			}
		}
		if err := WriteFrame(l.w, out); err != nil {
			return err
		}
		if f, ok := l.w.(flusher); ok {
			if err := f.Flush(); err != nil {
				return fmt.Errorf("flush response frame: %w", err)
			}
		}
	}
}

// flusher is implemented by buffered outputs such as *bufio.Writer.
type flusher interface {
	Flush() error
}

func (l *Loop) serveOne(ctx context.Context, payload []byte) (resp *framework.Response) {
	req, err := DecodeRequest(payload)
	if err != nil {
		clog.FromContext(ctx).Warnf("[worker] bad request frame: %v", err)
		return errorResponse(http.StatusBadRequest)
	}

	defer func() {
		if r := recover(); r != nil {
			clog.FromContext(ctx).Errorf("[worker] panic serving %s %s: %v", req.Method, req.URI.Path, r)
			resp = errorResponse(http.StatusInternalServerError)
		}
	}()

	resp, err = l.handler.Handle(ctx, req)
	if err != nil {
		clog.FromContext(ctx).Errorf("[worker] request failed: %s %s: %v", req.Method, req.URI.Path, err)
		return errorResponse(http.StatusInternalServerError)
	}
	return resp
}

func errorResponse(status int) *framework.Response {
	code := "internal_error"
	if status == http.StatusBadRequest {
		code = "bad_request"
	}
	return framework.ErrorResponse(status, code, fmt.Sprintf("%d %s", status, http.StatusText(status)))
}
