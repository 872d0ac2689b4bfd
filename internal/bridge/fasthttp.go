// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/chainguard-dev/clog"
	"github.com/valyala/fasthttp"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// FastHTTPHandler serves b over fasthttp. Every request context derives from
// base, which should carry the logger.
func FastHTTPHandler(base context.Context, b *Bridge) fasthttp.RequestHandler {
	return func(fctx *fasthttp.RequestCtx) {
		ctx, cancel := context.WithCancel(base)
		defer cancel()

		req, err := RequestFromFastHTTP(fctx)
		if err != nil {
			clog.FromContext(ctx).Errorf("[bridge] failed to read request: %v", err)
			fctx.Error("failed to read request", http.StatusBadRequest)
			return
		}

		resp, err := b.Handle(ctx, req)
		if err != nil {
			clog.FromContext(ctx).Errorf("[bridge] request failed: %s %s: %v", req.Method, req.URI.Path, err)
			fctx.Error(http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		for k, vs := range resp.Header {
			if http.CanonicalHeaderKey(k) == "Set-Cookie" {
				continue
			}
			for _, v := range vs {
				fctx.Response.Header.Add(k, v)
			}
		}
		for _, v := range resp.Header.Values("Set-Cookie") {
			c := fasthttp.AcquireCookie()
			if err := c.Parse(v); err == nil {
				fctx.Response.Header.SetCookie(c)
			}
			fasthttp.ReleaseCookie(c)
		}
		fctx.SetStatusCode(resp.StatusCode)
		fctx.SetBody(resp.Body)
	}
}

// RequestFromFastHTTP converts a fasthttp request into a generic request.
// fasthttp reuses its buffers, so every value is copied.
func RequestFromFastHTTP(fctx *fasthttp.RequestCtx) (*shared.Request, error) {
	target, err := url.ParseRequestURI(string(fctx.RequestURI()))
	if err != nil {
		return nil, fmt.Errorf("parse request uri: %w", err)
	}

	scheme := "http"
	if fctx.IsTLS() {
		scheme = "https"
	}

	headers := make(http.Header)
	fctx.Request.Header.VisitAll(func(k, v []byte) {
		headers.Add(string(k), string(v))
	})
	remote := fctx.RemoteIP().String()
	if headers.Get("X-Forwarded-For") == "" && remote != "" {
		headers.Set("X-Forwarded-For", remote)
	}

	cookies := make(map[string]string)
	fctx.Request.Header.VisitAllCookie(func(k, v []byte) {
		if _, ok := cookies[string(k)]; !ok {
			cookies[string(k)] = string(v)
		}
	})

	req := &shared.Request{
		Method: string(fctx.Method()),
		URI: &url.URL{
			Scheme:   scheme,
			Host:     string(fctx.Host()),
			Path:     target.Path,
			RawPath:  target.RawPath,
			RawQuery: target.RawQuery,
		},
		Protocol: string(fctx.Request.Header.Protocol()),
		Headers:  headers,
		Cookies:  cookies,
		ServerParams: map[string]string{
			framework.EnvRemoteAddr: remoteAddr(fctx.RemoteAddr()),
		},
	}

	if isMultipart(string(fctx.Request.Header.ContentType())) {
		form, err := fctx.MultipartForm()
		if err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		body, files, err := fromMultipart(form)
		if err != nil {
			return nil, err
		}
		req.ParsedBody = body
		req.UploadedFiles = files
		return req, nil
	}

	req.Body = append([]byte(nil), fctx.PostBody()...)
	return req, nil
}

func remoteAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
