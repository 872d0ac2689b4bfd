// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package echoapp

import (
	"context"
	"net/http"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

func (a *App) index(_ context.Context, _ *framework.Request) (*framework.Response, error) {
	return framework.JSONResponse(http.StatusOK, map[string]string{"hello": "world"})
}

// write echoes the parsed body. Uploaded files are reported by metadata.
func (a *App) write(_ context.Context, req *framework.Request) (*framework.Response, error) {
	return framework.JSONResponse(http.StatusOK, map[string]any{
		"method": req.Method(),
		"body":   describeBody(req.ParsedBody()),
	})
}

func (a *App) noContent(_ context.Context, _ *framework.Request) (*framework.Response, error) {
	return framework.NoContentResponse(), nil
}

func (a *App) sessionVisit(ctx context.Context, _ *framework.Request) (*framework.Response, error) {
	sess, err := framework.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}

	visits := 1
	if v, ok := sess.Get("visits"); ok {
		visits = toInt(v) + 1
	}
	sess.Set("visits", visits)

	return framework.JSONResponse(http.StatusOK, map[string]any{
		"session": sess.ID(),
		"visits":  visits,
	})
}

func (a *App) sessionDestroy(ctx context.Context, _ *framework.Request) (*framework.Response, error) {
	sess, err := framework.SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	sess.Destroy()
	return framework.NoContentResponse(), nil
}

func (a *App) whoami(_ context.Context, req *framework.Request) (*framework.Response, error) {
	user, _, _ := req.BasicAuth()
	return framework.JSONResponse(http.StatusOK, map[string]any{
		"user":     user,
		"clientIp": req.ClientIP(),
		"scheme":   req.Scheme(),
		"host":     req.Host(),
	})
}

// cookies sets one session-lifetime cookie and one with an explicit Max-Age.
func (a *App) cookies(_ context.Context, req *framework.Request) (*framework.Response, error) {
	resp, err := framework.JSONResponse(http.StatusOK, map[string]any{"cookies": req.Cookies()})
	if err != nil {
		return nil, err
	}
	resp.AddCookie(&http.Cookie{Name: "remember", Value: "1", Path: "/"})
	resp.AddCookie(&http.Cookie{Name: "flash", Value: "hi", Path: "/", MaxAge: 60})
	return resp, nil
}

func (a *App) fail(_ context.Context, _ *framework.Request) (*framework.Response, error) {
	return nil, ErrFailRoute
}

func describeBody(body any) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(*shared.UploadedFile); ok {
			out[k] = map[string]any{
				"clientFilename": f.ClientFilename,
				"size":           f.Size,
				"error":          f.Error,
			}
			continue
		}
		out[k] = v
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
