// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
)

// ThrottleMiddleware rejects requests with 429 once the shared token bucket
// is empty. The limiter is safe for concurrent use.
func ThrottleMiddleware(cfg ThrottleConfig) Middleware {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	return MiddlewareFunc(func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if !limiter.Allow() {
			resp := ErrorResponse(http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return next.Handle(ctx, req)
	})
}
