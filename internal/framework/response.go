// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Response is the result of running the middleware pipeline. Middleware may
// adjust it on the way out; cookies are kept apart from headers until the
// bridge serializes them.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header contains response headers.
	Header http.Header

	// Body contains the raw response body.
	Body []byte

	// Cookies accumulated while handling the request.
	Cookies *CookieCollection
}

// NewResponse creates a Response with the given status code and body.
func NewResponse(statusCode int, body []byte) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       body,
		Cookies:    NewCookieCollection(),
	}
}

// NoContentResponse creates a 204 No Content response with an empty body.
func NoContentResponse() *Response {
	return NewResponse(http.StatusNoContent, nil)
}

// JSONResponse creates a JSON response with the given status code and data.
func JSONResponse(statusCode int, data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(statusCode, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

// ErrorResponse creates a JSON error response with the given status code and message.
func ErrorResponse(statusCode int, code, message string) *Response {
	resp, err := JSONResponse(statusCode, map[string]string{
		"error":   code,
		"message": message,
	})
	if err != nil {
		// a map of strings always encodes
		return NewResponse(statusCode, []byte(message))
	}
	return resp
}

// AddCookie records a cookie to be sent with the response.
func (r *Response) AddCookie(c *http.Cookie) {
	if r.Cookies == nil {
		r.Cookies = NewCookieCollection()
	}
	r.Cookies.Add(c)
}
