// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package framework is the web framework the bridge dispatches into: an
// immutable request built from CGI-style meta-variables, a middleware queue
// and runner, cookies, events and request-scoped sessions.
package framework

import (
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cruxstack/workerbridge/internal/shared"
)

// Request is the framework view of an HTTP request. It is immutable: the
// With* methods return modified copies and accessors return copies of
// mutable data.
type Request struct {
	env        Env
	method     string
	uri        *url.URL
	header     http.Header
	query      url.Values
	parsedBody any
	rawBody    []byte
	cookies    map[string]string
	files      map[string]*shared.UploadedFile
	attributes map[string]any
	trustProxy bool
}

// Method returns the request method.
func (r *Request) Method() string { return r.method }

// URI returns a copy of the request URI.
func (r *Request) URI() *url.URL {
	u := *r.uri
	return &u
}

// RequestTarget returns the origin-form request target, path plus query.
func (r *Request) RequestTarget() string { return r.uri.RequestURI() }

// Path returns the request path.
func (r *Request) Path() string { return r.uri.Path }

// Header returns the first value of the named header.
func (r *Request) Header(name string) string { return r.header.Get(name) }

// HeaderValues returns every value of the named header in order.
func (r *Request) HeaderValues(name string) []string {
	return append([]string(nil), r.header.Values(name)...)
}

// Headers returns a copy of all request headers.
func (r *Request) Headers() http.Header { return r.header.Clone() }

// Env returns the first value of the meta-variable key. Variables derived
// from single-valued headers therefore read back as plain strings.
func (r *Request) Env(key string) string { return r.env.Get(key) }

// EnvValues returns every value of the meta-variable key.
func (r *Request) EnvValues(key string) []string { return r.env.Values(key) }

// Query returns a copy of the query parameters.
func (r *Request) Query() url.Values {
	out := make(url.Values, len(r.query))
	for k, vs := range r.query {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// ParsedBody returns the structured request body, or nil when the body was
// not parsed.
func (r *Request) ParsedBody() any { return r.parsedBody }

// RawBody returns the unparsed request body.
func (r *Request) RawBody() []byte { return r.rawBody }

// Cookie returns the named request cookie.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

// Cookies returns a copy of the request cookies.
func (r *Request) Cookies() map[string]string { return maps.Clone(r.cookies) }

// UploadedFile returns the file uploaded under field.
func (r *Request) UploadedFile(field string) (*shared.UploadedFile, bool) {
	f, ok := r.files[field]
	return f, ok
}

// UploadedFiles returns a copy of the uploaded file map.
func (r *Request) UploadedFiles() map[string]*shared.UploadedFile { return maps.Clone(r.files) }

// Attribute returns a request attribute set with WithAttribute.
func (r *Request) Attribute(key string) (any, bool) {
	v, ok := r.attributes[key]
	return v, ok
}

// TrustProxy reports whether forwarded headers are honoured.
func (r *Request) TrustProxy() bool { return r.trustProxy }

// BasicAuth returns the credentials decomposed from a Basic Authorization header.
func (r *Request) BasicAuth() (user, password string, ok bool) {
	if !r.env.Has(EnvAuthUser) {
		return "", "", false
	}
	return r.env.Get(EnvAuthUser), r.env.Get(EnvAuthPassword), true
}

// Scheme returns the effective scheme. In trusted-proxy mode X-Forwarded-Proto wins.
func (r *Request) Scheme() string {
	if r.trustProxy {
		if p := firstListValue(r.header.Get("X-Forwarded-Proto")); p != "" {
			return strings.ToLower(p)
		}
	}
	return r.uri.Scheme
}

// Host returns the effective host. In trusted-proxy mode X-Forwarded-Host wins.
func (r *Request) Host() string {
	if r.trustProxy {
		if h := firstListValue(r.header.Get("X-Forwarded-Host")); h != "" {
			return h
		}
	}
	return r.uri.Host
}

// IsSecure reports whether the effective scheme is https.
func (r *Request) IsSecure() bool { return r.Scheme() == "https" }

// ClientIP returns the logical client address. In trusted-proxy mode the
// first X-Forwarded-For entry wins over REMOTE_ADDR.
func (r *Request) ClientIP() string {
	if r.trustProxy {
		if ip := firstListValue(r.header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.header.Get("X-Real-Ip")); ip != "" {
			return ip
		}
	}
	addr := r.env.Get(EnvRemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// WithTrustProxy returns a copy with trusted-proxy mode set.
func (r *Request) WithTrustProxy(trust bool) *Request {
	c := r.clone()
	c.trustProxy = trust
	return c
}

// WithParsedBody returns a copy carrying body as the structured body.
func (r *Request) WithParsedBody(body any) *Request {
	c := r.clone()
	c.parsedBody = body
	return c
}

// WithRawBody returns a copy carrying body as the raw body.
func (r *Request) WithRawBody(body []byte) *Request {
	c := r.clone()
	c.rawBody = body
	return c
}

// WithAttribute returns a copy with the attribute key set.
func (r *Request) WithAttribute(key string, value any) *Request {
	c := r.clone()
	c.attributes = maps.Clone(r.attributes)
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[key] = value
	return c
}

// WithHeader returns a copy with the named header replaced by values.
func (r *Request) WithHeader(name string, values ...string) *Request {
	c := r.clone()
	c.header = r.header.Clone()
	c.header.Del(name)
	for _, v := range values {
		c.header.Add(name, v)
	}
	return c
}

// clone copies the request struct. Maps are shared and must be copied by
// the caller before mutation.
func (r *Request) clone() *Request {
	c := *r
	return &c
}

func firstListValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
