// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"net/textproto"
	"strings"
)

// Meta-variable names read by the framework. Header meta-variables use the
// HTTP_ prefix followed by the upper-snake header name.
const (
	EnvAuthType       = "AUTH_TYPE"
	EnvAuthUser       = "AUTH_USER"
	EnvAuthPassword   = "AUTH_PW"
	EnvContentLength  = "CONTENT_LENGTH"
	EnvContentType    = "CONTENT_TYPE"
	EnvHTTPS          = "HTTPS"
	EnvQueryString    = "QUERY_STRING"
	EnvRemoteAddr     = "REMOTE_ADDR"
	EnvRequestMethod  = "REQUEST_METHOD"
	EnvRequestScheme  = "REQUEST_SCHEME"
	EnvRequestTime    = "REQUEST_TIME"
	EnvRequestTimeF   = "REQUEST_TIME_FLOAT"
	EnvRequestURI     = "REQUEST_URI"
	EnvServerName     = "SERVER_NAME"
	EnvServerPort     = "SERVER_PORT"
	EnvServerProtocol = "SERVER_PROTOCOL"

	envHTTPPrefix = "HTTP_"
)

// Env holds CGI-style meta-variables. Every variable keeps an ordered list of
// values so repeated headers survive; single reads return the first value.
type Env map[string][]string

// Get returns the first value of key, or "" when absent.
func (e Env) Get(key string) string {
	if vs := e[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns a copy of all values of key.
func (e Env) Values(key string) []string {
	vs := e[key]
	if vs == nil {
		return nil
	}
	return append([]string(nil), vs...)
}

// Has reports whether key is present, even with an empty value.
func (e Env) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Set replaces key with a single value.
func (e Env) Set(key, value string) {
	e[key] = []string{value}
}

// Clone returns a deep copy of e.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, vs := range e {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// headerName converts a meta-variable name back into a canonical header name.
// It returns false for variables that do not describe a header.
func headerName(key string) (string, bool) {
	switch key {
	case EnvContentType:
		return "Content-Type", true
	case EnvContentLength:
		return "Content-Length", true
	}
	rest, ok := strings.CutPrefix(key, envHTTPPrefix)
	if !ok || rest == "" {
		return "", false
	}
	return textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(strings.ToLower(rest), "_", "-")), true
}
