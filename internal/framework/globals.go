// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/cruxstack/workerbridge/internal/shared"
)

var (
	// ErrInvalidMethod is returned when REQUEST_METHOD is not an HTTP token.
	ErrInvalidMethod = errors.New("invalid request method")

	// ErrInvalidRequestURI is returned when REQUEST_URI cannot be parsed.
	ErrInvalidRequestURI = errors.New("invalid request uri")
)

// FromGlobals builds a Request from meta-variables and the already-decoded
// query, body, cookie and upload mappings.
//
// Headers are derived from HTTP_* variables (all values kept in order), the
// URI from REQUEST_SCHEME/HTTPS, HTTP_HOST or SERVER_NAME/SERVER_PORT and
// REQUEST_URI. A nil query is parsed from the request target and nil cookies
// from the Cookie header. The server Env is copied and never mutated.
func FromGlobals(server Env, query url.Values, parsedBody any, cookies map[string]string, files map[string]*shared.UploadedFile) (*Request, error) {
	env := server.Clone()

	method := strings.ToUpper(env.Get(EnvRequestMethod))
	if method == "" {
		method = http.MethodGet
	}
	if !validToken(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	header := make(http.Header)
	for key, values := range env {
		name, ok := headerName(key)
		if !ok {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}
		header[name] = append([]string(nil), values...)
	}

	uri, err := buildURI(env, header)
	if err != nil {
		return nil, err
	}

	if query == nil {
		query = uri.Query()
	}
	if cookies == nil {
		cookies = shared.ParseCookieHeader(header.Values("Cookie"))
	}

	return &Request{
		env:        env,
		method:     method,
		uri:        uri,
		header:     header,
		query:      query,
		parsedBody: parsedBody,
		cookies:    maps.Clone(cookies),
		files:      maps.Clone(files),
	}, nil
}

func buildURI(env Env, header http.Header) (*url.URL, error) {
	target := env.Get(EnvRequestURI)
	if target == "" {
		target = "/"
		if qs := env.Get(EnvQueryString); qs != "" {
			target += "?" + qs
		}
	}

	parsed, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRequestURI, target, err)
	}

	scheme := strings.ToLower(env.Get(EnvRequestScheme))
	if scheme == "" {
		if parsed.Scheme != "" {
			scheme = parsed.Scheme
		} else if on := strings.ToLower(env.Get(EnvHTTPS)); on != "" && on != "off" {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := header.Get("Host")
	if host == "" {
		host = parsed.Host
	}
	if host == "" {
		host = env.Get(EnvServerName)
		if port := env.Get(EnvServerPort); host != "" && port != "" && port != defaultPort(scheme) {
			host = net.JoinHostPort(host, port)
		}
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     parsed.Path,
		RawPath:  parsed.RawPath,
		RawQuery: parsed.RawQuery,
	}, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

func validToken(s string) bool {
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return s != ""
}
