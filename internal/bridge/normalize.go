// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

const defaultProtocol = "HTTP/1.1"

// Normalize converts req into a framework request stamped with the bridge clock.
func (b *Bridge) Normalize(req *shared.Request) (*framework.Request, error) {
	return Normalize(req, b.now())
}

// Normalize converts req into a framework request. It never modifies req.
//
// Server params are copied, then transport metadata is forced: request time,
// loopback remote address, method, URI parts and protocol. Headers become
// HTTP_* meta-variables with transport values merged ahead of explicit ones.
// Basic credentials are decomposed into AUTH_USER and AUTH_PW. A non-empty
// parsed body passes through; otherwise write methods with a known content
// type get their body decoded. Uploaded files are merged into a map body.
// The result has trusted-proxy mode enabled.
//
// Errors only come from framework.FromGlobals.
func Normalize(req *shared.Request, now time.Time) (*framework.Request, error) {
	env := make(framework.Env, len(req.ServerParams)+16)
	for k, v := range req.ServerParams {
		if isHeaderParam(k) {
			continue
		}
		env.Set(k, v)
	}

	uri := req.URI
	if uri == nil {
		uri = &url.URL{Path: "/"}
	}
	scheme := strings.ToLower(uri.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	port := uri.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = defaultProtocol
	}

	env.Set(framework.EnvRequestTime, strconv.FormatInt(now.Unix(), 10))
	env.Set(framework.EnvRequestTimeF, fmt.Sprintf("%.6f", float64(now.UnixMicro())/1e6))
	env.Set(framework.EnvRemoteAddr, shared.LoopbackAddr)
	env.Set(framework.EnvRequestMethod, method)
	env.Set(framework.EnvRequestScheme, scheme)
	env.Set(framework.EnvRequestURI, uri.RequestURI())
	env.Set(framework.EnvQueryString, uri.RawQuery)
	env.Set(framework.EnvServerName, uri.Hostname())
	env.Set(framework.EnvServerPort, port)
	env.Set(framework.EnvServerProtocol, protocol)
	if scheme == "https" {
		env.Set(framework.EnvHTTPS, "on")
	} else {
		delete(env, framework.EnvHTTPS)
	}

	for name, values := range mergeHeaders(req.ServerParams, req.Headers) {
		env[name] = values
	}

	if !env.Has("HTTP_HOST") && uri.Host != "" {
		env.Set("HTTP_HOST", uri.Host)
	}
	if !env.Has(framework.EnvContentLength) && len(req.Body) > 0 {
		env.Set(framework.EnvContentLength, strconv.Itoa(len(req.Body)))
	}

	if user, pass, ok := decodeBasicAuth(env.Get("HTTP_AUTHORIZATION")); ok {
		env.Set(framework.EnvAuthType, "Basic")
		env.Set(framework.EnvAuthUser, user)
		env.Set(framework.EnvAuthPassword, pass)
	}

	parsed := parsedBody(method, env.Get(framework.EnvContentType), req.Body, req.ParsedBody)
	parsed = mergeUploadedFiles(parsed, req.UploadedFiles)

	fr, err := framework.FromGlobals(env, uri.Query(), parsed, req.Cookies, req.UploadedFiles)
	if err != nil {
		return nil, err
	}
	return fr.WithRawBody(req.Body).WithTrustProxy(true), nil
}

// parsedBody applies the parsed-body policy. Decode failures leave the body
// unparsed.
func parsedBody(method, contentType string, body []byte, given any) any {
	if !isEmpty(given) {
		return given
	}
	if !framework.BodyParsingExpected(method) || len(body) == 0 || contentType == "" {
		return nil
	}
	v, err := framework.ParseBody(contentType, body)
	if err != nil {
		return nil
	}
	return v
}

// mergeUploadedFiles adds each file to a map body under its field name.
// Bodies that are not maps are returned unchanged.
func mergeUploadedFiles(body any, files map[string]*shared.UploadedFile) any {
	if len(files) == 0 {
		return body
	}

	var out map[string]any
	switch b := body.(type) {
	case nil:
		out = make(map[string]any, len(files))
	case map[string]any:
		out = maps.Clone(b)
	default:
		return body
	}
	for field, f := range files {
		out[field] = f
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
