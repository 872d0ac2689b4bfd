// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package host

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// RequestFromAPIGatewayV2 converts an API Gateway HTTP API event into a
// generic request. API Gateway terminates TLS, so the request is https.
func RequestFromAPIGatewayV2(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (*shared.Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("decode event body: %w", err)
		}
		body = decoded
	}

	headers := shared.NormalizeHeaders(ev.Headers)
	hostname := headers.Get("Host")
	if hostname == "" {
		hostname = ev.RequestContext.DomainName
	}

	path := ev.RawPath
	if path == "" {
		path = ev.RequestContext.HTTP.Path
	}
	u := &url.URL{Scheme: "https", Host: hostname, RawQuery: ev.RawQueryString}
	if unescaped, err := url.PathUnescape(path); err == nil {
		u.Path = unescaped
		if u.EscapedPath() != path {
			u.RawPath = path
		}
	} else {
		u.Path = path
	}

	r, err := http.NewRequestWithContext(ctx, ev.RequestContext.HTTP.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request from event: %w", err)
	}
	r.Header = headers
	if len(ev.Cookies) > 0 {
		r.Header.Set("Cookie", strings.Join(ev.Cookies, "; "))
	}
	r.Host = hostname
	r.TLS = &tls.ConnectionState{}
	if ev.RequestContext.HTTP.SourceIP != "" {
		r.RemoteAddr = net.JoinHostPort(ev.RequestContext.HTTP.SourceIP, "0")
	}
	if proto := ev.RequestContext.HTTP.Protocol; proto != "" {
		if major, minor, ok := http.ParseHTTPVersion(proto); ok {
			r.Proto, r.ProtoMajor, r.ProtoMinor = proto, major, minor
		}
	}

	return bridge.RequestFromHTTP(r)
}

// ResponseToAPIGatewayV2 converts a framework response into an API Gateway
// HTTP API response. Set-Cookie values move to Cookies and other repeated
// headers are comma-joined. Non UTF-8 bodies are base64 encoded.
func ResponseToAPIGatewayV2(resp *framework.Response) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	for k, vs := range resp.Header {
		if http.CanonicalHeaderKey(k) == "Set-Cookie" {
			out.Cookies = append(out.Cookies, vs...)
			continue
		}
		out.Headers[k] = strings.Join(vs, ", ")
	}

	if utf8.Valid(resp.Body) {
		out.Body = string(resp.Body)
	} else {
		out.Body = base64.StdEncoding.EncodeToString(resp.Body)
		out.IsBase64Encoded = true
	}
	return out
}
