// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"testing"
)

func mustRequest(t *testing.T, env Env) *Request {
	t.Helper()
	req, err := FromGlobals(env, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("FromGlobals() unexpected error: %v", err)
	}
	return req
}

func TestRequestTrustProxy(t *testing.T) {
	env := Env{
		EnvRemoteAddr:            {"127.0.0.1"},
		EnvRequestScheme:         {"http"},
		"HTTP_HOST":              {"internal:8080"},
		"HTTP_X_FORWARDED_FOR":   {"203.0.113.7, 10.0.0.1"},
		"HTTP_X_FORWARDED_PROTO": {"HTTPS"},
		"HTTP_X_FORWARDED_HOST":  {"example.com"},
	}

	tests := []struct {
		name       string
		trust      bool
		wantIP     string
		wantScheme string
		wantHost   string
		wantSecure bool
	}{
		{
			name:       "untrusted",
			trust:      false,
			wantIP:     "127.0.0.1",
			wantScheme: "http",
			wantHost:   "internal:8080",
		},
		{
			name:       "trusted",
			trust:      true,
			wantIP:     "203.0.113.7",
			wantScheme: "https",
			wantHost:   "example.com",
			wantSecure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mustRequest(t, env).WithTrustProxy(tt.trust)
			if got := req.ClientIP(); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
			if got := req.Scheme(); got != tt.wantScheme {
				t.Errorf("Scheme() = %q, want %q", got, tt.wantScheme)
			}
			if got := req.Host(); got != tt.wantHost {
				t.Errorf("Host() = %q, want %q", got, tt.wantHost)
			}
			if got := req.IsSecure(); got != tt.wantSecure {
				t.Errorf("IsSecure() = %v, want %v", got, tt.wantSecure)
			}
		})
	}
}

func TestRequestClientIPRealIP(t *testing.T) {
	req := mustRequest(t, Env{
		EnvRemoteAddr:    {"127.0.0.1:9000"},
		"HTTP_X_REAL_IP": {"192.168.0.1"},
	})

	if got := req.ClientIP(); got != "127.0.0.1" {
		t.Errorf("ClientIP() untrusted = %q, want 127.0.0.1", got)
	}
	if got := req.WithTrustProxy(true).ClientIP(); got != "192.168.0.1" {
		t.Errorf("ClientIP() trusted = %q, want 192.168.0.1", got)
	}
}

func TestRequestBasicAuth(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := mustRequest(t, Env{EnvAuthUser: {"user"}, EnvAuthPassword: {""}})
		user, pass, ok := req.BasicAuth()
		if !ok || user != "user" || pass != "" {
			t.Errorf("BasicAuth() = %q, %q, %v", user, pass, ok)
		}
	})

	t.Run("absent", func(t *testing.T) {
		req := mustRequest(t, Env{})
		if _, _, ok := req.BasicAuth(); ok {
			t.Error("BasicAuth() ok = true without credentials")
		}
	})
}

func TestRequestImmutability(t *testing.T) {
	base := mustRequest(t, Env{"HTTP_X_A": {"1"}})

	withBody := base.WithParsedBody(map[string]any{"k": "v"})
	if base.ParsedBody() != nil {
		t.Error("WithParsedBody() modified the original request")
	}
	if withBody.ParsedBody() == nil {
		t.Error("WithParsedBody() did not set body on the copy")
	}

	withHeader := base.WithHeader("X-A", "2", "3")
	if got := base.Header("X-A"); got != "1" {
		t.Errorf("WithHeader() modified the original request: %q", got)
	}
	if got := withHeader.HeaderValues("X-A"); len(got) != 2 || got[0] != "2" {
		t.Errorf("WithHeader() copy = %v", got)
	}

	withAttr := base.WithAttribute("id", "abc")
	if _, ok := base.Attribute("id"); ok {
		t.Error("WithAttribute() modified the original request")
	}
	if v, _ := withAttr.Attribute("id"); v != "abc" {
		t.Errorf("Attribute(id) = %v", v)
	}

	u := base.URI()
	u.Path = "/changed"
	if base.Path() == "/changed" {
		t.Error("URI() returned shared storage")
	}

	hv := base.HeaderValues("X-A")
	hv[0] = "changed"
	if base.Header("X-A") != "1" {
		t.Error("HeaderValues() returned shared storage")
	}
}
