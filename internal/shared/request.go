// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package shared provides common types and utilities shared across internal packages.
package shared

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Upload status codes reported by the application server for each uploaded file.
const (
	UploadErrOK        = 0
	UploadErrIniSize   = 1
	UploadErrFormSize  = 2
	UploadErrPartial   = 3
	UploadErrNoFile    = 4
	UploadErrNoTmpDir  = 6
	UploadErrCantWrite = 7
	UploadErrExtension = 8
)

// Request represents a runtime-agnostic HTTP request as delivered by the
// application server to a worker. The same shape is produced by the net/http,
// fasthttp, Lambda and stdin worker hosts.
type Request struct {
	// Method is the HTTP method (GET, POST, etc.).
	Method string

	// URI is the full request URI including scheme, host, port, path and query.
	URI *url.URL

	// Protocol is the HTTP protocol version, e.g. "HTTP/1.1".
	Protocol string

	// Headers contains the explicitly set request headers. A single name may
	// carry several ordered values.
	Headers http.Header

	// Body contains the raw request body.
	Body []byte

	// ParsedBody is the structured body when the edge already decoded it.
	// It is nil when no structured body is available.
	ParsedBody any

	// Cookies contains the request cookies by name.
	Cookies map[string]string

	// UploadedFiles contains uploaded files keyed by form field name.
	UploadedFiles map[string]*UploadedFile

	// ServerParams contains transport-level metadata (remote address,
	// protocol, timestamps and HTTP_* header copies).
	ServerParams map[string]string
}

// UploadedFile is a file received as part of a multipart request.
type UploadedFile struct {
	// ClientFilename is the filename sent by the client.
	ClientFilename string

	// ClientMediaType is the media type sent by the client.
	ClientMediaType string

	// Size is the file size in bytes.
	Size int64

	// Error is one of the UploadErr* status codes.
	Error int

	// Content holds the file contents.
	Content []byte
}

// Open returns a reader over the file contents.
func (f *UploadedFile) Open() io.Reader {
	return bytes.NewReader(f.Content)
}

// NormalizeHeaders converts a single-valued header map, as delivered by
// API Gateway and similar runtimes, into an http.Header. Values that the
// runtime folded with commas are kept as one value.
func NormalizeHeaders(headers map[string]string) http.Header {
	normalized := make(http.Header, len(headers))
	for k, v := range headers {
		normalized.Add(k, v)
	}
	return normalized
}

// HeaderParamName converts a header name into its CGI meta-variable form,
// e.g. "X-Test-Header" becomes "HTTP_X_TEST_HEADER".
func HeaderParamName(name string) string {
	return "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// ParseCookieHeader parses a Cookie request header into a map. Later
// duplicates do not override earlier values.
func ParseCookieHeader(values []string) map[string]string {
	cookies := make(map[string]string)
	for _, line := range values {
		parsed, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range parsed {
			if _, ok := cookies[c.Name]; !ok {
				cookies[c.Name] = c.Value
			}
		}
	}
	return cookies
}
