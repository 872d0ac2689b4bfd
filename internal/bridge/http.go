// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"

	"github.com/chainguard-dev/clog"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// HTTPHandler serves b over net/http. Pipeline errors are logged and
// answered with 500.
func HTTPHandler(b *Bridge) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r.Body = http.MaxBytesReader(w, r.Body, shared.DefaultMaxBodySize)

		req, err := RequestFromHTTP(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			clog.FromContext(ctx).Errorf("[bridge] failed to read request: %v", err)
			http.Error(w, "failed to read request", http.StatusBadRequest)
			return
		}

		resp, err := b.Handle(ctx, req)
		if err != nil {
			clog.FromContext(ctx).Errorf("[bridge] request failed: %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Header {
			w.Header()[k] = append([]string(nil), v...)
		}
		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 && r.Method != http.MethodHead {
			if _, err := w.Write(resp.Body); err != nil {
				clog.FromContext(ctx).Errorf("failed to write response body: %v", err)
			}
		}
	})
}

// RequestFromHTTP converts r into a generic request. Multipart forms are
// decoded into a parsed body and uploaded files, as the application server
// does. The client address is forwarded in X-Forwarded-For when absent.
func RequestFromHTTP(r *http.Request) (*shared.Request, error) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	headers := r.Header.Clone()
	if r.Host != "" {
		headers.Set("Host", r.Host)
	}
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if headers.Get("X-Forwarded-For") == "" && remote != "" {
		headers.Set("X-Forwarded-For", remote)
	}

	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		if _, ok := cookies[c.Name]; !ok {
			cookies[c.Name] = c.Value
		}
	}

	req := &shared.Request{
		Method: r.Method,
		URI: &url.URL{
			Scheme:   scheme,
			Host:     r.Host,
			Path:     r.URL.Path,
			RawPath:  r.URL.RawPath,
			RawQuery: r.URL.RawQuery,
		},
		Protocol: r.Proto,
		Headers:  headers,
		Cookies:  cookies,
		ServerParams: map[string]string{
			framework.EnvRemoteAddr: r.RemoteAddr,
		},
	}

	if isMultipart(r.Header.Get("Content-Type")) {
		if err := r.ParseMultipartForm(shared.DefaultMaxBodySize); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		defer r.MultipartForm.RemoveAll()

		body, files, err := fromMultipart(r.MultipartForm)
		if err != nil {
			return nil, err
		}
		req.ParsedBody = body
		req.UploadedFiles = files
		return req, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	req.Body = body
	return req, nil
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}

// fromMultipart flattens form values into a body map and reads the first
// file of every field.
func fromMultipart(form *multipart.Form) (map[string]any, map[string]*shared.UploadedFile, error) {
	body := framework.FlattenValues(form.Value)

	files := make(map[string]*shared.UploadedFile, len(form.File))
	for field, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			files[field] = &shared.UploadedFile{
				ClientFilename:  fh.Filename,
				ClientMediaType: fh.Header.Get("Content-Type"),
				Error:           shared.UploadErrCantWrite,
			}
			continue
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read uploaded file %s: %w", field, err)
		}
		files[field] = &shared.UploadedFile{
			ClientFilename:  fh.Filename,
			ClientMediaType: fh.Header.Get("Content-Type"),
			Size:            fh.Size,
			Error:           shared.UploadErrOK,
			Content:         content,
		}
	}
	return body, files, nil
}
