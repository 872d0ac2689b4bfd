// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/google/go-cmp/cmp"

	"github.com/cruxstack/workerbridge/internal/bridge"
	"github.com/cruxstack/workerbridge/internal/echoapp"
	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

type handlerFunc func(ctx context.Context, req *shared.Request) (*framework.Response, error)

func (f handlerFunc) Handle(ctx context.Context, req *shared.Request) (*framework.Response, error) {
	return f(ctx, req)
}

func writeRequest(t *testing.T, w io.Writer, f *RequestFrame) {
	t.Helper()
	payload, err := EncodeRequest(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(w, payload); err != nil {
		t.Fatal(err)
	}
}

func readResponses(t *testing.T, r io.Reader) []*ResponseFrame {
	t.Helper()
	var out []*ResponseFrame
	for {
		payload, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadFrame() returned error: %v", err)
		}
		resp, err := DecodeResponse(payload)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, resp)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{[]byte("one"), nil, []byte("three")} {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"one", "", "three"} {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("ReadFrame() = %q, want %q", got, want)
		}
	}
	if _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end = %v, want io.EOF", err)
	}
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"truncated header", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"truncated payload", []byte{0, 0, 0, 5, 'a'}, io.ErrUnexpectedEOF},
		{"too large", []byte{0xff, 0xff, 0xff, 0xff}, ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadFrame(bytes.NewReader(tt.input)); !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestFrameConversion(t *testing.T) {
	f := &RequestFrame{
		Method:   http.MethodPut,
		URI:      "http://localhost/write.json?a=1",
		Protocol: "HTTP/1.1",
		Headers:  map[string][]string{"x-test": {"1", "2"}},
		Cookies:  map[string]string{"sid": "abc"},
		Server:   map[string]string{"REMOTE_ADDR": "10.0.0.1"},
		Body:     []byte(`{"Hello":"world"}`),
		Parsed:   true,
		Uploads: map[string]UploadFrame{
			"uploadedFileField": {Name: "file.txt", Mime: "text/plain", Size: 2, Content: []byte("hi")},
		},
	}
	payload, err := EncodeRequest(f)
	if err != nil {
		t.Fatal(err)
	}

	req, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest() returned error: %v", err)
	}
	if req.URI.String() != f.URI {
		t.Errorf("URI = %s", req.URI)
	}
	if diff := cmp.Diff([]string{"1", "2"}, req.Headers.Values("X-Test")); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"Hello": "world"}, req.ParsedBody); diff != "" {
		t.Errorf("ParsedBody mismatch (-want +got):\n%s", diff)
	}
	if req.Body != nil {
		t.Errorf("Body = %q, want nil for parsed frames", req.Body)
	}
	up := req.UploadedFiles["uploadedFileField"]
	if up == nil || up.ClientFilename != "file.txt" || string(up.Content) != "hi" {
		t.Errorf("uploaded file = %+v", up)
	}

	f.Parsed = false
	payload, _ = EncodeRequest(f)
	req, err = DecodeRequest(payload)
	if err != nil {
		t.Fatal(err)
	}
	if req.ParsedBody != nil || string(req.Body) != `{"Hello":"world"}` {
		t.Errorf("raw frame body = %q, parsed %v", req.Body, req.ParsedBody)
	}
}

func TestLoopServe(t *testing.T) {
	boom := errors.New("boom")
	h := handlerFunc(func(ctx context.Context, req *shared.Request) (*framework.Response, error) {
		switch req.URI.Path {
		case "/fail":
			return nil, boom
		case "/panic":
			panic("exploded")
		}
		resp := framework.NewResponse(http.StatusOK, []byte(req.Method+" "+req.URI.Path))
		resp.Header.Add("Set-Cookie", "a=1")
		resp.Header.Add("Set-Cookie", "b=2")
		return resp, nil
	})

	var in bytes.Buffer
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/one"})
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/fail"})
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/panic"})
	if err := WriteFrame(&in, []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	writeRequest(t, &in, &RequestFrame{Method: http.MethodPost, URI: "http://localhost/two"})

	var out bytes.Buffer
	if err := NewLoop(h, &in, &out).Serve(slogtest.Context(t)); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}

	resps := readResponses(t, &out)
	var statuses []int
	for _, r := range resps {
		statuses = append(statuses, r.Status)
	}
	want := []int{http.StatusOK, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusBadRequest, http.StatusOK}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	if string(resps[0].Body) != "GET /one" || string(resps[4].Body) != "POST /two" {
		t.Errorf("bodies = %q, %q", resps[0].Body, resps[4].Body)
	}
	if diff := cmp.Diff([]string{"a=1", "b=2"}, resps[0].Headers["Set-Cookie"]); diff != "" {
		t.Errorf("Set-Cookie mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(string(resps[1].Body), "boom") {
		t.Errorf("error details leaked: %s", resps[1].Body)
	}
}

func TestLoopServeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(slogtest.Context(t))
	cancel()

	var in bytes.Buffer
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/"})
	err := NewLoop(handlerFunc(nil), &in, io.Discard).Serve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestLoopWithBridge(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, bridge.ConfigFile), []byte("name: worker\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := slogtest.Context(t)
	b, err := bridge.New(ctx, root+"/", echoapp.New)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var in bytes.Buffer
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/"})
	writeRequest(t, &in, &RequestFrame{
		Method: http.MethodPatch,
		URI:    "http://localhost/write.json",
		Body:   []byte(`{"Hello":"World"}`),
		Parsed: true,
	})
	writeRequest(t, &in, &RequestFrame{Method: http.MethodDelete, URI: "http://localhost/delete.json"})

	var out bytes.Buffer
	if err := NewLoop(b, &in, &out).Serve(ctx); err != nil {
		t.Fatal(err)
	}

	resps := readResponses(t, &out)
	if len(resps) != 3 {
		t.Fatalf("got %d responses, want 3", len(resps))
	}
	if resps[0].Status != http.StatusOK || string(resps[0].Body) != `{"hello":"world"}` {
		t.Errorf("index = %d %s", resps[0].Status, resps[0].Body)
	}
	if string(resps[1].Body) != `{"body":{"Hello":"World"},"method":"PATCH"}` {
		t.Errorf("write = %s", resps[1].Body)
	}
	if resps[2].Status != http.StatusNoContent || len(resps[2].Body) != 0 {
		t.Errorf("delete = %d %q", resps[2].Status, resps[2].Body)
	}
}

func TestLoopFlushesBufferedOutput(t *testing.T) {
	h := handlerFunc(func(context.Context, *shared.Request) (*framework.Response, error) {
		return framework.NoContentResponse(), nil
	})

	var in, out bytes.Buffer
	writeRequest(t, &in, &RequestFrame{Method: http.MethodGet, URI: "http://localhost/"})

	if err := NewLoop(h, &in, bufio.NewWriter(&out)).Serve(slogtest.Context(t)); err != nil {
		t.Fatal(err)
	}
	if resps := readResponses(t, &out); len(resps) != 1 || resps[0].Status != http.StatusNoContent {
		t.Errorf("responses = %+v", resps)
	}
}
