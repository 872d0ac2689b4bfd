// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package worker implements the worker side of the application-server
// protocol: length-prefixed msgpack frames carrying one request or response
// each, exchanged over a byte stream such as stdin and stdout.
package worker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// MaxFrameSize bounds a single frame payload.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned when a frame header announces more than MaxFrameSize bytes.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// RequestFrame is a request as sent by the application server.
type RequestFrame struct {
	Method   string              `msgpack:"method"`
	URI      string              `msgpack:"uri"`
	Protocol string              `msgpack:"protocol"`
	Headers  map[string][]string `msgpack:"headers"`
	Cookies  map[string]string   `msgpack:"cookies"`
	Server   map[string]string   `msgpack:"server"`
	Body     []byte              `msgpack:"body"`

	// Parsed marks Body as the JSON encoding of a body the server already parsed.
	Parsed bool `msgpack:"parsed"`

	Uploads map[string]UploadFrame `msgpack:"uploads"`
}

// UploadFrame is one uploaded file.
type UploadFrame struct {
	Name    string `msgpack:"name"`
	Mime    string `msgpack:"mime"`
	Size    int64  `msgpack:"size"`
	Error   int    `msgpack:"error"`
	Content []byte `msgpack:"content"`
}

// ResponseFrame is the response returned to the application server.
type ResponseFrame struct {
	Status  int                 `msgpack:"status"`
	Headers map[string][]string `msgpack:"headers"`
	Body    []byte              `msgpack:"body"`
}

// ReadFrame reads one frame: a big-endian uint32 payload length followed by
// the payload. A clean end of stream before the header returns io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// DecodeRequest decodes a msgpack request payload into a generic request.
func DecodeRequest(payload []byte) (*shared.Request, error) {
	var f RequestFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decode request frame: %w", err)
	}
	return f.Request()
}

// Request converts the frame into a generic request.
func (f *RequestFrame) Request() (*shared.Request, error) {
	u, err := url.Parse(f.URI)
	if err != nil {
		return nil, fmt.Errorf("parse request uri %q: %w", f.URI, err)
	}

	req := &shared.Request{
		Method:       f.Method,
		URI:          u,
		Protocol:     f.Protocol,
		Headers:      make(http.Header, len(f.Headers)),
		Cookies:      f.Cookies,
		ServerParams: f.Server,
	}
	for k, vs := range f.Headers {
		for _, v := range vs {
			req.Headers.Add(k, v)
		}
	}

	if f.Parsed {
		if len(f.Body) > 0 {
			if err := json.Unmarshal(f.Body, &req.ParsedBody); err != nil {
				return nil, fmt.Errorf("decode parsed body: %w", err)
			}
		}
	} else {
		req.Body = f.Body
	}

	if len(f.Uploads) > 0 {
		req.UploadedFiles = make(map[string]*shared.UploadedFile, len(f.Uploads))
		for field, up := range f.Uploads {
			req.UploadedFiles[field] = &shared.UploadedFile{
				ClientFilename:  up.Name,
				ClientMediaType: up.Mime,
				Size:            up.Size,
				Error:           up.Error,
				Content:         up.Content,
			}
		}
	}
	return req, nil
}

// EncodeResponse encodes resp as a msgpack response payload.
func EncodeResponse(resp *framework.Response) ([]byte, error) {
	f := ResponseFrame{
		Status:  resp.StatusCode,
		Headers: map[string][]string(resp.Header),
		Body:    resp.Body,
	}
	b, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode response frame: %w", err)
	}
	return b, nil
}

// DecodeResponse decodes a msgpack response payload.
func DecodeResponse(payload []byte) (*ResponseFrame, error) {
	var f ResponseFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decode response frame: %w", err)
	}
	return &f, nil
}

// EncodeRequest encodes f as a msgpack request payload.
func EncodeRequest(f *RequestFrame) ([]byte, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode request frame: %w", err)
	}
	return b, nil
}
