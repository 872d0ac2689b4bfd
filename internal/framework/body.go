// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack"
)

// ErrUnsupportedMediaType is returned by ParseBody for media types without a parser.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Media types understood by ParseBody.
const (
	MediaTypeJSON       = "application/json"
	MediaTypeForm       = "application/x-www-form-urlencoded"
	MediaTypeMsgpack    = "application/msgpack"
	MediaTypeMsgpackAlt = "application/x-msgpack"
)

// BodyParsingExpected reports whether requests with method conventionally
// carry a body the framework decodes.
func BodyParsingExpected(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ParseBody decodes body according to contentType. JSON (including +json
// suffixes), form-urlencoded and msgpack bodies are supported.
func ParseBody(contentType string, body []byte) (any, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}

	switch {
	case mediaType == MediaTypeJSON || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		return v, nil

	case mediaType == MediaTypeForm:
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("decode form body: %w", err)
		}
		return FlattenValues(values), nil

	case mediaType == MediaTypeMsgpack || mediaType == MediaTypeMsgpackAlt:
		var v any
		if err := msgpack.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode msgpack body: %w", err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
}

// FlattenValues converts multi-valued form values into a structured body:
// single values become strings and repeated values stay string slices.
func FlattenValues(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = vs[0]
		default:
			out[k] = append([]string(nil), vs...)
		}
	}
	return out
}
