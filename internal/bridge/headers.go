// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"net/http"
	"slices"
	"strings"

	"github.com/cruxstack/workerbridge/internal/framework"
	"github.com/cruxstack/workerbridge/internal/shared"
)

// mergeHeaders combines transport header params (HTTP_* server params plus
// CONTENT_TYPE and CONTENT_LENGTH) with
// explicit headers, keyed by meta-variable name. Transport values come
// first. A transport value that is the comma-folded form of the explicit
// values is replaced by them; otherwise both are kept and exact duplicates
// are dropped.
func mergeHeaders(params map[string]string, headers http.Header) map[string][]string {
	transport := make(map[string][]string)
	for k, v := range params {
		if isHeaderParam(k) {
			name := metaName(k)
			transport[name] = append(transport[name], v)
		}
	}

	explicit := make(map[string][]string, len(headers))
	for name, values := range headers {
		key := metaName(shared.HeaderParamName(name))
		explicit[key] = append(explicit[key], values...)
	}

	out := make(map[string][]string, len(transport)+len(explicit))
	for name, values := range transport {
		out[name] = mergeValues(values, explicit[name])
	}
	for name, values := range explicit {
		if _, ok := out[name]; !ok {
			out[name] = mergeValues(nil, values)
		}
	}
	return out
}

// isHeaderParam reports whether a server param carries a request header.
func isHeaderParam(key string) bool {
	return strings.HasPrefix(key, "HTTP_") ||
		key == framework.EnvContentType ||
		key == framework.EnvContentLength
}

// metaName maps HTTP_CONTENT_TYPE and HTTP_CONTENT_LENGTH to their
// unprefixed meta-variable names.
func metaName(key string) string {
	switch key {
	case "HTTP_CONTENT_TYPE":
		return framework.EnvContentType
	case "HTTP_CONTENT_LENGTH":
		return framework.EnvContentLength
	}
	return key
}

func mergeValues(transport, explicit []string) []string {
	if len(transport) == 1 && len(explicit) > 0 && isFolded(transport[0], explicit) {
		transport = nil
	}
	merged := make([]string, 0, len(transport)+len(explicit))
	for _, v := range slices.Concat(transport, explicit) {
		if !slices.Contains(merged, v) {
			merged = append(merged, v)
		}
	}
	return merged
}

func isFolded(v string, values []string) bool {
	return v == strings.Join(values, ", ") || v == strings.Join(values, ",")
}
