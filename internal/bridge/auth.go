// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"encoding/base64"
	"strings"
)

// decodeBasicAuth splits a Basic Authorization header into user and
// password at the first colon. Anything else reports ok=false.
func decodeBasicAuth(header string) (user, password string, ok bool) {
	scheme, payload, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}
	payload = strings.TrimSpace(payload)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return "", "", false
		}
	}
	return strings.Cut(string(raw), ":")
}
