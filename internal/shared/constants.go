// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package shared

import "time"

// Server configuration defaults.
const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxBodySize bounds request bodies and multipart forms read by the hosts.
	DefaultMaxBodySize = 32 << 20
)

// Session configuration defaults.
const (
	// DefaultSessionCookie is the cookie carrying the session id.
	DefaultSessionCookie = "WBSESSID"

	// DefaultSessionCacheSize is the default size for the in-memory session LRU.
	DefaultSessionCacheSize = 10000

	// DefaultSessionTTL is the default idle lifetime of a session.
	DefaultSessionTTL = 30 * time.Minute
)

// LoopbackAddr is reported as the physical remote address of every request.
// The logical client address comes from forwarded headers in trusted-proxy mode.
const LoopbackAddr = "127.0.0.1"
