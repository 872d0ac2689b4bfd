// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package framework

import (
	"net/http"
	"time"
)

// NeverExpires is the expiry given to persistent cookies that were sent
// without one.
var NeverExpires = time.Date(2038, time.January, 1, 0, 0, 0, 0, time.UTC)

// CookieCollection is an ordered set of response cookies. Adding a cookie
// with the same name, path and domain as an existing one replaces it in place.
type CookieCollection struct {
	cookies []*http.Cookie
}

// NewCookieCollection creates an empty collection.
func NewCookieCollection() *CookieCollection {
	return &CookieCollection{}
}

// Add inserts or replaces c.
func (cc *CookieCollection) Add(c *http.Cookie) {
	for i, existing := range cc.cookies {
		if existing.Name == c.Name && existing.Path == c.Path && existing.Domain == c.Domain {
			cc.cookies[i] = c
			return
		}
	}
	cc.cookies = append(cc.cookies, c)
}

// Get returns the first cookie named name, or nil.
func (cc *CookieCollection) Get(name string) *http.Cookie {
	for _, c := range cc.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns the cookies in insertion order.
func (cc *CookieCollection) All() []*http.Cookie {
	return append([]*http.Cookie(nil), cc.cookies...)
}

// Len returns the number of cookies.
func (cc *CookieCollection) Len() int {
	if cc == nil {
		return 0
	}
	return len(cc.cookies)
}

// HasExpiry reports whether c carries an explicit lifetime, either an
// Expires date or a Max-Age (including deletion with a negative Max-Age).
func HasExpiry(c *http.Cookie) bool {
	return !c.Expires.IsZero() || c.MaxAge != 0
}

// WithNeverExpire returns a copy of c that expires at NeverExpires.
func WithNeverExpire(c *http.Cookie) *http.Cookie {
	out := *c
	out.Expires = NeverExpires
	return &out
}
