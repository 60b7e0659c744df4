// Package net provides address helpers shared by the request
// classifier and the gate.
package net

import (
	"net"
	"net/http"
	"strings"
)

// UnknownAddr is used when neither the X-Forwarded-For header nor the
// transport peer address yields a client address. It is a valid,
// poolable identity: all such requests share one bucket.
const UnknownAddr = "unknown"

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// ClientAddr returns the address of the requesting client. When the
// 'X-Forwarded-For' header is set, its first comma-separated token is
// used instead, which is how most proxies forward the original client.
// Wikipedia shows the format
// https://en.wikipedia.org/wiki/X-Forwarded-For#Format
//
// Example:
//
//	X-Forwarded-For: client, proxy1, proxy2
//
// Note that the first hop is trusted unconditionally and therefore
// spoofable by clients connecting without a trusted proxy in front.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		s, _, _ := strings.Cut(xff, ",")
		if s = strings.TrimSpace(s); s != "" {
			return stripPort(s)
		}
	}

	if addr := stripPort(r.RemoteAddr); addr != "" {
		return addr
	}

	return UnknownAddr
}
