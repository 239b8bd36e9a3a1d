package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address of the caller. Forwarding headers are only
// honoured when the direct peer is a loopback address, which is where a
// local reverse proxy in front of the outbox API would connect from.
func GetClientIP(r *http.Request) string {
	peer := RemoteHost(r)
	if !isLoopback(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// RemoteHost strips the port from RemoteAddr, handling bracketed IPv6.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
