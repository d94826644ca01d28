package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from the request: the first entry
// of X-Forwarded-For when present and parseable, otherwise the socket
// address with the port stripped.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
