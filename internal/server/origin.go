package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// NewCheckOrigin returns a websocket CheckOrigin function. It allows requests without an
// Origin header (non-browser clients), same-host origins, and any origin in allowed.
// "*" in allowed accepts everything. In development localhost origins are also accepted.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	allowAll := slices.Contains(allowed, "*")

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll || slices.Contains(allowed, origin) {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil {
			if u.Host == r.Host {
				return true
			}
			if isDevelopment && isLocalhost(u.Hostname()) {
				return true
			}
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
