package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// requireAuth guards the admin routes with the configured bearer token or
// basic credentials.
func requireAuth(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := cfg.reject(r); reason != "" {
				logger.Warn("admin request denied", "reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="aamo"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// reject returns why r may not pass, or "" when it may.
func (a AuthConfig) reject(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "missing authorization header"
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && a.BearerToken != "" && secureEqual(token, a.BearerToken) {
		return ""
	}
	if a.BasicUser != "" && a.BasicPass != "" {
		if user, pass, ok := r.BasicAuth(); ok && secureEqual(user, a.BasicUser) && secureEqual(pass, a.BasicPass) {
			return ""
		}
	}
	return "invalid credentials"
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
