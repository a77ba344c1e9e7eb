// Package clientip resolves the originating client address behind proxies
// and carries it, together with the user agent, in the request context.
package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// GetIP returns the client IP from, in order: the first valid X-Forwarded-For
// entry, X-Real-IP, then RemoteAddr. It returns "" when nothing parses.
func GetIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for candidate := range strings.SplitSeq(forwarded, ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

type ipKey struct{}
type uaKey struct{}

// Middleware stores the client IP and user agent in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ipKey{}, GetIP(r))
		ctx = context.WithValue(ctx, uaKey{}, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the IP stored by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ipKey{}).(string)
	return ip, ok && ip != ""
}

// UserAgentFromContext returns the user agent stored by Middleware.
func UserAgentFromContext(ctx context.Context) (string, bool) {
	ua, ok := ctx.Value(uaKey{}).(string)
	return ua, ok && ua != ""
}
