package jwt

import (
	"context"
	"log/slog"
)

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var claimsContextKey = &contextKey{name: "jwt_claims"}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the token subject.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// LoggerExtractor adds "user_id" to log records for authenticated requests.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := UserIDFromContext(ctx); ok {
			return slog.String("user_id", id), true
		}
		return slog.Attr{}, false
	}
}
