package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

// CronSecretHeader authenticates scheduler callbacks.
const CronSecretHeader = "X-Cron-Secret"

// RoleAdmin is the user_roles value granting access to /v1/admin.
const RoleAdmin = "admin"

// RoleChecker reports whether a user holds a role.
type RoleChecker interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireRole must run after jwt.Middleware.
func RequireRole(roles RoleChecker, role string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := jwt.UserIDFromContext(r.Context())
			if !ok {
				writeError(w, r, log, ErrUnauthorized)
				return
			}
			has, err := roles.HasRole(r.Context(), userID, role)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			if !has {
				log.WarnContext(r.Context(), "role check denied", logger.UserID(userID), slog.String("role", role))
				writeError(w, r, log, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCronSecret rejects requests without the shared secret. An empty
// secret disables the endpoint.
func RequireCronSecret(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, r, log, ErrUnavailable)
				return
			}
			got := r.Header.Get(CronSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, r, log, ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
