package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/internal/privacy"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// HTTPError is an error that carries its response status.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string { return e.Key }

var (
	ErrBadRequest   = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrForbidden    = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound     = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict     = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
	ErrInternal     = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
)

// statusFor maps domain errors to a response status and the message shown
// to the client. Server errors never expose the cause.
func statusFor(err error) (int, string) {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, httpErr.Key
	case errors.Is(err, privacy.ErrInvalidAction),
		errors.Is(err, privacy.ErrMissingUser),
		errors.Is(err, billing.ErrUnknownPlan):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, privacy.ErrRequestNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, privacy.ErrRequestPending),
		errors.Is(err, privacy.ErrRequestResolved):
		return http.StatusConflict, err.Error()
	case errors.Is(err, billing.ErrSecretKeyMissing):
		return http.StatusServiceUnavailable, "billing is not configured"
	default:
		return http.StatusInternalServerError, ErrInternal.Key
	}
}
