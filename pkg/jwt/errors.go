package jwt

import "errors"

var (
	ErrMissingSecret        = errors.New("jwt: missing signing secret")
	ErrMissingToken         = errors.New("jwt: missing bearer token")
	ErrInvalidToken         = errors.New("jwt: invalid token")
	ErrExpiredToken         = errors.New("jwt: token is expired")
	ErrMissingSubject       = errors.New("jwt: token has no subject")
	ErrUnexpectedSigningAlg = errors.New("jwt: unexpected signing method")
)
