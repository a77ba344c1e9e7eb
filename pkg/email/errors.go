package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidParams     = errors.New("email: invalid params")
	ErrMissingAPIKey     = errors.New("email: api key is not configured")
	ErrCircuitOpen       = errors.New("email: provider circuit is open")
)
