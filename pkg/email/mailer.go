package email

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`       // Email address of the recipient
	Subject  string `json:"subject"`       // Subject of the email
	BodyHTML string `json:"body_html"`     // HTML body of the email
	Tag      string `json:"tag,omitempty"` // Optional
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks that every required field is present and the recipient
// looks like an email address.
func (p SendEmailParams) Validate() error {
	if strings.TrimSpace(p.SendTo) == "" {
		return fmt.Errorf("%w: SendTo is required", ErrInvalidParams)
	}
	if !emailRegex.MatchString(strings.TrimSpace(p.SendTo)) {
		return fmt.Errorf("%w: SendTo must be a valid email address", ErrInvalidParams)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: Subject is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		return fmt.Errorf("%w: BodyHTML is required", ErrInvalidParams)
	}
	return nil
}

// validAddress accepts both "name@host" and "Name <name@host>".
func validAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && emailRegex.MatchString(addr.Address)
}

// New picks the sender for cfg: a DevSender when DevDir is set, otherwise a
// Postmark client. A missing API key yields a sender that fails on use.
func New(cfg Config) (EmailSender, error) {
	if cfg.DevDir != "" {
		return NewDevSender(cfg.DevDir), nil
	}
	if cfg.APIKey == "" {
		return unconfigured{}, nil
	}
	return NewPostmarkClient(cfg)
}

type unconfigured struct{}

func (unconfigured) SendEmail(context.Context, SendEmailParams) error {
	return ErrMissingAPIKey
}
