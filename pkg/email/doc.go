// Package email sends transactional email through a provider-agnostic
// EmailSender.
//
// Implementations:
//   - NewPostmarkClient delivers through Postmark.
//   - NewDevSender writes messages to a local directory.
//   - NewBreakerSender wraps another sender with a gobreaker circuit breaker
//     so a failing provider is not hammered by retries from webhook bursts.
//
// New selects between them from Config. When no API key is configured the
// returned sender fails each call with ErrMissingAPIKey; the service still
// boots and the failure is reported where the email is attempted.
//
//	sender, err := email.New(cfg)
//	if err != nil {
//		return err
//	}
//	sender = email.NewBreakerSender(sender, email.DefaultBreakerConfig(), log)
//
//	html, err := templates.Render(ctx, component)
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "paciente@example.com",
//		Subject:  "Assunto",
//		BodyHTML: html,
//	})
//
// All errors wrap a sentinel (ErrInvalidParams, ErrInvalidConfig,
// ErrFailedToSendEmail, ErrMissingAPIKey, ErrCircuitOpen) and can be matched
// with errors.Is.
package email
