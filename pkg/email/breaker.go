package email

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker placed in front of the provider.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // allowed while half-open
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open-state duration
	FailureThreshold uint32        // consecutive failures before tripping
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "email",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

type breakerSender struct {
	next    EmailSender
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSender wraps next with a circuit breaker. Invalid params never
// count as provider failures. While the circuit is open every call fails
// fast with ErrCircuitOpen.
func NewBreakerSender(next EmailSender, cfg BreakerConfig, log *slog.Logger) EmailSender {
	if log == nil {
		log = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidParams) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("email circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &breakerSender{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *breakerSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.SendEmail(ctx, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}
