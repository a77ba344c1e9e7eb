package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// contextExtractor returns (value, found) for a request-scoped attribute.
type contextExtractor func(context.Context) (string, bool)

// Logger records audit events, enriching them from the request context.
type Logger struct {
	storage            Storage
	userIDExtractor    contextExtractor
	requestIDExtractor contextExtractor
	ipExtractor        contextExtractor
	userAgentExtractor contextExtractor
	now                func() time.Time
}

// NewLogger creates an audit logger. It panics on nil storage.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.store(ctx, action, ResultSuccess, nil, opts)
}

// LogError records a failed action together with the cause.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.store(ctx, action, ResultError, err, opts)
}

func (l *Logger) store(ctx context.Context, action string, result Result, cause error, opts []EventOption) error {
	event := l.eventFromContext(ctx)
	event.ID = uuid.NewString()
	event.CreatedAt = l.now().UTC()
	event.Action = action
	event.Result = result
	if cause != nil {
		event.Error = cause.Error()
	}

	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		return err
	}
	if err := l.storage.Store(ctx, event); err != nil {
		return errors.Join(ErrStorageNotAvailable, err)
	}
	return nil
}

func (l *Logger) eventFromContext(ctx context.Context) Event {
	var event Event
	extract := func(fn contextExtractor, dst *string) {
		if fn == nil {
			return
		}
		if v, ok := fn(ctx); ok {
			*dst = v
		}
	}
	extract(l.userIDExtractor, &event.UserID)
	extract(l.requestIDExtractor, &event.RequestID)
	extract(l.ipExtractor, &event.IP)
	extract(l.userAgentExtractor, &event.UserAgent)
	return event
}
