package audit

import (
	"context"
	"time"
)

// Option configures Logger behavior during initialization.
type Option func(*Logger)

// Context extractors populate events from the request context. A missing
// value leaves the corresponding field empty.

func WithUserIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.userIDExtractor = fn }
}

func WithRequestIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.requestIDExtractor = fn }
}

func WithIPExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.ipExtractor = fn }
}

func WithUserAgentExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.userAgentExtractor = fn }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithResource sets the resource type and ID.
func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithMetadata adds a metadata key to the event.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithUserID overrides the user taken from the context.
func WithUserID(userID string) EventOption {
	return func(e *Event) { e.UserID = userID }
}

// WithResult sets the event result.
func WithResult(result Result) EventOption {
	return func(e *Event) { e.Result = result }
}
