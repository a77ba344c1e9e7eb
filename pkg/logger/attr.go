package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// SubscriptionID records the provider subscription id.
func SubscriptionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("subscription_id", id)
}

// EventType records a webhook or domain event type.
func EventType(t string) slog.Attr {
	return slog.String("event_type", t)
}

// EventID records a provider event id.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records an elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
