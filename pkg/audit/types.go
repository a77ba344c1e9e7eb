package audit

import (
	"context"
	"fmt"
	"time"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Event is a single audit log entry.
type Event struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks if the event has all required fields.
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption applies configuration to an Event during creation.
type EventOption func(*Event)

// Criteria narrows a Reader query. Zero values match everything.
// Results are ordered newest first.
type Criteria struct {
	UserID   string
	Action   string
	Resource string
	Since    time.Time
	Limit    int
	Offset   int
}

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, event Event) error
}

// QueryStorage is a Storage that can also be searched.
type QueryStorage interface {
	Storage
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}
