package notify

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// LogStatus is the outcome recorded in the communication ledger.
type LogStatus string

const (
	StatusSent   LogStatus = "sent"
	StatusFailed LogStatus = "failed"
	StatusOptOut LogStatus = "opt_out"
)

// LogEntry is one row of the communication ledger.
type LogEntry struct {
	ID        string                        `json:"id"`
	UserID    string                        `json:"user_id"`
	Type      subscription.NotificationKind `json:"type"`
	Status    LogStatus                     `json:"status"`
	Metadata  map[string]any                `json:"metadata,omitempty"`
	CreatedAt time.Time                     `json:"created_at"`
}

// Ledger is the append-only record of notification attempts.
type Ledger interface {
	Append(ctx context.Context, entry LogEntry) error
	// HasRecent reports whether any entry of kind exists for userID created
	// strictly after since.
	HasRecent(ctx context.Context, userID string, kind subscription.NotificationKind, since time.Time) (bool, error)
}

// PreferenceStore reads per-user notification preferences. Users without a
// stored preference have email enabled.
type PreferenceStore interface {
	EmailNotificationsEnabled(ctx context.Context, userID string) (bool, error)
}

// Profile is the contact data needed to address an email.
type Profile struct {
	Email    string
	FullName string
}

// ProfileStore resolves contact data. It returns ErrProfileNotFound for
// unknown users.
type ProfileStore interface {
	Contact(ctx context.Context, userID string) (Profile, error)
}

var ErrProfileNotFound = errors.New("notify: profile not found")
