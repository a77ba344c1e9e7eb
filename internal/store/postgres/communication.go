package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// CommunicationLog is the ledger of notification attempts.
type CommunicationLog struct {
	db *sql.DB
}

func NewCommunicationLog(db *sql.DB) *CommunicationLog {
	return &CommunicationLog{db: db}
}

func (l *CommunicationLog) Append(ctx context.Context, entry notify.LogEntry) error {
	meta, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode communication log metadata: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO communication_logs (id, user_id, type, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Type.String(), string(entry.Status), meta, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert communication log: %w", err)
	}
	return nil
}

func (l *CommunicationLog) HasRecent(ctx context.Context, userID string, kind subscription.NotificationKind, since time.Time) (bool, error) {
	var found bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM communication_logs
			WHERE user_id = $1 AND type = $2 AND created_at > $3
		)`,
		userID, kind.String(), since,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check communication log: %w", err)
	}
	return found, nil
}
