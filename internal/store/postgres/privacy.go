package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/psikit/internal/privacy"
)

// PrivacyRepository serves the data export and deletion request workflow.
type PrivacyRepository struct {
	db *sql.DB
}

func NewPrivacyRepository(db *sql.DB) *PrivacyRepository {
	return &PrivacyRepository{db: db}
}

// exportTables maps each collection to its table. Only these identifiers
// are ever interpolated into SQL.
var exportTables = map[privacy.Collection]string{
	privacy.CollectionConsents:         "user_consents",
	privacy.CollectionCheckIns:         "check_ins",
	privacy.CollectionDiaryEntries:     "diary_entries",
	privacy.CollectionEmotionalRecords: "emotional_records",
}

func (r *PrivacyRepository) Profile(ctx context.Context, userID string) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT row_to_json(p) FROM profiles p WHERE p.id = $1`, userID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return json.RawMessage("null"), nil
	case err != nil:
		return nil, fmt.Errorf("export profile: %w", err)
	}
	return raw, nil
}

func (r *PrivacyRepository) Collection(ctx context.Context, c privacy.Collection, userID string) (json.RawMessage, error) {
	table, ok := exportTables[c]
	if !ok {
		return nil, fmt.Errorf("export: unknown collection %q", c)
	}
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(json_agg(t ORDER BY t.created_at), '[]'::json) FROM `+table+` t WHERE t.user_id = $1`,
		userID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", table, err)
	}
	return raw, nil
}

// Insert relies on the partial unique index over pending requests.
func (r *PrivacyRepository) Insert(ctx context.Context, req privacy.DeletionRequest) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO account_deletion_requests (id, user_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) WHERE status = 'pending' DO NOTHING`,
		req.ID, req.UserID, nullable(req.Reason), string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deletion request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return privacy.ErrRequestPending
	}
	return nil
}

const deletionRequestColumns = `id, user_id, COALESCE(reason, ''), status, created_at, completed_at`

func scanDeletionRequest(row *sql.Row) (privacy.DeletionRequest, error) {
	var (
		req       privacy.DeletionRequest
		status    string
		completed sql.NullTime
	)
	err := row.Scan(&req.ID, &req.UserID, &req.Reason, &status, &req.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return privacy.DeletionRequest{}, privacy.ErrRequestNotFound
	}
	if err != nil {
		return privacy.DeletionRequest{}, fmt.Errorf("load deletion request: %w", err)
	}
	req.Status = privacy.RequestStatus(status)
	if completed.Valid {
		t := completed.Time.UTC()
		req.CompletedAt = &t
	}
	return req, nil
}

func (r *PrivacyRepository) Get(ctx context.Context, id string) (privacy.DeletionRequest, error) {
	return scanDeletionRequest(r.db.QueryRowContext(ctx,
		`SELECT `+deletionRequestColumns+` FROM account_deletion_requests WHERE id = $1`, id))
}

func (r *PrivacyRepository) Pending(ctx context.Context, userID string) (privacy.DeletionRequest, error) {
	return scanDeletionRequest(r.db.QueryRowContext(ctx,
		`SELECT `+deletionRequestColumns+` FROM account_deletion_requests
		WHERE user_id = $1 AND status = 'pending'`, userID))
}

func (r *PrivacyRepository) Close(ctx context.Context, id string, status privacy.RequestStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE account_deletion_requests SET status = $2, completed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("close deletion request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return privacy.ErrRequestNotFound
	}
	return nil
}
