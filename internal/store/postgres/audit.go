package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrymomot/psikit/pkg/audit"
)

// AuditRepository persists audit events and serves the admin listing.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Store(ctx context.Context, e audit.Event) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (
			id, user_id, action, resource, resource_id, result, error,
			request_id, ip, user_agent, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, nullable(e.UserID), e.Action, nullable(e.Resource), nullable(e.ResourceID),
		string(e.Result), nullable(e.Error), nullable(e.RequestID), nullable(e.IP),
		nullable(e.UserAgent), meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if c.UserID != "" {
		add("user_id = $%d", c.UserID)
	}
	if c.Action != "" {
		add("action = $%d", c.Action)
	}
	if c.Resource != "" {
		add("resource = $%d", c.Resource)
	}
	if !c.Since.IsZero() {
		add("created_at >= $%d", c.Since)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, COALESCE(user_id::text, ''), action, COALESCE(resource, ''),
		COALESCE(resource_id, ''), result, COALESCE(error, ''), COALESCE(request_id, ''),
		COALESCE(ip, ''), COALESCE(user_agent, ''), metadata, created_at FROM audit_logs`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC")
	if c.Limit > 0 {
		args = append(args, c.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if c.Offset > 0 {
		args = append(args, c.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e      audit.Event
			result string
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID, &result,
			&e.Error, &e.RequestID, &e.IP, &e.UserAgent, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Result = audit.Result(result)
		if e.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
