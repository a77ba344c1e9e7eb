package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrymomot/psikit/internal/notify"
)

// UserRepository reads profile data, notification preferences and roles,
// and removes accounts.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EmailNotificationsEnabled treats a missing preferences row as opted in.
func (r *UserRepository) EmailNotificationsEnabled(ctx context.Context, userID string) (bool, error) {
	var enabled sql.NullBool
	err := r.db.QueryRowContext(ctx,
		`SELECT email_notifications FROM user_preferences WHERE user_id = $1`, userID,
	).Scan(&enabled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("load preferences for %s: %w", userID, err)
	}
	return !enabled.Valid || enabled.Bool, nil
}

func (r *UserRepository) Contact(ctx context.Context, userID string) (notify.Profile, error) {
	var p notify.Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(email, ''), COALESCE(full_name, '') FROM profiles WHERE id = $1`, userID,
	).Scan(&p.Email, &p.FullName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return notify.Profile{}, notify.ErrProfileNotFound
	case err != nil:
		return notify.Profile{}, fmt.Errorf("load profile for %s: %w", userID, err)
	}
	return p, nil
}

func (r *UserRepository) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`, userID, role,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check role for %s: %w", userID, err)
	}
	return ok, nil
}

// DeleteUser removes the account. Clinical data cascades from profiles;
// billing rows and the communication ledger are removed explicitly. Audit
// records are retained.
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{
		`DELETE FROM subscriptions WHERE user_id = $1`,
		`DELETE FROM communication_logs WHERE user_id = $1`,
		`DELETE FROM profiles WHERE id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("delete user %s: %w", userID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}
