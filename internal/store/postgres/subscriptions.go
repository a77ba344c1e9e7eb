package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// SubscriptionRepository stores provider subscriptions, one row per
// stripe_subscription_id.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const upsertSubscriptionQuery = `
INSERT INTO subscriptions (
	user_id, status, plan, role, current_period_end,
	stripe_customer_id, stripe_subscription_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (stripe_subscription_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	status = EXCLUDED.status,
	plan = EXCLUDED.plan,
	role = EXCLUDED.role,
	current_period_end = EXCLUDED.current_period_end,
	stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
	updated_at = now()`

func (r *SubscriptionRepository) Upsert(ctx context.Context, sub subscription.Subscription) error {
	if sub.StripeSubscriptionID == "" {
		return errors.New("postgres: stripe subscription id is required")
	}
	_, err := r.db.ExecContext(ctx, upsertSubscriptionQuery,
		sub.UserID,
		string(sub.Status),
		sub.Plan,
		string(sub.Role),
		sub.CurrentPeriodEnd,
		nullable(sub.StripeCustomerID),
		sub.StripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	return nil
}

const subscriptionColumns = `user_id, status, plan, role, current_period_end,
	COALESCE(stripe_customer_id, ''), stripe_subscription_id, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (subscription.Subscription, error) {
	var (
		sub       subscription.Subscription
		status    string
		role      string
		periodEnd sql.NullTime
	)
	err := row.Scan(&sub.UserID, &status, &sub.Plan, &role, &periodEnd,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return subscription.Subscription{}, err
	}
	sub.Status = subscription.Status(status)
	sub.Role = subscription.Role(role)
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}

// Current returns the user's most recent subscription among the statuses
// visible to users.
func (r *SubscriptionRepository) Current(ctx context.Context, userID string) (*subscription.Subscription, error) {
	in, args := statusList(subscription.VisibleStatuses, 2)
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = $1 AND status IN (` + in + `)
		ORDER BY created_at DESC LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, append([]any{userID}, args...)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription for %s: %w", userID, err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) ListByStatus(ctx context.Context, status subscription.Status) ([]subscription.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = $1 ORDER BY current_period_end`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list %s subscriptions: %w", status, err)
	}
	defer rows.Close()

	var out []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ActivePlanCounts groups billable subscriptions by plan.
func (r *SubscriptionRepository) ActivePlanCounts(ctx context.Context) (map[string]int64, error) {
	in, args := statusList(subscription.BillableStatuses, 1)
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(plan, 'unknown'), count(*) FROM subscriptions WHERE status IN (`+in+`) GROUP BY 1`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("count active plans: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			plan string
			n    int64
		)
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, fmt.Errorf("scan plan count: %w", err)
		}
		out[plan] = n
	}
	return out, rows.Err()
}

// CanceledSince counts subscriptions canceled at or after since, using
// created_at for rows that were never updated.
func (r *SubscriptionRepository) CanceledSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM subscriptions WHERE status = $1 AND COALESCE(updated_at, created_at) >= $2`,
		string(subscription.StatusCanceled), since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count churn: %w", err)
	}
	return n, nil
}
