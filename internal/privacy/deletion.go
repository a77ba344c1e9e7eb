package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/psikit/pkg/audit"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestRejected  RequestStatus = "rejected"
)

// Action is an administrator's decision on a deletion request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	default:
		return "", ErrInvalidAction
	}
}

type DeletionRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Reason      string        `json:"reason,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// RequestStore persists deletion requests. Insert returns ErrRequestPending
// when the user already has a pending request; Get and Pending return
// ErrRequestNotFound when nothing matches.
type RequestStore interface {
	Insert(ctx context.Context, req DeletionRequest) error
	Get(ctx context.Context, id string) (DeletionRequest, error)
	Pending(ctx context.Context, userID string) (DeletionRequest, error)
	Close(ctx context.Context, id string, status RequestStatus, at time.Time) error
}

// UserDeleter removes an account and everything that cascades from it.
type UserDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Requests runs the deletion request workflow.
type Requests struct {
	store RequestStore
	users UserDeleter
	audit AuditLogger
	now   func() time.Time
	log   *slog.Logger
}

type RequestsOption func(*Requests)

func WithRequestsClock(now func() time.Time) RequestsOption {
	return func(r *Requests) { r.now = now }
}

func WithRequestsLogger(l *slog.Logger) RequestsOption {
	return func(r *Requests) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRequests(store RequestStore, users UserDeleter, auditLog AuditLogger, opts ...RequestsOption) *Requests {
	r := &Requests{store: store, users: users, audit: auditLog, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a pending request for userID.
func (r *Requests) Create(ctx context.Context, userID, reason string) (DeletionRequest, error) {
	if userID == "" {
		return DeletionRequest{}, ErrMissingUser
	}
	req := DeletionRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Reason:    strings.TrimSpace(reason),
		Status:    RequestPending,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.Insert(ctx, req); err != nil {
		return DeletionRequest{}, err
	}
	r.record(ctx, ActionDeleteRequested, req)
	return req, nil
}

// Pending returns the user's open request.
func (r *Requests) Pending(ctx context.Context, userID string) (DeletionRequest, error) {
	if userID == "" {
		return DeletionRequest{}, ErrMissingUser
	}
	return r.store.Pending(ctx, userID)
}

// Resolve applies an administrator decision. Approving deletes the user
// before the request is closed, so a failed deletion leaves it pending.
func (r *Requests) Resolve(ctx context.Context, requestID string, action Action) (DeletionRequest, error) {
	if action != ActionApprove && action != ActionReject {
		return DeletionRequest{}, ErrInvalidAction
	}
	req, err := r.store.Get(ctx, requestID)
	if err != nil {
		return DeletionRequest{}, err
	}
	if req.Status != RequestPending {
		return DeletionRequest{}, ErrRequestResolved
	}

	now := r.now().UTC()
	status, auditAction := RequestRejected, ActionDeleteRejected
	if action == ActionApprove {
		if err := r.users.DeleteUser(ctx, req.UserID); err != nil {
			return DeletionRequest{}, fmt.Errorf("delete user %s: %w", req.UserID, err)
		}
		status, auditAction = RequestCompleted, ActionDeleteCompleted
	}
	if err := r.store.Close(ctx, req.ID, status, now); err != nil {
		return DeletionRequest{}, err
	}

	req.Status = status
	req.CompletedAt = &now
	r.record(ctx, auditAction, req)
	r.log.InfoContext(ctx, "deletion request resolved",
		slog.String("request_id", req.ID),
		slog.String("status", string(status)),
		logger.UserID(req.UserID),
	)
	return req, nil
}

// record writes the audit trail. A failure here cannot undo a deletion,
// so it is logged rather than returned.
func (r *Requests) record(ctx context.Context, action string, req DeletionRequest) {
	err := r.audit.Log(ctx, action,
		audit.WithResource(auditResourceUser, req.UserID),
		audit.WithMetadata(auditMetadataRequestKey, req.ID),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.ErrorContext(ctx, "failed to audit deletion request",
			slog.String("action", action),
			logger.UserID(req.UserID),
			logger.Error(err),
		)
	}
}
