package privacy

import "errors"

var (
	ErrRequestPending  = errors.New("privacy: a deletion request is already pending")
	ErrRequestNotFound = errors.New("privacy: deletion request not found")
	ErrRequestResolved = errors.New("privacy: deletion request already resolved")
	ErrInvalidAction   = errors.New("privacy: action must be approve or reject")
	ErrExportFailed    = errors.New("privacy: failed to build export")
	ErrAuditFailed     = errors.New("privacy: failed to record audit event")
	ErrMissingUser     = errors.New("privacy: user id is required")
)
