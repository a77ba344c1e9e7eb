package audit

import "context"

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Reader queries stored audit events.
type Reader struct {
	storage QueryStorage
}

// NewReader creates a Reader. It panics on nil storage.
func NewReader(storage QueryStorage) *Reader {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	return &Reader{storage: storage}
}

// Find returns events matching criteria, newest first. The limit is clamped
// to [1, 100] with a default of 50.
func (r *Reader) Find(ctx context.Context, criteria Criteria) ([]Event, error) {
	switch {
	case criteria.Limit <= 0:
		criteria.Limit = defaultLimit
	case criteria.Limit > maxLimit:
		criteria.Limit = maxLimit
	}
	if criteria.Offset < 0 {
		criteria.Offset = 0
	}
	return r.storage.Query(ctx, criteria)
}
