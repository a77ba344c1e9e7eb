package privacy_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/psikit/internal/privacy"
	"github.com/dmitrymomot/psikit/pkg/audit"
)

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mockSource struct{ mock.Mock }

func (m *mockSource) Profile(ctx context.Context, userID string) (json.RawMessage, error) {
	args := m.Called(ctx, userID)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *mockSource) Collection(ctx context.Context, c privacy.Collection, userID string) (json.RawMessage, error) {
	args := m.Called(ctx, c, userID)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type failingStorage struct{}

func (failingStorage) Store(context.Context, audit.Event) error { return errors.New("db down") }

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	src.On("Profile", mock.Anything, "u-1").Return(json.RawMessage(`{"full_name":"Ana"}`), nil)
	src.On("Collection", mock.Anything, privacy.CollectionConsents, "u-1").Return(json.RawMessage(`[{"consent_type":"terms"}]`), nil)
	src.On("Collection", mock.Anything, privacy.CollectionCheckIns, "u-1").Return(json.RawMessage(`[{"mood":3}]`), nil)
	src.On("Collection", mock.Anything, privacy.CollectionDiaryEntries, "u-1").Return(json.RawMessage(nil), nil)
	src.On("Collection", mock.Anything, privacy.CollectionEmotionalRecords, "u-1").Return(json.RawMessage(`[]`), nil)

	storage := audit.NewMemoryStorage()
	exp := privacy.NewExporter(src, audit.NewLogger(storage),
		privacy.WithExportClock(func() time.Time { return fixedNow }),
		privacy.WithExportLogger(discard()),
	)

	bundle, err := exp.Export(context.Background(), "u-1")
	require.NoError(t, err)
	src.AssertExpectations(t)

	out, err := json.Marshal(bundle)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"generated_at": "2025-06-01T10:00:00Z",
		"user_id": "u-1",
		"profile": {"full_name":"Ana"},
		"privacy": {"consents": [{"consent_type":"terms"}]},
		"data": {"check_ins": [{"mood":3}], "diary_entries": [], "emotional_records": []}
	}`, string(out))

	events, err := storage.Query(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, privacy.ActionExportData, events[0].Action)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.Equal(t, "user", events[0].Resource)
	assert.Equal(t, "u-1", events[0].ResourceID)
}

func TestExporter_SectionFailure(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	src.On("Profile", mock.Anything, "u-1").Return(json.RawMessage(`null`), nil)
	src.On("Collection", mock.Anything, privacy.CollectionCheckIns, "u-1").Return(nil, errors.New("timeout"))
	src.On("Collection", mock.Anything, mock.Anything, "u-1").Return(json.RawMessage(`[]`), nil)

	exp := privacy.NewExporter(src, audit.NewLogger(audit.NewMemoryStorage()), privacy.WithExportLogger(discard()))
	bundle, err := exp.Export(context.Background(), "u-1")
	assert.Nil(t, bundle)
	assert.ErrorIs(t, err, privacy.ErrExportFailed)
	assert.ErrorContains(t, err, "check_ins")
}

func TestExporter_AuditFailureBlocksExport(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	exp := privacy.NewExporter(src, audit.NewLogger(failingStorage{}), privacy.WithExportLogger(discard()))

	_, err := exp.Export(context.Background(), "u-1")
	assert.ErrorIs(t, err, privacy.ErrAuditFailed)
	src.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
}

func TestExporter_MissingUser(t *testing.T) {
	t.Parallel()

	exp := privacy.NewExporter(&mockSource{}, audit.NewLogger(audit.NewMemoryStorage()))
	_, err := exp.Export(context.Background(), "")
	assert.ErrorIs(t, err, privacy.ErrMissingUser)
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    privacy.Action
		wantErr bool
	}{
		{in: "approve", want: privacy.ActionApprove},
		{in: " Reject ", want: privacy.ActionReject},
		{in: "delete", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := privacy.ParseAction(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, privacy.ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type memoryRequests struct {
	mu   sync.Mutex
	byID map[string]privacy.DeletionRequest
}

func newMemoryRequests() *memoryRequests {
	return &memoryRequests{byID: map[string]privacy.DeletionRequest{}}
}

func (m *memoryRequests) Insert(_ context.Context, req privacy.DeletionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.UserID == req.UserID && r.Status == privacy.RequestPending {
			return privacy.ErrRequestPending
		}
	}
	m.byID[req.ID] = req
	return nil
}

func (m *memoryRequests) Get(_ context.Context, id string) (privacy.DeletionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return privacy.DeletionRequest{}, privacy.ErrRequestNotFound
	}
	return r, nil
}

func (m *memoryRequests) Pending(_ context.Context, userID string) (privacy.DeletionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.UserID == userID && r.Status == privacy.RequestPending {
			return r, nil
		}
	}
	return privacy.DeletionRequest{}, privacy.ErrRequestNotFound
}

func (m *memoryRequests) Close(_ context.Context, id string, status privacy.RequestStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return privacy.ErrRequestNotFound
	}
	r.Status = status
	r.CompletedAt = &at
	m.byID[id] = r
	return nil
}

type mockDeleter struct{ mock.Mock }

func (m *mockDeleter) DeleteUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func newRequests(store privacy.RequestStore, users privacy.UserDeleter, storage *audit.MemoryStorage) *privacy.Requests {
	return privacy.NewRequests(store, users, audit.NewLogger(storage),
		privacy.WithRequestsClock(func() time.Time { return fixedNow }),
		privacy.WithRequestsLogger(discard()),
	)
}

func TestRequests_CreateAndPending(t *testing.T) {
	t.Parallel()

	store := newMemoryRequests()
	reqs := newRequests(store, &mockDeleter{}, audit.NewMemoryStorage())
	ctx := context.Background()

	created, err := reqs.Create(ctx, "u-1", "  leaving  ")
	require.NoError(t, err)
	assert.Equal(t, privacy.RequestPending, created.Status)
	assert.Equal(t, "leaving", created.Reason)
	assert.Equal(t, fixedNow, created.CreatedAt)

	_, err = reqs.Create(ctx, "u-1", "")
	assert.ErrorIs(t, err, privacy.ErrRequestPending)

	pending, err := reqs.Pending(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, pending.ID)

	_, err = reqs.Pending(ctx, "u-2")
	assert.ErrorIs(t, err, privacy.ErrRequestNotFound)
}

func TestRequests_Approve(t *testing.T) {
	t.Parallel()

	store := newMemoryRequests()
	users := &mockDeleter{}
	storage := audit.NewMemoryStorage()
	reqs := newRequests(store, users, storage)
	ctx := context.Background()

	created, err := reqs.Create(ctx, "u-1", "")
	require.NoError(t, err)

	users.On("DeleteUser", mock.Anything, "u-1").Return(nil).Once()
	resolved, err := reqs.Resolve(ctx, created.ID, privacy.ActionApprove)
	require.NoError(t, err)
	users.AssertExpectations(t)

	assert.Equal(t, privacy.RequestCompleted, resolved.Status)
	require.NotNil(t, resolved.CompletedAt)
	assert.Equal(t, fixedNow, *resolved.CompletedAt)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, privacy.RequestCompleted, stored.Status)

	events, err := storage.Query(ctx, audit.Criteria{Action: privacy.ActionDeleteCompleted})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u-1", events[0].ResourceID)
	assert.Equal(t, created.ID, events[0].Metadata["request_id"])

	_, err = reqs.Resolve(ctx, created.ID, privacy.ActionReject)
	assert.ErrorIs(t, err, privacy.ErrRequestResolved)
}

func TestRequests_Reject(t *testing.T) {
	t.Parallel()

	store := newMemoryRequests()
	users := &mockDeleter{}
	reqs := newRequests(store, users, audit.NewMemoryStorage())
	ctx := context.Background()

	created, err := reqs.Create(ctx, "u-1", "")
	require.NoError(t, err)

	resolved, err := reqs.Resolve(ctx, created.ID, privacy.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, privacy.RequestRejected, resolved.Status)
	users.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)

	_, err = reqs.Create(ctx, "u-1", "again")
	assert.NoError(t, err)
}

func TestRequests_ApproveDeleteFailureKeepsPending(t *testing.T) {
	t.Parallel()

	store := newMemoryRequests()
	users := &mockDeleter{}
	reqs := newRequests(store, users, audit.NewMemoryStorage())
	ctx := context.Background()

	created, err := reqs.Create(ctx, "u-1", "")
	require.NoError(t, err)

	users.On("DeleteUser", mock.Anything, "u-1").Return(errors.New("fk violation"))
	_, err = reqs.Resolve(ctx, created.ID, privacy.ActionApprove)
	require.Error(t, err)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, privacy.RequestPending, stored.Status)
}

func TestRequests_ResolveErrors(t *testing.T) {
	t.Parallel()

	reqs := newRequests(newMemoryRequests(), &mockDeleter{}, audit.NewMemoryStorage())

	_, err := reqs.Resolve(context.Background(), "missing", privacy.ActionApprove)
	assert.ErrorIs(t, err, privacy.ErrRequestNotFound)

	_, err = reqs.Resolve(context.Background(), "missing", privacy.Action("purge"))
	assert.ErrorIs(t, err, privacy.ErrInvalidAction)
}
