package billing_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

const secret = "whsec_test_secret"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu   sync.Mutex
	rows map[string]subscription.Subscription
	err  error
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]subscription.Subscription{}}
}

func (s *memStore) Upsert(_ context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows[sub.StripeSubscriptionID] = sub
	return nil
}

func (s *memStore) get(id string) (subscription.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.rows[id]
	return sub, ok
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, userID string, kind subscription.NotificationKind) (notify.Outcome, error) {
	args := m.Called(ctx, userID, kind)
	return args.Get(0).(notify.Outcome), args.Error(1)
}

type recordingCache struct {
	mu    sync.Mutex
	users []string
}

func (c *recordingCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProcessor(store billing.SubscriptionStore, n billing.Notifier, opts ...billing.ProcessorOption) *billing.Processor {
	opts = append([]billing.ProcessorOption{
		billing.WithClock(func() time.Time { return fixedNow }),
		billing.WithLogger(quietLogger()),
	}, opts...)
	return billing.NewProcessor(secret, store, n, opts...)
}

func signed(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	s := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return s.Payload, s.Header
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	body, header := signed(t, payload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func subscriptionEvent(eventType, status, previous string, metadata string) string {
	prev := ""
	if previous != "" {
		prev = fmt.Sprintf(`,"previous_attributes":{"status":%q}`, previous)
	}
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"sub_123","object":"subscription","customer":"cus_9","status":%q,"current_period_end":1748779200,"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_therapist_pro"}}]},"metadata":%s}%s}}`,
		eventType, status, metadata, prev)
}

func process(t *testing.T, p *billing.Processor, payload string) (billing.Result, error) {
	t.Helper()
	body, header := signed(t, payload)
	event, err := p.Verify(body, header)
	require.NoError(t, err)
	return p.Process(context.Background(), event)
}

func TestParseEventKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want billing.EventKind
	}{
		{"checkout.session.completed", billing.EventCheckoutCompleted},
		{"customer.subscription.updated", billing.EventSubscriptionUpdated},
		{"customer.subscription.deleted", billing.EventSubscriptionDeleted},
		{"invoice.paid", billing.EventUnknown},
		{"", billing.EventUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := billing.ParseEventKind(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.want != billing.EventUnknown {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}

func TestProcessor_Verify(t *testing.T) {
	t.Parallel()

	p := newProcessor(newMemStore(), &mockNotifier{})
	body, header := signed(t, `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	_, err := p.Verify(body, "")
	assert.ErrorIs(t, err, billing.ErrMissingSignature)

	_, err = p.Verify(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = p.Verify(append(body, ' '), header)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	event, err := p.Verify(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	unconfigured := billing.NewProcessor("  ", newMemStore(), &mockNotifier{})
	_, err = unconfigured.Verify(body, header)
	assert.ErrorIs(t, err, billing.ErrWebhookSecretMissing)
}

func TestProcessor_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	t.Run("with metadata", func(t *testing.T) {
		t.Parallel()

		store, cache, n := newMemStore(), &recordingCache{}, &mockNotifier{}
		p := newProcessor(store, n, billing.WithCache(cache))

		res, err := process(t, p, `{"id":"evt_c","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"u-1","plan":"therapist_pro","role":"therapist"}}}}`)
		require.NoError(t, err)
		assert.Equal(t, billing.EventCheckoutCompleted, res.Kind)
		assert.Equal(t, "u-1", res.UserID)

		row, ok := store.get("sub_1")
		require.True(t, ok)
		assert.Equal(t, subscription.StatusActive, row.Status)
		assert.Equal(t, "therapist_pro", row.Plan)
		assert.Equal(t, subscription.RoleTherapist, row.Role)
		assert.Equal(t, "cus_1", row.StripeCustomerID)
		require.NotNil(t, row.CurrentPeriodEnd)
		assert.Equal(t, fixedNow.Add(30*24*time.Hour), *row.CurrentPeriodEnd)
		assert.Equal(t, []string{"u-1"}, cache.users)
		n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		p := newProcessor(store, &mockNotifier{})

		_, err := process(t, p, `{"id":"evt_c","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","subscription":"sub_2","metadata":{"user_id":"u-2"}}}}`)
		require.NoError(t, err)

		row, ok := store.get("sub_2")
		require.True(t, ok)
		assert.Equal(t, "default", row.Plan)
		assert.Equal(t, subscription.RolePatient, row.Role)
	})

	t.Run("without user id", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		p := newProcessor(store, &mockNotifier{})

		res, err := process(t, p, `{"id":"evt_c","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","subscription":"sub_3","metadata":{}}}}`)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		_, ok := store.get("sub_3")
		assert.False(t, ok)
	})
}

func TestProcessor_SubscriptionUpdated_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous string
		status   string
		want     subscription.NotificationKind
	}{
		{name: "active to past_due", previous: "active", status: "past_due", want: subscription.NotificationPastDue},
		{name: "past_due to active", previous: "past_due", status: "active", want: subscription.NotificationReactivated},
		{name: "canceled to active", previous: "canceled", status: "active", want: subscription.NotificationReactivated},
		{name: "unpaid to active", previous: "unpaid", status: "active", want: subscription.NotificationReactivated},
		{name: "active to active", previous: "active", status: "active"},
		{name: "no previous status", status: "past_due"},
		{name: "past_due to unpaid", previous: "past_due", status: "unpaid"},
		{name: "trialing to active", previous: "trialing", status: "active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, n := newMemStore(), &mockNotifier{}
			if tt.want != "" {
				n.On("Notify", mock.Anything, "u-1", tt.want).Return(notify.OutcomeSent, nil).Once()
			}
			p := newProcessor(store, n)

			res, err := process(t, p, subscriptionEvent("customer.subscription.updated", tt.status, tt.previous, `{"user_id":"u-1","role":"therapist"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Notification)

			row, ok := store.get("sub_123")
			require.True(t, ok)
			assert.Equal(t, subscription.Status(tt.status), row.Status)
			assert.Equal(t, "price_therapist_pro", row.Plan)
			assert.Equal(t, subscription.RoleTherapist, row.Role)
			require.NotNil(t, row.CurrentPeriodEnd)
			assert.Equal(t, time.Unix(1748779200, 0).UTC(), *row.CurrentPeriodEnd)

			n.AssertExpectations(t)
			if tt.want == "" {
				n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestProcessor_SubscriptionUpdated_ItemPeriodEnd(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := newProcessor(store, &mockNotifier{})

	_, err := process(t, p, `{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_9","object":"subscription","status":"paused","items":{"object":"list","data":[{"id":"si_1","current_period_end":1750000000,"price":{"id":"price_x"}}]},"metadata":{"user_id":"u-9"}}}}`)
	require.NoError(t, err)

	row, ok := store.get("sub_9")
	require.True(t, ok)
	assert.Equal(t, subscription.Status("paused"), row.Status)
	assert.True(t, subscription.IsAccessBlockedAt(&row, fixedNow))
	require.NotNil(t, row.CurrentPeriodEnd)
	assert.Equal(t, int64(1750000000), row.CurrentPeriodEnd.Unix())
}

func TestProcessor_SubscriptionDeleted(t *testing.T) {
	t.Parallel()

	store, n := newMemStore(), &mockNotifier{}
	n.On("Notify", mock.Anything, "u-1", subscription.NotificationCanceled).
		Return(notify.OutcomeFailed, errors.New("provider down")).Once()
	p := newProcessor(store, n)

	res, err := process(t, p, subscriptionEvent("customer.subscription.deleted", "active", "", `{"user_id":"u-1"}`))
	require.NoError(t, err, "notification failures never fail the event")
	assert.Equal(t, subscription.NotificationCanceled, res.Notification)
	assert.Equal(t, notify.OutcomeFailed, res.Outcome)

	row, ok := store.get("sub_123")
	require.True(t, ok)
	assert.Equal(t, subscription.StatusCanceled, row.Status)
	n.AssertExpectations(t)
}

func TestProcessor_SkipsWithoutUserID(t *testing.T) {
	t.Parallel()

	store, n := newMemStore(), &mockNotifier{}
	p := newProcessor(store, n)

	res, err := process(t, p, subscriptionEvent("customer.subscription.deleted", "canceled", "", `{}`))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	_, ok := store.get("sub_123")
	assert.False(t, ok)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_CheckoutWithoutSubscription(t *testing.T) {
	t.Parallel()

	store, n := newMemStore(), &mockNotifier{}
	p := newProcessor(store, n)

	res, err := process(t, p, `{"id":"evt_p","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_pay","object":"checkout.session","mode":"payment","customer":"cus_9","metadata":{"user_id":"u-9"}}}}`)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "u-9", res.UserID)
	_, ok := store.get("")
	assert.False(t, ok)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_StoreFailure(t *testing.T) {
	t.Parallel()

	store, n := newMemStore(), &mockNotifier{}
	store.err = errors.New("connection reset")
	p := newProcessor(store, n)

	_, err := process(t, p, subscriptionEvent("customer.subscription.updated", "past_due", "active", `{"user_id":"u-1"}`))
	require.ErrorIs(t, err, billing.ErrUpsertSubscription)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_UnknownEvent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := newProcessor(store, &mockNotifier{})

	res, err := process(t, p, `{"id":"evt_x","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	require.NoError(t, err)
	assert.Equal(t, billing.EventUnknown, res.Kind)
	assert.Empty(t, store.rows)
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secret  string
		request func(t *testing.T) *http.Request
		code    int
		body    string
	}{
		{
			name:   "unknown event acknowledged",
			secret: secret,
			request: func(t *testing.T) *http.Request {
				return signedRequest(t, `{"id":"evt_x","object":"event","type":"invoice.paid","data":{"object":{}}}`)
			},
			code: http.StatusOK,
			body: `{"received":true}`,
		},
		{
			name:   "method not allowed",
			secret: secret,
			request: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
			},
			code: http.StatusMethodNotAllowed,
			body: `{"error":"method not allowed"}`,
		},
		{
			name:   "secret missing",
			secret: "",
			request: func(t *testing.T) *http.Request {
				return signedRequest(t, `{}`)
			},
			code: http.StatusServiceUnavailable,
			body: `{"error":"webhook secret not configured"}`,
		},
		{
			name:   "missing signature",
			secret: secret,
			request: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
			},
			code: http.StatusBadRequest,
			body: `{"error":"missing Stripe signature"}`,
		},
		{
			name:   "invalid signature",
			secret: secret,
			request: func(*testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
				req.Header.Set("Stripe-Signature", "t=1,v1=bad")
				return req
			},
			code: http.StatusBadRequest,
			body: `{"error":"invalid Stripe signature"}`,
		},
		{
			name:   "processing failure",
			secret: secret,
			request: func(t *testing.T) *http.Request {
				return signedRequest(t, subscriptionEvent("customer.subscription.updated", "active", "", `{"user_id":"u-fail"}`))
			},
			code: http.StatusInternalServerError,
			body: `{"error":"processing failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore()
			if tt.name == "processing failure" {
				store.err = errors.New("db down")
			}
			p := billing.NewProcessor(tt.secret, store, &mockNotifier{}, billing.WithLogger(quietLogger()))
			h := billing.NewWebhookHandler(p, quietLogger())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.request(t))

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWebhookHandler_NotificationFailureStillAcknowledged(t *testing.T) {
	t.Parallel()

	store, n := newMemStore(), &mockNotifier{}
	n.On("Notify", mock.Anything, "u-1", subscription.NotificationPastDue).
		Return(notify.OutcomeFailed, notify.ErrDeliveryFail).Once()
	h := billing.NewWebhookHandler(newProcessor(store, n), quietLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, subscriptionEvent("customer.subscription.updated", "past_due", "active", `{"user_id":"u-1"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	row, ok := store.get("sub_123")
	require.True(t, ok)
	assert.Equal(t, subscription.StatusPastDue, row.Status)
	n.AssertExpectations(t)
}
