package graceperiod_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/psikit/internal/graceperiod"
	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/pkg/email"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

var now = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func daysAgo(d float64) *time.Time {
	t := now.Add(-time.Duration(d * float64(24*time.Hour)))
	return &t
}

type listerFunc func(ctx context.Context, status subscription.Status) ([]subscription.Subscription, error)

func (f listerFunc) ListByStatus(ctx context.Context, status subscription.Status) ([]subscription.Subscription, error) {
	return f(ctx, status)
}

func staticSubs(subs ...subscription.Subscription) listerFunc {
	return func(_ context.Context, status subscription.Status) ([]subscription.Subscription, error) {
		var out []subscription.Subscription
		for _, s := range subs {
			if s.Status == status {
				out = append(out, s)
			}
		}
		return out, nil
	}
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendEmail(ctx context.Context, p email.SendEmailParams) error {
	return m.Called(ctx, p).Error(0)
}

type prefs map[string]bool

func (p prefs) EmailNotificationsEnabled(_ context.Context, userID string) (bool, error) {
	enabled, ok := p[userID]
	return !ok || enabled, nil
}

type profiles map[string]notify.Profile

func (p profiles) Contact(_ context.Context, userID string) (notify.Profile, error) {
	profile, ok := p[userID]
	if !ok {
		return notify.Profile{}, notify.ErrProfileNotFound
	}
	return profile, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ledger *notify.MemoryLedger
	sender *mockSender
	job    *graceperiod.Job
}

func newFixture(subs graceperiod.SubscriptionLister, pr prefs, pf profiles) *fixture {
	ledger := notify.NewMemoryLedger()
	sender := &mockSender{}
	clock := func() time.Time { return now }
	dispatcher := notify.NewDispatcher(sender, ledger, pr, pf,
		notify.WithClock(clock),
		notify.WithLogger(quietLogger()))
	return &fixture{
		ledger: ledger,
		sender: sender,
		job: graceperiod.NewJob(subs, ledger, dispatcher,
			graceperiod.WithClock(clock),
			graceperiod.WithLogger(quietLogger())),
	}
}

func pastDue(userID string, periodEnd *time.Time) subscription.Subscription {
	return subscription.Subscription{
		UserID:               userID,
		Status:               subscription.StatusPastDue,
		CurrentPeriodEnd:     periodEnd,
		StripeSubscriptionID: "sub_" + userID,
	}
}

func TestJob_SendsOncePerWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(staticSubs(pastDue("u-1", daysAgo(4))), nil, profiles{"u-1": {Email: "ana@example.com", FullName: "Ana"}})
	f.sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "ana@example.com" && p.Tag == "grace_period_warning"
	})).Return(nil).Once()

	first, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{Sent: 1}, first)

	second, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{Skipped: 1}, second)

	entries := f.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, notify.StatusSent, entries[0].Status)
	assert.Equal(t, subscription.NotificationGraceWarning, entries[0].Type)
	f.sender.AssertExpectations(t)
}

func TestJob_Window(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		days float64
		sent int
	}{
		{name: "too early", days: 3.49},
		{name: "window start", days: 3.5, sent: 1},
		{name: "middle", days: 4, sent: 1},
		{name: "window end", days: 4.5, sent: 1},
		{name: "too late", days: 4.51},
		{name: "grace expired", days: 8},
		{name: "period not ended", days: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(staticSubs(pastDue("u-1", daysAgo(tt.days))), nil, profiles{"u-1": {Email: "a@example.com"}})
			f.sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil).Maybe()

			res, err := f.job.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, graceperiod.Result{Sent: tt.sent}, res)
		})
	}
}

func TestJob_IgnoresIneligible(t *testing.T) {
	t.Parallel()

	active := pastDue("u-2", daysAgo(4))
	active.Status = subscription.StatusActive
	f := newFixture(staticSubs(pastDue("u-1", nil), active), nil, profiles{})

	res, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{}, res)
	f.sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestJob_OptOut(t *testing.T) {
	t.Parallel()

	f := newFixture(staticSubs(pastDue("u-1", daysAgo(4))), prefs{"u-1": false}, profiles{"u-1": {Email: "a@example.com"}})

	res, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{Skipped: 1}, res)

	entries := f.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, notify.StatusOptOut, entries[0].Status)
	assert.Equal(t, notify.OptOutReason, entries[0].Metadata["reason"])
	f.sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)

	// An opt_out entry counts as a recent warning for deduplication.
	res, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{Skipped: 1}, res)
	assert.Len(t, f.ledger.Entries(), 1)
}

func TestJob_DeliveryFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(
		staticSubs(pastDue("u-1", daysAgo(4)), pastDue("u-2", daysAgo(4))),
		nil,
		profiles{"u-1": {Email: "fail@example.com"}, "u-2": {Email: "ok@example.com"}},
	)
	f.sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "fail@example.com"
	})).Return(errors.New("smtp 421")).Once()
	f.sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "ok@example.com"
	})).Return(nil).Once()

	res, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{Sent: 1, Errors: 1}, res)

	statuses := map[string]notify.LogStatus{}
	for _, e := range f.ledger.Entries() {
		statuses[e.UserID] = e.Status
	}
	assert.Equal(t, map[string]notify.LogStatus{"u-1": notify.StatusFailed, "u-2": notify.StatusSent}, statuses)
}

func TestJob_NoRecipient(t *testing.T) {
	t.Parallel()

	f := newFixture(staticSubs(pastDue("ghost", daysAgo(4))), nil, profiles{})

	res, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, graceperiod.Result{}, res)
	assert.Empty(t, f.ledger.Entries())
}

func TestJob_ListFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(listerFunc(func(context.Context, subscription.Status) ([]subscription.Subscription, error) {
		return nil, errors.New("db down")
	}), nil, nil)

	_, err := f.job.Run(context.Background())
	assert.ErrorIs(t, err, graceperiod.ErrListSubscriptions)
}

func TestJob_Canceled(t *testing.T) {
	t.Parallel()

	f := newFixture(staticSubs(pastDue("u-1", daysAgo(4))), nil, profiles{"u-1": {Email: "a@example.com"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	f.sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestConfig_Location(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "America/Sao_Paulo", graceperiod.Config{TimeZone: "America/Sao_Paulo"}.Location().String())
	assert.Equal(t, time.UTC, graceperiod.Config{TimeZone: "Mars/Olympus"}.Location())
}
