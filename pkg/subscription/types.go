package subscription

// Status mirrors the billing provider's subscription status.
type Status string

const (
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusUnpaid            Status = "unpaid"
)

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// Known reports whether the status is one of the provider statuses handled by this package.
// Unknown statuses are persisted verbatim and treated as blocked.
func (s Status) Known() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusCanceled, StatusIncomplete,
		StatusIncompleteExpired, StatusTrialing, StatusUnpaid:
		return true
	}
	return false
}

// VisibleStatuses are the statuses a user-facing subscription lookup considers.
// Incomplete checkouts never surface to the user.
var VisibleStatuses = []Status{StatusActive, StatusPastDue, StatusCanceled, StatusTrialing}

// BillableStatuses are counted as paying subscriptions in reporting.
var BillableStatuses = []Status{StatusActive, StatusPastDue, StatusTrialing}

// Role is the account role a plan is sold to.
type Role string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
)

// Resource represents a countable resource type limited by a plan.
type Resource string

const (
	ResourcePatients Resource = "patients"
)

// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureExport         Feature = "export"
	FeatureCharts         Feature = "charts"
	FeatureTimeline       Feature = "timeline"
	FeatureQuestionnaires Feature = "questionnaires"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, R$ 29,90 is Amount: 2990, Currency: "BRL".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// NotificationKind identifies a subscription related message sent to a user.
// The value doubles as the communication ledger type.
type NotificationKind string

const (
	NotificationPastDue      NotificationKind = "past_due"
	NotificationReactivated  NotificationKind = "reactivated"
	NotificationCanceled     NotificationKind = "canceled"
	NotificationGraceWarning NotificationKind = "grace_period_warning"
)

func (k NotificationKind) String() string { return string(k) }
