package subscription

import "maps"

// Transition is a status change observed on a provider subscription update.
type Transition struct {
	From Status
	To   Status
}

// transitions lists every status change that produces a user notification.
// Pairs not listed here are silent.
var transitions = map[Transition]NotificationKind{
	{From: StatusActive, To: StatusPastDue}:  NotificationPastDue,
	{From: StatusPastDue, To: StatusActive}:  NotificationReactivated,
	{From: StatusCanceled, To: StatusActive}: NotificationReactivated,
	{From: StatusUnpaid, To: StatusActive}:   NotificationReactivated,
}

// NotificationFor returns the notification owed for a from→to status change.
// An empty from means the provider did not report a previous status, which never notifies.
func NotificationFor(from, to Status) (NotificationKind, bool) {
	kind, ok := transitions[Transition{From: from, To: to}]
	return kind, ok
}

// Transitions returns a copy of the notification transition table.
func Transitions() map[Transition]NotificationKind {
	return maps.Clone(transitions)
}
