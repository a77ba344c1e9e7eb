package billing

import (
	"strings"
	"time"
)

// EventKind is the closed set of provider events the processor reacts to.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

var eventKindNames = map[EventKind]string{
	EventUnknown:             "unknown",
	EventCheckoutCompleted:   "checkout.session.completed",
	EventSubscriptionUpdated: "customer.subscription.updated",
	EventSubscriptionDeleted: "customer.subscription.deleted",
}

// ParseEventKind maps a Stripe event type to an EventKind. Anything not
// handled maps to EventUnknown.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	default:
		return EventUnknown
	}
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return eventKindNames[EventUnknown]
}

// checkoutSessionObject is the part of a checkout.session object the processor reads.
type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// Subscription is the part of a subscription object the processor reads.
// Newer API versions report the period end per item only.
type Subscription struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// FirstPriceID returns the price ID of the first subscription item.
func (s *Subscription) FirstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

// PeriodEnd returns the paid-through instant, preferring the subscription
// level field and falling back to the first item.
func (s *Subscription) PeriodEnd() *time.Time {
	unix := s.CurrentPeriodEnd
	if unix == 0 {
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd != 0 {
				unix = item.CurrentPeriodEnd
				break
			}
		}
	}
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

func metadataOr(md map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(md[key]); v != "" {
		return v
	}
	return fallback
}
