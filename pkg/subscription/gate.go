package subscription

import (
	"context"
	"time"
)

// Access is the effective entitlement derived from a subscription at a point in time.
// It holds no state of its own and must be recomputed when the subscription or the catalog changes.
type Access struct {
	Plan               *Plan `json:"plan"`
	Blocked            bool  `json:"blocked"`
	InGracePeriod      bool  `json:"in_grace_period"`
	GraceDaysRemaining int   `json:"grace_days_remaining"`
}

// CanAddPatient reports whether one more patient fits in the plan's patient limit.
// No plan denies; a plan without a patient limit allows.
func (a Access) CanAddPatient(currentCount int64) bool {
	if a.Plan == nil {
		return false
	}
	limit, ok := a.Plan.Limit(ResourcePatients)
	if !ok {
		return true
	}
	return currentCount < limit
}

// HasFeature reports whether the resolved plan enables the feature.
func (a Access) HasFeature(f Feature) bool {
	return a.Plan != nil && a.Plan.HasFeature(f)
}

// Gate resolves subscriptions to plans from a catalog.
type Gate struct {
	catalog *Catalog
}

// NewGate creates a gate backed by the given catalog.
// Panics if catalog is nil.
func NewGate(catalog *Catalog) *Gate {
	if catalog == nil {
		panic("subscription: catalog cannot be nil")
	}
	return &Gate{catalog: catalog}
}

// NewGateFromSource loads the catalog from src and returns a gate over it.
func NewGateFromSource(ctx context.Context, src PlansListSource) (*Gate, error) {
	catalog, err := LoadCatalog(ctx, src)
	if err != nil {
		return nil, err
	}
	return NewGate(catalog), nil
}

// Catalog returns the gate's plan catalog.
func (g *Gate) Catalog() *Catalog { return g.catalog }

// Evaluate derives access for sub at now. A blocked subscription resolves to no plan
// regardless of its plan field, and so does a plan identifier missing from the catalog.
func (g *Gate) Evaluate(sub *Subscription, now time.Time) Access {
	access := Access{
		Blocked:            IsAccessBlockedAt(sub, now),
		InGracePeriod:      IsInGracePeriodAt(sub, now),
		GraceDaysRemaining: GracePeriodDaysRemainingAt(sub, now),
	}
	if access.Blocked {
		return access
	}
	if plan, ok := g.catalog.Lookup(sub.Plan); ok {
		access.Plan = &plan
	}
	return access
}

// Reader fetches the subscription the access gate evaluates for a user.
// Implementations return ErrSubscriptionNotFound when the user has none.
type Reader interface {
	Current(ctx context.Context, userID string) (*Subscription, error)
}
