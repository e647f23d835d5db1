package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

// NotificationWindow is the length of the weekly notification quota window.
const NotificationWindow = 7 * 24 * time.Hour

// ErrQuotaExceeded marks a gated action denied by the seller's tier limits.
// An expected business outcome, not a fault.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// Enforcer decides whether a seller may perform a gated action and owns the
// weekly notification window rollover. Every gated action follows
// check, then act, then increment: the increment lands only after the
// downstream action succeeded, so a failed action never consumes quota.
//
// The check and the increment are two separate store operations. Two
// concurrent requests can both pass the check before either increments,
// exceeding the nominal limit by a small margin. Accepted soft limit: the
// quotas gate convenience features, not a financial or security boundary.
type Enforcer struct {
	entities storage.EntityStore
	limits   Limits
	nowFn    func() time.Time
}

// NewEnforcer creates a quota enforcer over the given entity store.
func NewEnforcer(entities storage.EntityStore, limits Limits) *Enforcer {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Enforcer{
		entities: entities,
		limits:   limits,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Seller loads the seller and applies the lazy expiry check: an expired
// premium subscription is downgraded to free on read. There is no background
// sweep; expiry is detected opportunistically wherever subscription state is
// read.
func (e *Enforcer) Seller(ctx context.Context, sellerID string) (*model.Seller, error) {
	s, err := e.entities.GetSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	now := e.nowFn()
	if s.Tier == model.TierPremium && !s.IsPremium(now) {
		if err := e.entities.DowngradeExpired(ctx, sellerID); err != nil {
			// Quota path fails closed, but an expired seller evaluated as free
			// is already the closed outcome. Persisting the downgrade can wait.
			slog.Warn("[Quota] Failed to persist lazy downgrade",
				"seller_id", sellerID, "error", err)
		} else {
			slog.Info("[Quota] Premium subscription expired, downgraded to free",
				"seller_id", sellerID, "expired_at", s.SubscriptionExpiresAt)
		}
		s.Tier = model.TierFree
		s.SubscriptionExpiresAt = nil
	}
	return s, nil
}

// CanAddProduct decides whether the seller may list another product.
// A pure read of cached state; no window logic.
func (e *Enforcer) CanAddProduct(ctx context.Context, sellerID string) (Decision, error) {
	s, err := e.Seller(ctx, sellerID)
	if err != nil {
		return Decision{}, fmt.Errorf("product quota check: %w", err)
	}
	return e.productDecision(s), nil
}

func (e *Enforcer) productDecision(s *model.Seller) Decision {
	limits := e.limits.For(s.Tier)
	if limits.UnlimitedProducts {
		return Decision{Allowed: true, Unlimited: true}
	}
	remaining := limits.MaxProducts - s.ProductCount
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining}
}

// CanSendNotification decides whether the seller may broadcast, rolling the
// weekly window over first when it has elapsed. The rollover is persisted
// before the limit is evaluated, even when the seller is ultimately denied,
// so a re-check observes the corrected remaining count. The window advances
// to exactly now + 7 days; missed windows never compound into extra resets.
func (e *Enforcer) CanSendNotification(ctx context.Context, sellerID string) (Decision, error) {
	s, err := e.Seller(ctx, sellerID)
	if err != nil {
		return Decision{}, fmt.Errorf("notification quota check: %w", err)
	}

	now := e.nowFn()
	if s.NotificationWindowResetAt.IsZero() || !now.Before(s.NotificationWindowResetAt) {
		resetAt := now.Add(NotificationWindow)
		if err := e.entities.ResetNotificationWindow(ctx, sellerID, resetAt); err != nil {
			// Fail closed: an unpersisted rollover must not hand out quota.
			return Decision{}, fmt.Errorf("notification window rollover: %w", err)
		}
		s.WeeklyNotificationCount = 0
		s.NotificationWindowResetAt = resetAt
		slog.Info("[Quota] Rolled notification window",
			"seller_id", sellerID, "reset_at", resetAt)
	}

	limits := e.limits.For(s.Tier)
	if limits.UnlimitedNotifications {
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	remaining := limits.WeeklyNotifications - s.WeeklyNotificationCount
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining}, nil
}

// ConsumeNotification increments the weekly counter after a successful,
// non-empty send attempt.
func (e *Enforcer) ConsumeNotification(ctx context.Context, sellerID string) error {
	if err := e.entities.IncrementNotificationCount(ctx, sellerID); err != nil {
		return fmt.Errorf("consume notification quota: %w", err)
	}
	return nil
}

// OnProductCreated increments the cached product count after a successful create.
func (e *Enforcer) OnProductCreated(ctx context.Context, sellerID string) error {
	return e.entities.AdjustProductCount(ctx, sellerID, 1)
}

// OnProductDeleted decrements the cached product count, floored at zero.
func (e *Enforcer) OnProductDeleted(ctx context.Context, sellerID string) error {
	return e.entities.AdjustProductCount(ctx, sellerID, -1)
}

// Upgrade flips the seller to premium for the given number of months.
// Invoked by the external payment activation callback.
func (e *Enforcer) Upgrade(ctx context.Context, sellerID string, months int) (*model.Seller, error) {
	if months <= 0 {
		return nil, fmt.Errorf("upgrade: months must be positive, got %d", months)
	}

	expiresAt := e.nowFn().AddDate(0, months, 0)
	if err := e.entities.ActivatePremium(ctx, sellerID, expiresAt); err != nil {
		return nil, fmt.Errorf("activate premium for seller %s: %w", sellerID, err)
	}

	slog.Info("[Quota] Activated premium subscription",
		"seller_id", sellerID, "months", months, "expires_at", expiresAt)

	return e.entities.GetSeller(ctx, sellerID)
}

// Status reports both quotas for the seller. Reading the notification quota
// triggers the lazy window rollover; reading the seller triggers lazy expiry.
func (e *Enforcer) Status(ctx context.Context, sellerID string) (product, notification Decision, err error) {
	notification, err = e.CanSendNotification(ctx, sellerID)
	if err != nil {
		return Decision{}, Decision{}, err
	}

	product, err = e.CanAddProduct(ctx, sellerID)
	if err != nil {
		return Decision{}, Decision{}, err
	}

	return product, notification, nil
}
