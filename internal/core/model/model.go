package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription tiers. Free sellers are quota-limited; premium sellers are not.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Product lifecycle states.
const (
	ProductActive   = "active"
	ProductInactive = "inactive"
)

// Seller is the quota subject. The counter fields are caches: productCount is
// authoritative in the products table and corrected by reconciliation;
// weeklyNotificationCount is owned by the quota enforcer.
type Seller struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"name"`
	Tier                      string     `json:"tier"`
	ProductCount              int        `json:"product_count"`
	WeeklyNotificationCount   int        `json:"weekly_notification_count"`
	NotificationWindowResetAt time.Time  `json:"notification_window_reset_at"`
	SubscriptionExpiresAt     *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
}

// Product belongs to one seller. The views/likes/sales counters are mutated
// only through the event recorder.
type Product struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	Views     int64           `json:"views"`
	Likes     int64           `json:"likes"`
	Sales     int64           `json:"sales"`
	CreatedAt time.Time       `json:"created_at"`
}

// TopProduct is one entry of the top-N ranking snapshot kept on the lifetime bucket.
type TopProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Views     int64           `json:"views"`
	Sales     int64           `json:"sales"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// AnalyticsBucket is the aggregate document for one (seller, granularity, period).
// Counter fields are merged via increment; TopProducts and Products are overwritten
// wholesale (ranking order and reconciled counts are not expressible as deltas).
type AnalyticsBucket struct {
	SellerID    string          `json:"seller_id"`
	Granularity string          `json:"granularity"`
	PeriodID    string          `json:"period_id"`
	Views       int64           `json:"views"`
	Likes       int64           `json:"likes"`
	Sales       int64           `json:"sales"`
	Revenue     decimal.Decimal `json:"revenue"`
	Products    int             `json:"products,omitempty"`
	TopProducts []TopProduct    `json:"top_products,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NotificationRecord is the append-only ledger entry for one send attempt.
// Exactly one record per attempt, partial failure included.
type NotificationRecord struct {
	ID             string    `json:"id"`
	SellerID       string    `json:"seller_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	TargetAudience string    `json:"target_audience"`
	Delivered      int       `json:"delivered"`
	Failed         int       `json:"failed"`
	FellBack       bool      `json:"fell_back"`
	SentAt         time.Time `json:"sent_at"`
}

// Device is one registered push-delivery address.
type Device struct {
	Address    string    `json:"address"`
	Verified   bool      `json:"verified"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// IsPremium reports whether the seller holds an unexpired premium subscription
// at the given instant. Expiry is evaluated lazily here; there is no sweep.
func (s *Seller) IsPremium(now time.Time) bool {
	if s.Tier != TierPremium {
		return false
	}
	if s.SubscriptionExpiresAt != nil && !now.Before(*s.SubscriptionExpiresAt) {
		return false
	}
	return true
}
