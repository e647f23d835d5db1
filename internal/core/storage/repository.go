package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an addressed entity does not exist.
var ErrNotFound = errors.New("entity not found")

// BucketKey addresses one aggregate document: (seller, granularity, period).
type BucketKey struct {
	SellerID    string
	Granularity string
	PeriodID    string
}

// FieldDeltas carries the per-field increments of one merge. Count deltas are
// always >= 0; Revenue is sale_count * unit_price, never negative.
type FieldDeltas struct {
	Views   int64
	Likes   int64
	Sales   int64
	Revenue decimal.Decimal
}

// BucketStore is the counter-store contract: an atomic increment primitive
// against keyed aggregate documents plus two narrow, typed overwrites.
// MergeIncrement requires no prior read and creates the document lazily, so
// concurrent increments to the same key commute.
type BucketStore interface {
	MergeIncrement(ctx context.Context, key BucketKey, deltas FieldDeltas) error

	// Get returns the addressed bucket, or ErrNotFound before the first event
	// of its period.
	Get(ctx context.Context, key BucketKey) (*model.AnalyticsBucket, error)

	// OverwriteTopProducts replaces the lifetime bucket's ranking snapshot.
	// Full overwrite: ranking order is not incrementally maintainable from deltas.
	OverwriteTopProducts(ctx context.Context, sellerID string, top []model.TopProduct) error

	// OverwriteProductCount replaces the lifetime bucket's product count.
	// Reconciliation's corrective path; never used by the event recorder.
	OverwriteProductCount(ctx context.Context, sellerID string, count int) error
}

// EntityStore is the persistent entity contract for sellers and products.
// Counter mutations are expressed as dedicated operations rather than
// read-modify-write so concurrent callers cannot lose updates.
type EntityStore interface {
	GetSeller(ctx context.Context, id string) (*model.Seller, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error)

	// TopProductsBySeller returns up to n products ordered by views descending.
	TopProductsBySeller(ctx context.Context, sellerID string, n int) ([]model.Product, error)

	// CountProductsBySeller counts the seller's products, active and inactive.
	// The authoritative figure reconciliation overwrites caches with.
	CountProductsBySeller(ctx context.Context, sellerID string) (int, error)

	CreateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, sellerID, productID string) error

	// ApplyProductEvent bumps the product row counter matching the event type
	// (views, likes, or sales) by one.
	ApplyProductEvent(ctx context.Context, productID, eventType string) error

	// AdjustProductCount shifts the seller's cached product count by delta,
	// floored at zero.
	AdjustProductCount(ctx context.Context, sellerID string, delta int) error

	// SetProductCount overwrites the seller's cached product count.
	SetProductCount(ctx context.Context, sellerID string, count int) error

	// ResetNotificationWindow zeroes the weekly notification counter and sets
	// the next window boundary.
	ResetNotificationWindow(ctx context.Context, sellerID string, resetAt time.Time) error

	// IncrementNotificationCount consumes one unit of weekly notification quota.
	IncrementNotificationCount(ctx context.Context, sellerID string) error

	// ActivatePremium flips the seller to premium until expiresAt.
	ActivatePremium(ctx context.Context, sellerID string, expiresAt time.Time) error

	// DowngradeExpired flips an expired premium seller back to free.
	DowngradeExpired(ctx context.Context, sellerID string) error
}

// EventLog is the append-only product event log. It doubles as the signal
// source for audience resolution (view and like joins).
type EventLog interface {
	// Append persists one event and populates event.Seq.
	Append(ctx context.Context, event *v1.ProductEvent) error

	// RecentViewerAddresses returns distinct viewer addresses that viewed the
	// seller's products since the given instant.
	RecentViewerAddresses(ctx context.Context, sellerID string, since time.Time) ([]string, error)

	// InterestedAddresses returns distinct viewer addresses that liked any of
	// the seller's products.
	InterestedAddresses(ctx context.Context, sellerID string) ([]string, error)
}

// DeviceStore is the push-delivery address registry.
type DeviceStore interface {
	AllAddresses(ctx context.Context) ([]string, error)
	VerifiedAddresses(ctx context.Context) ([]string, error)
}

// NotificationStore is the append-only delivery-outcome ledger.
type NotificationStore interface {
	AppendRecord(ctx context.Context, rec *model.NotificationRecord) error
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]model.NotificationRecord, error)
}
