package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

const (
	queryGetSeller = `
		SELECT id, name, tier, product_count, weekly_notification_count,
		       notification_window_reset_at, subscription_expires_at, created_at
		FROM sellers
		WHERE id = $1
	`

	queryGetProduct = `
		SELECT id, seller_id, name, price, status, views, likes, sales, created_at
		FROM products
		WHERE id = $1
	`

	queryListProductsBySeller = `
		SELECT id, seller_id, name, price, status, views, likes, sales, created_at
		FROM products
		WHERE seller_id = $1
		ORDER BY created_at ASC
	`

	queryTopProductsBySeller = `
		SELECT id, seller_id, name, price, status, views, likes, sales, created_at
		FROM products
		WHERE seller_id = $1
		ORDER BY views DESC, id ASC
		LIMIT $2
	`

	queryCountProductsBySeller = `SELECT COUNT(*) FROM products WHERE seller_id = $1`

	queryInsertProduct = `
		INSERT INTO products (id, seller_id, name, price, status, views, likes, sales, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)
	`

	queryDeleteProduct = `DELETE FROM products WHERE id = $1 AND seller_id = $2`

	queryApplyProductEvent = `
		UPDATE products SET
			views = views + CASE WHEN $2 = 'view' THEN 1 ELSE 0 END,
			likes = likes + CASE WHEN $2 = 'like' THEN 1 ELSE 0 END,
			sales = sales + CASE WHEN $2 = 'sale' THEN 1 ELSE 0 END
		WHERE id = $1
	`

	queryAdjustProductCount = `
		UPDATE sellers
		SET product_count = GREATEST(product_count + $2, 0)
		WHERE id = $1
	`

	querySetProductCount = `UPDATE sellers SET product_count = $2 WHERE id = $1`

	queryResetNotificationWindow = `
		UPDATE sellers
		SET weekly_notification_count = 0, notification_window_reset_at = $2
		WHERE id = $1
	`

	queryIncrementNotificationCount = `
		UPDATE sellers
		SET weekly_notification_count = weekly_notification_count + 1
		WHERE id = $1
	`

	queryActivatePremium = `
		UPDATE sellers
		SET tier = 'premium', subscription_expires_at = $2
		WHERE id = $1
	`

	queryDowngradeExpired = `
		UPDATE sellers
		SET tier = 'free', subscription_expires_at = NULL
		WHERE id = $1
		  AND tier = 'premium'
		  AND subscription_expires_at IS NOT NULL
		  AND subscription_expires_at <= NOW()
	`
)

// EntityAdapter implements storage.EntityStore against PostgreSQL.
// Counter mutations are single UPDATE statements so concurrent callers
// never lose updates to a read-modify-write race.
type EntityAdapter struct {
	db *sql.DB
}

// NewEntityAdapter creates a new EntityAdapter sharing the given connection.
func NewEntityAdapter(db *sql.DB) *EntityAdapter {
	return &EntityAdapter{db: db}
}

var _ storage.EntityStore = (*EntityAdapter)(nil)

// GetSeller fetches one seller. Returns storage.ErrNotFound if absent.
func (a *EntityAdapter) GetSeller(ctx context.Context, id string) (*model.Seller, error) {
	var s model.Seller
	var resetAt sql.NullTime
	var expiresAt sql.NullTime

	err := a.db.QueryRowContext(ctx, queryGetSeller, id).Scan(
		&s.ID,
		&s.Name,
		&s.Tier,
		&s.ProductCount,
		&s.WeeklyNotificationCount,
		&resetAt,
		&expiresAt,
		&s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seller %s: %w", id, err)
	}

	if resetAt.Valid {
		s.NotificationWindowResetAt = resetAt.Time
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		s.SubscriptionExpiresAt = &t
	}
	return &s, nil
}

// GetProduct fetches one product. Returns storage.ErrNotFound if absent.
func (a *EntityAdapter) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := scanProductRow(a.db.QueryRowContext(ctx, queryGetProduct, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// ListProductsBySeller returns all of the seller's products, oldest first.
func (a *EntityAdapter) ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	return a.queryProducts(ctx, queryListProductsBySeller, sellerID)
}

// TopProductsBySeller returns up to n products ordered by views descending.
// Ties break on id so repeated snapshots are stable.
func (a *EntityAdapter) TopProductsBySeller(ctx context.Context, sellerID string, n int) ([]model.Product, error) {
	return a.queryProducts(ctx, queryTopProductsBySeller, sellerID, n)
}

func (a *EntityAdapter) queryProducts(ctx context.Context, query string, args ...interface{}) ([]model.Product, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// CountProductsBySeller counts the seller's products, active and inactive.
func (a *EntityAdapter) CountProductsBySeller(ctx context.Context, sellerID string) (int, error) {
	var count int
	if err := a.db.QueryRowContext(ctx, queryCountProductsBySeller, sellerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count products for seller %s: %w", sellerID, err)
	}
	return count, nil
}

// CreateProduct persists a new product with zeroed counters.
func (a *EntityAdapter) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = model.ProductActive
	}
	_, err := a.db.ExecContext(ctx, queryInsertProduct,
		p.ID, p.SellerID, p.Name, p.Price, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}

	slog.Debug("[Postgres] Created product", "product_id", p.ID, "seller_id", p.SellerID)
	return nil
}

// DeleteProduct removes a product owned by the seller.
// Returns storage.ErrNotFound when no row matched.
func (a *EntityAdapter) DeleteProduct(ctx context.Context, sellerID, productID string) error {
	result, err := a.db.ExecContext(ctx, queryDeleteProduct, productID, sellerID)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", productID, err)
	}
	return requireRowAffected(result, "delete product")
}

// ApplyProductEvent bumps the product counter matching the event type by one.
func (a *EntityAdapter) ApplyProductEvent(ctx context.Context, productID, eventType string) error {
	switch eventType {
	case v1.EventView, v1.EventLike, v1.EventSale:
	default:
		return fmt.Errorf("apply product event: unknown event type %q", eventType)
	}

	result, err := a.db.ExecContext(ctx, queryApplyProductEvent, productID, eventType)
	if err != nil {
		return fmt.Errorf("apply %s event to product %s: %w", eventType, productID, err)
	}
	return requireRowAffected(result, "apply product event")
}

// AdjustProductCount shifts the cached product count by delta, floored at zero.
func (a *EntityAdapter) AdjustProductCount(ctx context.Context, sellerID string, delta int) error {
	result, err := a.db.ExecContext(ctx, queryAdjustProductCount, sellerID, delta)
	if err != nil {
		return fmt.Errorf("adjust product count for seller %s: %w", sellerID, err)
	}
	return requireRowAffected(result, "adjust product count")
}

// SetProductCount overwrites the cached product count. Reconciliation only.
func (a *EntityAdapter) SetProductCount(ctx context.Context, sellerID string, count int) error {
	result, err := a.db.ExecContext(ctx, querySetProductCount, sellerID, count)
	if err != nil {
		return fmt.Errorf("set product count for seller %s: %w", sellerID, err)
	}
	return requireRowAffected(result, "set product count")
}

// ResetNotificationWindow zeroes the weekly counter and sets the next boundary.
func (a *EntityAdapter) ResetNotificationWindow(ctx context.Context, sellerID string, resetAt time.Time) error {
	result, err := a.db.ExecContext(ctx, queryResetNotificationWindow, sellerID, resetAt)
	if err != nil {
		return fmt.Errorf("reset notification window for seller %s: %w", sellerID, err)
	}
	return requireRowAffected(result, "reset notification window")
}

// IncrementNotificationCount consumes one unit of weekly notification quota.
func (a *EntityAdapter) IncrementNotificationCount(ctx context.Context, sellerID string) error {
	result, err := a.db.ExecContext(ctx, queryIncrementNotificationCount, sellerID)
	if err != nil {
		return fmt.Errorf("increment notification count for seller %s: %w", sellerID, err)
	}
	return requireRowAffected(result, "increment notification count")
}

// ActivatePremium flips the seller to premium until expiresAt.
// Invoked by the external payment callback handler.
func (a *EntityAdapter) ActivatePremium(ctx context.Context, sellerID string, expiresAt time.Time) error {
	result, err := a.db.ExecContext(ctx, queryActivatePremium, sellerID, expiresAt)
	if err != nil {
		return fmt.Errorf("activate premium for seller %s: %w", sellerID, err)
	}
	return requireRowAffected(result, "activate premium")
}

// DowngradeExpired flips an expired premium seller back to free. The WHERE
// guard makes it a no-op when a concurrent upgrade landed first, so a stale
// expiry decision cannot clobber a fresh subscription.
func (a *EntityAdapter) DowngradeExpired(ctx context.Context, sellerID string) error {
	if _, err := a.db.ExecContext(ctx, queryDowngradeExpired, sellerID); err != nil {
		return fmt.Errorf("downgrade expired seller %s: %w", sellerID, err)
	}
	return nil
}
