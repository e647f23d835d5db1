package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/makola-lab/project-makola/internal/core/timebucket"
	"github.com/shopspring/decimal"
)

const (
	queryMergeIncrementBucket = `
		INSERT INTO analytics_buckets (
			seller_id, granularity, period_id, views, likes, sales, revenue, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (seller_id, granularity, period_id)
		DO UPDATE SET
			views      = analytics_buckets.views + EXCLUDED.views,
			likes      = analytics_buckets.likes + EXCLUDED.likes,
			sales      = analytics_buckets.sales + EXCLUDED.sales,
			revenue    = analytics_buckets.revenue + EXCLUDED.revenue,
			updated_at = EXCLUDED.updated_at
	`

	queryGetBucket = `
		SELECT seller_id, granularity, period_id, views, likes, sales, revenue,
		       products, top_products, updated_at
		FROM analytics_buckets
		WHERE seller_id = $1 AND granularity = $2 AND period_id = $3
	`

	queryOverwriteTopProducts = `
		INSERT INTO analytics_buckets (
			seller_id, granularity, period_id, top_products, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seller_id, granularity, period_id)
		DO UPDATE SET
			top_products = EXCLUDED.top_products,
			updated_at   = EXCLUDED.updated_at
	`

	queryOverwriteProductCount = `
		INSERT INTO analytics_buckets (
			seller_id, granularity, period_id, products, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seller_id, granularity, period_id)
		DO UPDATE SET
			products   = EXCLUDED.products,
			updated_at = EXCLUDED.updated_at
	`
)

// BucketAdapter implements storage.BucketStore using PostgreSQL.
// The merge primitive is a single upsert with additive DO UPDATE arithmetic:
// no prior read, lazy creation, and concurrent increments to the same key
// commute at the store level.
type BucketAdapter struct {
	db *sql.DB
}

// NewBucketAdapter creates a new BucketAdapter sharing the given connection.
func NewBucketAdapter(db *sql.DB) *BucketAdapter {
	return &BucketAdapter{db: db}
}

var _ storage.BucketStore = (*BucketAdapter)(nil)

// MergeIncrement applies the field deltas atomically against the addressed
// bucket, creating it on first touch.
func (a *BucketAdapter) MergeIncrement(ctx context.Context, key storage.BucketKey, deltas storage.FieldDeltas) error {
	_, err := a.db.ExecContext(ctx, queryMergeIncrementBucket,
		key.SellerID,
		key.Granularity,
		key.PeriodID,
		deltas.Views,
		deltas.Likes,
		deltas.Sales,
		deltas.Revenue,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("merge increment bucket %v: %w", key, err)
	}
	return nil
}

// Get fetches one bucket. Returns storage.ErrNotFound before the first event
// of its period.
func (a *BucketAdapter) Get(ctx context.Context, key storage.BucketKey) (*model.AnalyticsBucket, error) {
	var b model.AnalyticsBucket
	var revenueStr string
	var topProductsJSON []byte

	err := a.db.QueryRowContext(ctx, queryGetBucket,
		key.SellerID, key.Granularity, key.PeriodID,
	).Scan(
		&b.SellerID,
		&b.Granularity,
		&b.PeriodID,
		&b.Views,
		&b.Likes,
		&b.Sales,
		&revenueStr,
		&b.Products,
		&topProductsJSON,
		&b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket %v: %w", key, err)
	}

	revenue, err := decimal.NewFromString(revenueStr)
	if err != nil {
		return nil, fmt.Errorf("get bucket %v: parse revenue %q: %w", key, revenueStr, err)
	}
	b.Revenue = revenue

	if len(topProductsJSON) > 0 {
		if err := json.Unmarshal(topProductsJSON, &b.TopProducts); err != nil {
			return nil, fmt.Errorf("get bucket %v: unmarshal top products: %w", key, err)
		}
	}

	return &b, nil
}

// OverwriteTopProducts replaces the lifetime bucket's top-N snapshot wholesale.
// Last write wins between concurrent refreshes; the ranking is advisory.
func (a *BucketAdapter) OverwriteTopProducts(ctx context.Context, sellerID string, top []model.TopProduct) error {
	topJSON, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("overwrite top products for seller %s: marshal: %w", sellerID, err)
	}

	_, err = a.db.ExecContext(ctx, queryOverwriteTopProducts,
		sellerID,
		timebucket.GranularityTotal,
		timebucket.PeriodTotal,
		topJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("overwrite top products for seller %s: %w", sellerID, err)
	}
	return nil
}

// OverwriteProductCount replaces the lifetime bucket's product count.
// Reconciliation's corrective write; not reachable from the metering path.
func (a *BucketAdapter) OverwriteProductCount(ctx context.Context, sellerID string, count int) error {
	_, err := a.db.ExecContext(ctx, queryOverwriteProductCount,
		sellerID,
		timebucket.GranularityTotal,
		timebucket.PeriodTotal,
		count,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("overwrite product count for seller %s: %w", sellerID, err)
	}
	return nil
}
