package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newBucketMock(t *testing.T) (*BucketAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBucketAdapter(db), mock
}

func TestMergeIncrementUpsert(t *testing.T) {
	adapter, mock := newBucketMock(t)

	key := storage.BucketKey{SellerID: "s-1", Granularity: "day", PeriodID: "2026-03-15"}
	deltas := storage.FieldDeltas{Sales: 1, Revenue: decimal.RequireFromString("9.99")}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analytics_buckets")).
		WithArgs("s-1", "day", "2026-03-15", int64(0), int64(0), int64(1),
			deltas.Revenue, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.MergeIncrement(context.Background(), key, deltas)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBucket(t *testing.T) {
	adapter, mock := newBucketMock(t)

	topJSON, err := json.Marshal([]model.TopProduct{
		{ProductID: "p-1", Name: "Mug", Views: 5, Sales: 2, Revenue: decimal.RequireFromString("19.98")},
	})
	require.NoError(t, err)

	updatedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"seller_id", "granularity", "period_id", "views", "likes", "sales",
		"revenue", "products", "top_products", "updated_at",
	}).AddRow("s-1", "total", "lifetime", int64(10), int64(3), int64(2),
		"42.50", 4, topJSON, updatedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analytics_buckets")).
		WithArgs("s-1", "total", "lifetime").
		WillReturnRows(rows)

	bucket, err := adapter.Get(context.Background(), storage.BucketKey{
		SellerID: "s-1", Granularity: "total", PeriodID: "lifetime",
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, bucket.Views)
	require.True(t, bucket.Revenue.Equal(decimal.RequireFromString("42.50")))
	require.Equal(t, 4, bucket.Products)
	require.Len(t, bucket.TopProducts, 1)
	require.Equal(t, "p-1", bucket.TopProducts[0].ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBucketNotFound(t *testing.T) {
	adapter, mock := newBucketMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analytics_buckets")).
		WithArgs("s-1", "day", "2026-03-15").
		WillReturnError(sql.ErrNoRows)

	_, err := adapter.Get(context.Background(), storage.BucketKey{
		SellerID: "s-1", Granularity: "day", PeriodID: "2026-03-15",
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOverwriteTopProducts(t *testing.T) {
	adapter, mock := newBucketMock(t)

	top := []model.TopProduct{
		{ProductID: "p-1", Name: "Mug", Views: 5, Sales: 1, Revenue: decimal.RequireFromString("9.99")},
	}
	topJSON, err := json.Marshal(top)
	require.NoError(t, err)

	// The snapshot targets the lifetime bucket and touches only its column.
	mock.ExpectExec(regexp.QuoteMeta("top_products = EXCLUDED.top_products")).
		WithArgs("s-1", "total", "lifetime", topJSON, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.OverwriteTopProducts(context.Background(), "s-1", top))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverwriteProductCount(t *testing.T) {
	adapter, mock := newBucketMock(t)

	mock.ExpectExec(regexp.QuoteMeta("products   = EXCLUDED.products")).
		WithArgs("s-1", "total", "lifetime", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.OverwriteProductCount(context.Background(), "s-1", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}
