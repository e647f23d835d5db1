package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newEntityMock(t *testing.T) (*EntityAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEntityAdapter(db), mock
}

var sellerColumns = []string{
	"id", "name", "tier", "product_count", "weekly_notification_count",
	"notification_window_reset_at", "subscription_expires_at", "created_at",
}

func TestGetSellerFree(t *testing.T) {
	adapter, mock := newEntityMock(t)

	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sellerColumns).
		AddRow("s-1", "Ama", "free", 1, 2, nil, nil, createdAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sellers")).
		WithArgs("s-1").
		WillReturnRows(rows)

	seller, err := adapter.GetSeller(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, model.TierFree, seller.Tier)
	require.Equal(t, 1, seller.ProductCount)
	require.Equal(t, 2, seller.WeeklyNotificationCount)
	require.True(t, seller.NotificationWindowResetAt.IsZero(), "NULL reset_at reads as zero time")
	require.Nil(t, seller.SubscriptionExpiresAt)
}

func TestGetSellerPremium(t *testing.T) {
	adapter, mock := newEntityMock(t)

	expiresAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	resetAt := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sellerColumns).
		AddRow("s-1", "Ama", "premium", 10, 0, resetAt, expiresAt, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM sellers")).
		WithArgs("s-1").
		WillReturnRows(rows)

	seller, err := adapter.GetSeller(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, model.TierPremium, seller.Tier)
	require.NotNil(t, seller.SubscriptionExpiresAt)
	require.Equal(t, expiresAt, *seller.SubscriptionExpiresAt)
	require.Equal(t, resetAt, seller.NotificationWindowResetAt)
}

func TestGetSellerNotFound(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sellers")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := adapter.GetSeller(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateProductDefaults(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
		WithArgs("p-1", "s-1", "Mug", decimal.RequireFromString("12.50"),
			model.ProductActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &model.Product{
		ID: "p-1", SellerID: "s-1", Name: "Mug",
		Price: decimal.RequireFromString("12.50"),
	}
	require.NoError(t, adapter.CreateProduct(context.Background(), p))
	require.Equal(t, model.ProductActive, p.Status)
	require.False(t, p.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductNotFound(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products")).
		WithArgs("ghost", "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.DeleteProduct(context.Background(), "s-1", "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyProductEvent(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET")).
		WithArgs("p-1", "view").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.ApplyProductEvent(context.Background(), "p-1", "view"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyProductEventUnknownType(t *testing.T) {
	adapter, mock := newEntityMock(t)

	// Rejected before any statement runs.
	err := adapter.ApplyProductEvent(context.Background(), "p-1", "wish")
	require.ErrorContains(t, err, "unknown event type")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyProductEventMissingProduct(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET")).
		WithArgs("ghost", "sale").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.ApplyProductEvent(context.Background(), "ghost", "sale")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdjustProductCount(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectExec(regexp.QuoteMeta("GREATEST(product_count + $2, 0)")).
		WithArgs("s-1", -1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.AdjustProductCount(context.Background(), "s-1", -1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetNotificationWindow(t *testing.T) {
	adapter, mock := newEntityMock(t)

	resetAt := time.Date(2026, 3, 22, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("SET weekly_notification_count = 0")).
		WithArgs("s-1", resetAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.ResetNotificationWindow(context.Background(), "s-1", resetAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDowngradeExpiredIsGuarded(t *testing.T) {
	adapter, mock := newEntityMock(t)

	// Zero rows means a concurrent upgrade won; that is not an error.
	mock.ExpectExec(regexp.QuoteMeta("subscription_expires_at <= NOW()")).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.DowngradeExpired(context.Background(), "s-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopProductsBySeller(t *testing.T) {
	adapter, mock := newEntityMock(t)

	rows := sqlmock.NewRows([]string{
		"id", "seller_id", "name", "price", "status", "views", "likes", "sales", "created_at",
	}).
		AddRow("p-2", "s-1", "Bowl", "4.00", "active", int64(9), int64(0), int64(1), time.Now()).
		AddRow("p-1", "s-1", "Mug", "10.00", "active", int64(5), int64(2), int64(2), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY views DESC, id ASC")).
		WithArgs("s-1", 2).
		WillReturnRows(rows)

	products, err := adapter.TopProductsBySeller(context.Background(), "s-1", 2)
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, "p-2", products[0].ID)
	require.True(t, products[1].Price.Equal(decimal.RequireFromString("10.00")))
}

func TestCountProductsBySeller(t *testing.T) {
	adapter, mock := newEntityMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := adapter.CountProductsBySeller(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, 7, count)
}
