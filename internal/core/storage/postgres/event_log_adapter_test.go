package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newEventLogMock(t *testing.T) (*EventLogAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("information_schema.tables")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO product_events"))
	adapter, err := NewEventLogAdapter(db)
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter, mock
}

func TestAppendAssignsSeq(t *testing.T) {
	adapter, mock := newEventLogMock(t)

	occurredAt := time.Date(2026, 3, 15, 9, 59, 0, 0, time.UTC)
	recordedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO product_events")).
		WithArgs("s-1", "p-1", "sale", decimal.RequireFromString("9.99"),
			"viewer-7", occurredAt, recordedAt).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	event := &v1.ProductEvent{
		SellerID:      "s-1",
		ProductID:     "p-1",
		Type:          v1.EventSale,
		SaleRevenue:   decimal.RequireFromString("9.99"),
		ViewerAddress: "viewer-7",
		OccurredAt:    occurredAt,
		RecordedAt:    recordedAt,
	}
	require.NoError(t, adapter.Append(context.Background(), event))
	require.EqualValues(t, 42, event.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendStampsRecordedAt(t *testing.T) {
	adapter, mock := newEventLogMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO product_events")).
		WithArgs("s-1", "p-1", "view", sqlmock.AnyArg(), "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))

	event := &v1.ProductEvent{SellerID: "s-1", ProductID: "p-1", Type: v1.EventView}
	require.NoError(t, adapter.Append(context.Background(), event))
	require.False(t, event.RecordedAt.IsZero())
}

func TestRecentViewerAddresses(t *testing.T) {
	adapter, mock := newEventLogMock(t)

	since := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("event_type = 'view'")).
		WithArgs("s-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"viewer_address"}).
			AddRow("viewer-1").
			AddRow("viewer-2"))

	addresses, err := adapter.RecentViewerAddresses(context.Background(), "s-1", since)
	require.NoError(t, err)
	require.Equal(t, []string{"viewer-1", "viewer-2"}, addresses)
}

func TestInterestedAddresses(t *testing.T) {
	adapter, mock := newEventLogMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("event_type = 'like'")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"viewer_address"}).AddRow("viewer-3"))

	addresses, err := adapter.InterestedAddresses(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, []string{"viewer-3"}, addresses)
}
