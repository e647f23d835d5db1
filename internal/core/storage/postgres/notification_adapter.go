package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

const (
	queryAppendNotificationRecord = `
		INSERT INTO notification_records (
			id, seller_id, title, message, target_audience,
			delivered, failed, fell_back, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	queryListNotificationRecords = `
		SELECT id, seller_id, title, message, target_audience,
		       delivered, failed, fell_back, sent_at
		FROM notification_records
		WHERE seller_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`

	queryAllDeviceAddresses      = `SELECT address FROM devices`
	queryVerifiedDeviceAddresses = `SELECT address FROM devices WHERE verified`
)

// NotificationAdapter implements storage.NotificationStore and
// storage.DeviceStore for PostgreSQL.
type NotificationAdapter struct {
	db *sql.DB
}

// NewNotificationAdapter creates a new NotificationAdapter sharing the given connection.
func NewNotificationAdapter(db *sql.DB) *NotificationAdapter {
	return &NotificationAdapter{db: db}
}

var (
	_ storage.NotificationStore = (*NotificationAdapter)(nil)
	_ storage.DeviceStore       = (*NotificationAdapter)(nil)
)

// AppendRecord persists one ledger entry. The ledger is append-only: one row
// per send attempt, partial failure included.
func (a *NotificationAdapter) AppendRecord(ctx context.Context, rec *model.NotificationRecord) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, queryAppendNotificationRecord,
		rec.ID,
		rec.SellerID,
		rec.Title,
		rec.Message,
		rec.TargetAudience,
		rec.Delivered,
		rec.Failed,
		rec.FellBack,
		rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("append notification record %s: %w", rec.ID, err)
	}
	return nil
}

// ListBySeller returns the seller's most recent ledger entries.
func (a *NotificationAdapter) ListBySeller(ctx context.Context, sellerID string, limit int) ([]model.NotificationRecord, error) {
	rows, err := a.db.QueryContext(ctx, queryListNotificationRecords, sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notification records: %w", err)
	}
	defer rows.Close()

	var records []model.NotificationRecord
	for rows.Next() {
		var rec model.NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SellerID,
			&rec.Title,
			&rec.Message,
			&rec.TargetAudience,
			&rec.Delivered,
			&rec.Failed,
			&rec.FellBack,
			&rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification records: %w", err)
	}
	return records, nil
}

// AllAddresses returns every registered delivery address.
func (a *NotificationAdapter) AllAddresses(ctx context.Context) ([]string, error) {
	return a.queryAddresses(ctx, queryAllDeviceAddresses)
}

// VerifiedAddresses returns delivery addresses with a verified device.
func (a *NotificationAdapter) VerifiedAddresses(ctx context.Context) ([]string, error) {
	return a.queryAddresses(ctx, queryVerifiedDeviceAddresses)
}

func (a *NotificationAdapter) queryAddresses(ctx context.Context, query string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query device addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan device address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device addresses: %w", err)
	}
	return addresses, nil
}
