package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/makola-lab/project-makola/internal/api/v1"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

const (
	queryAppendEvent = `
		INSERT INTO product_events (
			seller_id, product_id, event_type, sale_revenue, viewer_address,
			occurred_at, recorded_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING seq
	`

	queryRecentViewerAddresses = `
		SELECT DISTINCT viewer_address
		FROM product_events
		WHERE seller_id = $1
		  AND event_type = 'view'
		  AND occurred_at >= $2
		  AND viewer_address IS NOT NULL
	`

	queryInterestedAddresses = `
		SELECT DISTINCT viewer_address
		FROM product_events
		WHERE seller_id = $1
		  AND event_type = 'like'
		  AND viewer_address IS NOT NULL
	`
)

// EventLogAdapter implements storage.EventLog for PostgreSQL.
// The append statement is prepared once; event recording is the hot path.
type EventLogAdapter struct {
	db         *sql.DB
	stmtAppend *sql.Stmt
}

// NewEventLogAdapter creates a new EventLogAdapter sharing the given connection.
// Returns an error when the schema is missing (migrations not run).
func NewEventLogAdapter(db *sql.DB) (*EventLogAdapter, error) {
	if err := validateSchema(db); err != nil {
		return nil, fmt.Errorf("schema validation failed - did you run migrations?: %w", err)
	}

	stmt, err := db.Prepare(queryAppendEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare appendEvent statement: %w", err)
	}
	return &EventLogAdapter{db: db, stmtAppend: stmt}, nil
}

var _ storage.EventLog = (*EventLogAdapter)(nil)

// Append persists one product event and populates event.Seq from the database.
func (a *EventLogAdapter) Append(ctx context.Context, event *v1.ProductEvent) error {
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	var seq int64
	err := a.stmtAppend.QueryRowContext(ctx,
		event.SellerID,
		event.ProductID,
		event.Type,
		event.SaleRevenue,
		event.ViewerAddress,
		event.OccurredAt,
		event.RecordedAt,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append product event: %w", err)
	}

	event.Seq = seq

	slog.Debug("[EventLog] Appended event",
		"seller_id", event.SellerID,
		"product_id", event.ProductID,
		"event_type", event.Type,
		"seq", seq)
	return nil
}

// RecentViewerAddresses returns distinct viewer addresses that viewed the
// seller's products since the given instant.
func (a *EventLogAdapter) RecentViewerAddresses(ctx context.Context, sellerID string, since time.Time) ([]string, error) {
	return a.queryAddresses(ctx, queryRecentViewerAddresses, sellerID, since)
}

// InterestedAddresses returns distinct viewer addresses that liked any of the
// seller's products.
func (a *EventLogAdapter) InterestedAddresses(ctx context.Context, sellerID string) ([]string, error) {
	return a.queryAddresses(ctx, queryInterestedAddresses, sellerID)
}

func (a *EventLogAdapter) queryAddresses(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event log addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

// validateSchema checks if the product_events table exists.
func validateSchema(db *sql.DB) error {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'product_events'
		)
	`
	if err := db.QueryRow(query).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("product_events table does not exist")
	}
	return nil
}

// Close closes the prepared statement.
func (a *EventLogAdapter) Close() error {
	if err := a.stmtAppend.Close(); err != nil {
		return fmt.Errorf("failed to close appendEvent statement: %w", err)
	}
	return nil
}
