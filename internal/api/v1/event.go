package v1

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types the metering pipeline accepts.
const (
	EventView = "view"
	EventLike = "like"
	EventSale = "sale"
)

// ProductEvent is a single engagement event against a seller's product.
// SaleRevenue is meaningful only for sale events. ViewerAddress is the
// optional push address of the buyer-side actor; it feeds audience
// resolution for seller notifications.
type ProductEvent struct {
	SellerID      string          `json:"seller_id" binding:"required"`
	ProductID     string          `json:"product_id" binding:"required"`
	Type          string          `json:"event_type" binding:"required"`
	SaleRevenue   decimal.Decimal `json:"sale_revenue"`
	ViewerAddress string          `json:"viewer_address"`
	OccurredAt    time.Time       `json:"occurred_at"`
	RecordedAt    time.Time       `json:"-"`

	// Seq is assigned by the event log on append.
	Seq int64 `json:"-"`
}

// Validate checks structural correctness before the event enters the queue.
func (e *ProductEvent) Validate() error {
	if e.SellerID == "" {
		return fmt.Errorf("seller_id is required")
	}
	if e.ProductID == "" {
		return fmt.Errorf("product_id is required")
	}
	switch e.Type {
	case EventView, EventLike, EventSale:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.SaleRevenue.IsNegative() {
		return fmt.Errorf("sale_revenue must not be negative")
	}
	if e.Type != EventSale && !e.SaleRevenue.IsZero() {
		return fmt.Errorf("sale_revenue is only valid for sale events")
	}
	return nil
}
