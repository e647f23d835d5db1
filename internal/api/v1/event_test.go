package v1

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProductEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   ProductEvent
		wantErr string
	}{
		{
			name:  "valid view",
			event: ProductEvent{SellerID: "s-1", ProductID: "p-1", Type: EventView},
		},
		{
			name: "valid sale with revenue",
			event: ProductEvent{
				SellerID:    "s-1",
				ProductID:   "p-1",
				Type:        EventSale,
				SaleRevenue: decimal.RequireFromString("19.99"),
			},
		},
		{
			name:    "missing seller id",
			event:   ProductEvent{ProductID: "p-1", Type: EventView},
			wantErr: "seller_id is required",
		},
		{
			name:    "missing product id",
			event:   ProductEvent{SellerID: "s-1", Type: EventLike},
			wantErr: "product_id is required",
		},
		{
			name:    "unknown event type",
			event:   ProductEvent{SellerID: "s-1", ProductID: "p-1", Type: "purchase"},
			wantErr: "unknown event type",
		},
		{
			name: "negative revenue",
			event: ProductEvent{
				SellerID:    "s-1",
				ProductID:   "p-1",
				Type:        EventSale,
				SaleRevenue: decimal.RequireFromString("-1"),
			},
			wantErr: "must not be negative",
		},
		{
			name: "revenue on non-sale event",
			event: ProductEvent{
				SellerID:    "s-1",
				ProductID:   "p-1",
				Type:        EventLike,
				SaleRevenue: decimal.RequireFromString("5"),
			},
			wantErr: "only valid for sale events",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
