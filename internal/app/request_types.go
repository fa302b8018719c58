package app

import (
	"time"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
)

// CreateItemRequest is the input for registering an item.
type CreateItemRequest struct {
	SKU             string          `json:"sku" validate:"omitempty,max=64,printascii"`
	Name            string          `json:"name" validate:"required,max=200"`
	ReorderPoint    int             `json:"reorder_point" validate:"gte=0"`
	MinStockLevel   int             `json:"min_stock_level" validate:"gte=0"`
	ReorderQuantity int             `json:"reorder_quantity" validate:"gte=0"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
}

type CreateLocationRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	ParentID *int   `json:"parent_id" validate:"omitempty,gt=0"`
}

// ReverseRequest identifies the entry to compensate. Notes default to
// "Reversal of entry N".
type ReverseRequest struct {
	EntryID   int    `json:"entry_id" validate:"gt=0"`
	CreatedBy string `json:"created_by"`
	Notes     string `json:"notes"`
}

// ListEntriesRequest filters the ledger. ItemID 0 lists every item; Limit 0
// returns every match.
type ListEntriesRequest struct {
	ItemID      int                    `json:"item_id" validate:"gte=0"`
	Types       []core.TransactionType `json:"types"`
	LocationID  *int                   `json:"location_id" validate:"omitempty,gt=0"`
	WorkOrderID *int                   `json:"work_order_id"`
	Since       time.Time              `json:"since"`
	Until       time.Time              `json:"until"`
	Limit       int                    `json:"limit" validate:"gte=0"`
}
