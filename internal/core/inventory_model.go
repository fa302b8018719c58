package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of inventory-affecting events.
type TransactionType string

const (
	Purchase   TransactionType = "purchase"
	Sale       TransactionType = "sale"
	Transfer   TransactionType = "transfer"
	Adjustment TransactionType = "adjustment"
	Return     TransactionType = "return"
	WriteOff   TransactionType = "write_off"
	Count      TransactionType = "count"
)

// AllTransactionTypes lists every kind in declaration order.
var AllTransactionTypes = []TransactionType{Purchase, Sale, Transfer, Adjustment, Return, WriteOff, Count}

// NegativeStockPolicy decides what happens when a decrease would take a balance below zero.
type NegativeStockPolicy string

const (
	// NegativeStockClamp floors the balance at zero and accepts the entry.
	NegativeStockClamp NegativeStockPolicy = "clamp"
	// NegativeStockReject refuses the entry with a ConsistencyError.
	NegativeStockReject NegativeStockPolicy = "reject"
)

// Item is the slice of catalog master data the ledger reads.
type Item struct {
	ID              int             `json:"id"`
	SKU             string          `json:"sku,omitempty"`
	Name            string          `json:"name"`
	ReorderPoint    int             `json:"reorder_point"`
	MinStockLevel   int             `json:"min_stock_level"`
	ReorderQuantity int             `json:"reorder_quantity"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
}

// Location is a storage location from the external registry.
type Location struct {
	ID       int    `json:"id"`
	ParentID *int   `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

// BalanceKey addresses one balance row. An empty Bin is the location's default bin.
type BalanceKey struct {
	ItemID     int    `json:"item_id"`
	LocationID int    `json:"location_id"`
	Bin        string `json:"bin,omitempty"`
}

// LockKey is the unit of serialization: all bins of one item at one location.
type LockKey struct {
	ItemID     int
	LocationID int
}

// Lock returns the serialization key covering k.
func (k BalanceKey) Lock() LockKey {
	return LockKey{ItemID: k.ItemID, LocationID: k.LocationID}
}

// Balance is one materialized row of the projection.
type Balance struct {
	BalanceKey
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is one immutable journal record.
type LedgerEntry struct {
	ID              int             `json:"id"`
	ItemID          int             `json:"item_id"`
	Type            TransactionType `json:"type"`
	Quantity        int             `json:"quantity"`
	FromLocationID  *int            `json:"from_location_id,omitempty"`
	FromBin         string          `json:"from_bin,omitempty"`
	ToLocationID    *int            `json:"to_location_id,omitempty"`
	ToBin           string          `json:"to_bin,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	CreatedBy       string          `json:"created_by,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	WorkOrderID     *int            `json:"work_order_id,omitempty"`
	ReversesEntryID *int            `json:"reverses_entry_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FromKey returns the source balance key, if the entry has one.
func (e LedgerEntry) FromKey() (BalanceKey, bool) {
	if e.FromLocationID == nil {
		return BalanceKey{}, false
	}
	return BalanceKey{ItemID: e.ItemID, LocationID: *e.FromLocationID, Bin: e.FromBin}, true
}

// ToKey returns the destination balance key, if the entry has one.
func (e LedgerEntry) ToKey() (BalanceKey, bool) {
	if e.ToLocationID == nil {
		return BalanceKey{}, false
	}
	return BalanceKey{ItemID: e.ItemID, LocationID: *e.ToLocationID, Bin: e.ToBin}, true
}

// Draft is a caller's request to record a transaction.
// TotalPrice is accepted for wire compatibility and always overwritten.
type Draft struct {
	ItemID         int             `json:"item_id" jsonschema_description:"Catalog id of the stocked item"`
	Type           TransactionType `json:"type" jsonschema:"enum=purchase,enum=sale,enum=transfer,enum=adjustment,enum=return,enum=write_off,enum=count" jsonschema_description:"Kind of inventory event"`
	Quantity       int             `json:"quantity" jsonschema_description:"Units moved. Positive for every kind except adjustment, which is negative for a decrease. For count, the absolute quantity observed."`
	FromLocationID *int            `json:"from_location_id,omitempty" jsonschema_description:"Location stock leaves. Required for sale, transfer, write_off and negative adjustment."`
	FromBin        string          `json:"from_bin,omitempty" jsonschema_description:"Optional bin or shelf within the source location"`
	ToLocationID   *int            `json:"to_location_id,omitempty" jsonschema_description:"Location stock arrives at. Required for purchase, transfer, return, count and positive adjustment."`
	ToBin          string          `json:"to_bin,omitempty" jsonschema_description:"Optional bin or shelf within the destination location"`
	UnitPrice      decimal.Decimal `json:"unit_price" jsonschema_description:"Price per unit as a decimal string, e.g. \"12.50\". Use \"0\" when unknown."`
	TotalPrice     decimal.Decimal `json:"total_price,omitempty" jsonschema:"-"`
	Reference      string          `json:"reference,omitempty" jsonschema_description:"External reference such as a delivery note or invoice number (max 100 characters)"`
	Notes          string          `json:"notes,omitempty" jsonschema_description:"Free-text notes"`
	CreatedBy      string          `json:"created_by,omitempty" jsonschema:"-"`
	WorkOrderID    *int            `json:"work_order_id,omitempty" jsonschema_description:"Work order this movement is charged to, if any"`
}

// LedgerFilter narrows a ledger listing. Zero values mean no constraint.
type LedgerFilter struct {
	Types       []TransactionType
	LocationID  *int // matches either side of the entry
	WorkOrderID *int
	Since       time.Time
	Until       time.Time
	Limit       int
}

// ReorderAlert is published when an item's stock falls to or below its reorder point.
type ReorderAlert struct {
	ItemID          int       `json:"item_id"`
	SKU             string    `json:"sku,omitempty"`
	StockOnHand     int       `json:"stock_on_hand"`
	ReorderPoint    int       `json:"reorder_point"`
	ReorderQuantity int       `json:"reorder_quantity"`
	EntryID         int       `json:"entry_id"`
	RaisedAt        time.Time `json:"raised_at"`
}

// StockSummary is a read view of one item's position across all locations.
type StockSummary struct {
	Item            Item
	Balances        []Balance
	StockOnHand     int
	InStock         bool
	NeedsReordering bool
	BelowMinimum    bool
	CurrentValue    decimal.Decimal // StockOnHand * Item.PurchasePrice
}

// Drift is a key where the materialized projection disagrees with a ledger replay.
type Drift struct {
	Key       BalanceKey `json:"key"`
	Projected int        `json:"projected"`
	Replayed  int        `json:"replayed"`
	Missing   bool       `json:"missing,omitempty"` // replay has a row the projection lacks
	Orphan    bool       `json:"orphan,omitempty"`  // projection has a row the replay lacks
}
