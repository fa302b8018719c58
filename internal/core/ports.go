package core

import "context"

// ItemLookup is the narrow read interface onto the external item catalog.
// GetItem returns a *NotFoundError for unknown ids.
type ItemLookup interface {
	GetItem(ctx context.Context, id int) (Item, error)
}

// LocationLookup is the narrow read interface onto the external location registry.
type LocationLookup interface {
	LocationExists(ctx context.Context, id int) (bool, error)
}

// ReorderNotifier receives alerts when an item's stock falls to its reorder point.
type ReorderNotifier interface {
	NotifyReorder(ctx context.Context, alert ReorderAlert) error
}

// LedgerTx is the view of the store inside one atomic unit of work.
type LedgerTx interface {
	GetBalance(ctx context.Context, key BalanceKey) (Balance, bool, error)
	PutBalance(ctx context.Context, b Balance) error
	// AppendEntry persists e and returns it with its assigned ID.
	AppendEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	IsReversed(ctx context.Context, entryID int) (bool, error)
	// StockOnHand takes the item-wide lock, held until the unit of work ends,
	// and sums the item's balances including this unit's own writes. Units
	// that call it commit one at a time per item, in the order they see.
	StockOnHand(ctx context.Context, itemID int) (int, error)
}

// Store persists the ledger and its balance projection.
//
// Atomic runs fn as one transaction while holding exclusive locks on keys,
// acquired in the order given. Either everything fn wrote is committed or
// nothing is.
type Store interface {
	Atomic(ctx context.Context, keys []LockKey, fn func(ctx context.Context, tx LedgerTx) error) error

	GetBalance(ctx context.Context, key BalanceKey) (Balance, bool, error)
	ListBalances(ctx context.Context, itemID int) ([]Balance, error)
	StockOnHand(ctx context.Context, itemID int) (int, error)

	GetEntry(ctx context.Context, id int) (LedgerEntry, error)
	// ListEntries returns up to limit entries with ID > afterID in ID order.
	// itemID 0 matches every item. filter.Limit is ignored.
	ListEntries(ctx context.Context, itemID int, filter LedgerFilter, afterID, limit int) ([]LedgerEntry, error)

	// ReadAll returns the whole ledger and projection from one consistent view.
	ReadAll(ctx context.Context) ([]LedgerEntry, []Balance, error)
	// ReplaceBalances rebuilds the projection from the full ledger while
	// blocking concurrent writers.
	ReplaceBalances(ctx context.Context, project func(entries []LedgerEntry) ([]Balance, error)) (int, error)
}
