package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceProjection answers stock questions from the materialized balances.
// It never replays the ledger on the read path; Rebuild and Verify do.
type BalanceProjection interface {
	GetBalance(ctx context.Context, itemID, locationID int, bin string) (int, error)
	GetStockOnHand(ctx context.Context, itemID int) (int, error)
	NeedsReordering(ctx context.Context, itemID int) (bool, error)
	// CurrentValue uses the catalog purchase price, not a cost basis.
	CurrentValue(ctx context.Context, itemID int) (decimal.Decimal, error)
	Summary(ctx context.Context, itemID int) (StockSummary, error)
	ListBalances(ctx context.Context, itemID int) ([]Balance, error)

	// Rebuild replaces every balance with the result of replaying the ledger.
	Rebuild(ctx context.Context) (int, error)
	// Verify replays the ledger and reports keys where the projection disagrees.
	Verify(ctx context.Context) ([]Drift, error)
}

type projection struct {
	store Store
	items ItemLookup
}

func NewBalanceProjection(store Store, items ItemLookup) BalanceProjection {
	return &projection{store: store, items: items}
}

func (p *projection) GetBalance(ctx context.Context, itemID, locationID int, bin string) (int, error) {
	b, ok, err := p.store.GetBalance(ctx, BalanceKey{ItemID: itemID, LocationID: locationID, Bin: bin})
	if err != nil || !ok {
		return 0, err
	}
	return b.Quantity, nil
}

func (p *projection) GetStockOnHand(ctx context.Context, itemID int) (int, error) {
	return p.store.StockOnHand(ctx, itemID)
}

func (p *projection) NeedsReordering(ctx context.Context, itemID int) (bool, error) {
	item, err := p.items.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	onHand, err := p.store.StockOnHand(ctx, itemID)
	if err != nil {
		return false, err
	}
	return onHand <= item.ReorderPoint, nil
}

func (p *projection) CurrentValue(ctx context.Context, itemID int) (decimal.Decimal, error) {
	item, err := p.items.GetItem(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	onHand, err := p.store.StockOnHand(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(onHand)).Mul(item.PurchasePrice), nil
}

func (p *projection) Summary(ctx context.Context, itemID int) (StockSummary, error) {
	item, err := p.items.GetItem(ctx, itemID)
	if err != nil {
		return StockSummary{}, err
	}
	rows, err := p.store.ListBalances(ctx, itemID)
	if err != nil {
		return StockSummary{}, err
	}

	onHand := 0
	for _, b := range rows {
		onHand += b.Quantity
	}
	return StockSummary{
		Item:            item,
		Balances:        rows,
		StockOnHand:     onHand,
		InStock:         onHand > 0,
		NeedsReordering: onHand <= item.ReorderPoint,
		BelowMinimum:    onHand < item.MinStockLevel,
		CurrentValue:    decimal.NewFromInt(int64(onHand)).Mul(item.PurchasePrice),
	}, nil
}

func (p *projection) ListBalances(ctx context.Context, itemID int) ([]Balance, error) {
	return p.store.ListBalances(ctx, itemID)
}

func (p *projection) Rebuild(ctx context.Context) (int, error) {
	n, err := p.store.ReplaceBalances(ctx, func(entries []LedgerEntry) ([]Balance, error) {
		sheet, err := Replay(entries)
		if err != nil {
			return nil, err
		}
		return sheet.Rows(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild projection: %w", err)
	}
	return n, nil
}

func (p *projection) Verify(ctx context.Context) ([]Drift, error) {
	entries, balances, err := p.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return Diff(balances, entries)
}

// Diff replays entries and compares the result with the materialized rows.
func Diff(balances []Balance, entries []LedgerEntry) ([]Drift, error) {
	replayed, err := Replay(entries)
	if err != nil {
		return nil, err
	}
	projected := NewBalanceSheet(balances...)

	var drifts []Drift
	for _, want := range replayed.Rows() {
		got, ok := projected.Row(want.BalanceKey)
		switch {
		case !ok:
			drifts = append(drifts, Drift{Key: want.BalanceKey, Replayed: want.Quantity, Missing: true})
		case got.Quantity != want.Quantity:
			drifts = append(drifts, Drift{Key: want.BalanceKey, Projected: got.Quantity, Replayed: want.Quantity})
		}
	}
	for _, got := range projected.Rows() {
		if _, ok := replayed.Row(got.BalanceKey); !ok {
			drifts = append(drifts, Drift{Key: got.BalanceKey, Projected: got.Quantity, Orphan: true})
		}
	}
	return drifts, nil
}
