package core

import (
	"context"
	"iter"
	"slices"
)

const defaultLedgerPageSize = 200

// LedgerReader reads the append-only journal.
type LedgerReader interface {
	GetEntry(ctx context.Context, id int) (LedgerEntry, error)
	// ListLedger lazily yields matching entries in creation order. The sequence
	// is finite; ranging over it again re-queries the store from the start.
	// itemID 0 lists every item.
	ListLedger(ctx context.Context, itemID int, filter LedgerFilter) iter.Seq2[LedgerEntry, error]
}

type ledgerReader struct {
	store    Store
	pageSize int
}

func NewLedgerReader(store Store, pageSize int) LedgerReader {
	if pageSize <= 0 {
		pageSize = defaultLedgerPageSize
	}
	return &ledgerReader{store: store, pageSize: pageSize}
}

func (r *ledgerReader) GetEntry(ctx context.Context, id int) (LedgerEntry, error) {
	return r.store.GetEntry(ctx, id)
}

func (r *ledgerReader) ListLedger(ctx context.Context, itemID int, filter LedgerFilter) iter.Seq2[LedgerEntry, error] {
	return func(yield func(LedgerEntry, error) bool) {
		afterID := 0
		remaining := filter.Limit
		for {
			if err := ctx.Err(); err != nil {
				yield(LedgerEntry{}, err)
				return
			}

			size := r.pageSize
			if filter.Limit > 0 && remaining < size {
				size = remaining
			}

			page, err := r.store.ListEntries(ctx, itemID, filter, afterID, size)
			if err != nil {
				yield(LedgerEntry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
				afterID = e.ID
			}

			if filter.Limit > 0 {
				remaining -= len(page)
				if remaining <= 0 {
					return
				}
			}
			if len(page) < size {
				return
			}
		}
	}
}

// Matches reports whether e satisfies every constraint of f except Limit.
func (f LedgerFilter) Matches(e LedgerEntry) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.LocationID != nil {
		from := e.FromLocationID != nil && *e.FromLocationID == *f.LocationID
		to := e.ToLocationID != nil && *e.ToLocationID == *f.LocationID
		if !from && !to {
			return false
		}
	}
	if f.WorkOrderID != nil && (e.WorkOrderID == nil || *e.WorkOrderID != *f.WorkOrderID) {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}
