package core

import (
	"context"
	"fmt"
	"log"
	"time"
)

// TransactionProcessor is the single write path into the stock ledger.
// Each call appends to the ledger and updates the balance projection as one
// atomic unit; a failed call leaves both untouched.
type TransactionProcessor interface {
	// Submit validates a draft, appends it and applies its balance effects.
	Submit(ctx context.Context, draft Draft) (LedgerEntry, error)
	// Validate runs every check Submit would, without persisting anything.
	Validate(ctx context.Context, draft Draft) error
	// Reverse appends a compensating entry for an earlier one.
	Reverse(ctx context.Context, entryID int, createdBy, notes string) (LedgerEntry, error)
}

// ProcessorConfig tunes a TransactionProcessor. The zero value clamps at zero
// and sends no reorder alerts.
type ProcessorConfig struct {
	NegativeStock NegativeStockPolicy
	Notifier      ReorderNotifier
	Now           func() time.Time
}

type transactionProcessor struct {
	store     Store
	items     ItemLookup
	locations LocationLookup
	cfg       ProcessorConfig
}

func NewTransactionProcessor(store Store, items ItemLookup, locations LocationLookup, cfg ProcessorConfig) TransactionProcessor {
	if cfg.NegativeStock == "" {
		cfg.NegativeStock = NegativeStockClamp
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &transactionProcessor{store: store, items: items, locations: locations, cfg: cfg}
}

func (p *transactionProcessor) Submit(ctx context.Context, draft Draft) (LedgerEntry, error) {
	item, err := p.check(ctx, &draft)
	if err != nil {
		return LedgerEntry{}, err
	}
	return p.commit(ctx, item, draft.entry(p.cfg.Now()), nil)
}

func (p *transactionProcessor) Validate(ctx context.Context, draft Draft) error {
	_, err := p.check(ctx, &draft)
	return err
}

// Reverse appends an entry that undoes the recorded quantity of entryID.
// Counts cannot be reversed and each entry can be reversed once.
func (p *transactionProcessor) Reverse(ctx context.Context, entryID int, createdBy, notes string) (LedgerEntry, error) {
	orig, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if orig.ReversesEntryID != nil {
		return LedgerEntry{}, invalid("entry_id", "entry %d is itself a reversal of entry %d", orig.ID, *orig.ReversesEntryID)
	}

	draft, err := compensatingDraft(orig)
	if err != nil {
		return LedgerEntry{}, err
	}
	draft.CreatedBy = createdBy
	draft.Notes = notes
	if draft.Notes == "" {
		draft.Notes = fmt.Sprintf("Reversal of entry %d", orig.ID)
	}

	item, err := p.check(ctx, &draft)
	if err != nil {
		return LedgerEntry{}, err
	}

	entry := draft.entry(p.cfg.Now())
	entry.ReversesEntryID = &orig.ID

	return p.commit(ctx, item, entry, func(ctx context.Context, tx LedgerTx) error {
		reversed, err := tx.IsReversed(ctx, orig.ID)
		if err != nil {
			return err
		}
		if reversed {
			return invalid("entry_id", "entry %d is already reversed", orig.ID)
		}
		return nil
	})
}

// check normalizes and validates the draft and resolves its references.
func (p *transactionProcessor) check(ctx context.Context, d *Draft) (Item, error) {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return Item{}, err
	}

	item, err := p.items.GetItem(ctx, d.ItemID)
	if err != nil {
		return Item{}, err
	}

	for _, id := range []*int{d.FromLocationID, d.ToLocationID} {
		if id == nil {
			continue
		}
		ok, err := p.locations.LocationExists(ctx, *id)
		if err != nil {
			return Item{}, err
		}
		if !ok {
			return Item{}, &NotFoundError{Kind: "location", ID: *id}
		}
	}
	return item, nil
}

// commit runs the rule engine against the locked rows, then appends the entry
// and writes the changed balances in the same store transaction.
func (p *transactionProcessor) commit(ctx context.Context, item Item, entry LedgerEntry,
	guard func(ctx context.Context, tx LedgerTx) error) (LedgerEntry, error) {

	var saved LedgerEntry
	var alert *ReorderAlert
	err := p.store.Atomic(ctx, LockKeys(entry), func(ctx context.Context, tx LedgerTx) error {
		if guard != nil {
			if err := guard(ctx, tx); err != nil {
				return err
			}
		}

		var current []Balance
		for _, k := range touchedKeys(entry) {
			b, ok, err := tx.GetBalance(ctx, k)
			if err != nil {
				return err
			}
			if ok {
				current = append(current, b)
			}
		}

		changed, delta, err := NewBalanceSheet(current...).Apply(entry, p.cfg.NegativeStock)
		if err != nil {
			return err
		}

		saved, err = tx.AppendEntry(ctx, entry)
		if err != nil {
			return err
		}
		for _, b := range changed {
			if err := tx.PutBalance(ctx, b); err != nil {
				return err
			}
		}

		alert, err = p.reorderCrossing(ctx, tx, item, saved, delta)
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}

	if alert != nil {
		alert.RaisedAt = p.cfg.Now()
		if err := p.cfg.Notifier.NotifyReorder(ctx, *alert); err != nil {
			log.Printf("reorder alert for item %d: %v", item.ID, err)
		}
	}
	return saved, nil
}

// reorderCrossing reports whether the entry took stock on hand from above the
// reorder point to at or below it. With a notifier configured every commit
// reads the total under the item-wide lock, so commits of one item are seen
// in a single order and each crossing is reported once.
func (p *transactionProcessor) reorderCrossing(ctx context.Context, tx LedgerTx, item Item, entry LedgerEntry, delta int) (*ReorderAlert, error) {
	if p.cfg.Notifier == nil {
		return nil, nil
	}
	after, err := tx.StockOnHand(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	before := after - delta
	if delta >= 0 || before <= item.ReorderPoint || after > item.ReorderPoint {
		return nil, nil
	}
	return &ReorderAlert{
		ItemID:          item.ID,
		SKU:             item.SKU,
		StockOnHand:     after,
		ReorderPoint:    item.ReorderPoint,
		ReorderQuantity: item.ReorderQuantity,
		EntryID:         entry.ID,
	}, nil
}

// compensatingDraft builds the draft that undoes orig's recorded quantity.
func compensatingDraft(orig LedgerEntry) (Draft, error) {
	d := Draft{
		ItemID:      orig.ItemID,
		UnitPrice:   orig.UnitPrice,
		Reference:   orig.Reference,
		WorkOrderID: copyID(orig.WorkOrderID),
	}

	switch orig.Type {
	case Purchase, Return:
		d.Type = Adjustment
		d.Quantity = -orig.Quantity
		d.FromLocationID, d.FromBin = copyID(orig.ToLocationID), orig.ToBin
	case Sale, WriteOff:
		d.Type = Adjustment
		d.Quantity = orig.Quantity
		d.ToLocationID, d.ToBin = copyID(orig.FromLocationID), orig.FromBin
	case Transfer:
		d.Type = Transfer
		d.Quantity = orig.Quantity
		d.FromLocationID, d.FromBin = copyID(orig.ToLocationID), orig.ToBin
		d.ToLocationID, d.ToBin = copyID(orig.FromLocationID), orig.FromBin
	case Adjustment:
		d.Type = Adjustment
		d.Quantity = -orig.Quantity
		if orig.Quantity > 0 {
			d.FromLocationID, d.FromBin = copyID(orig.ToLocationID), orig.ToBin
		} else {
			d.ToLocationID, d.ToBin = copyID(orig.FromLocationID), orig.FromBin
		}
	case Count:
		return Draft{}, invalid("entry_id", "count entry %d sets an absolute quantity and cannot be reversed", orig.ID)
	default:
		return Draft{}, invalid("type", "unknown transaction type %q on entry %d", orig.Type, orig.ID)
	}
	return d, nil
}
