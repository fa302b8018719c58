// Package notify delivers reorder alerts raised by the transaction processor.
package notify

import (
	"context"
	"errors"
	"log"

	"stock-ledger/internal/core"
)

// LogNotifier writes alerts to the standard logger.
type LogNotifier struct{}

func (LogNotifier) NotifyReorder(_ context.Context, a core.ReorderAlert) error {
	log.Printf("[REORDER] item %d (%s) at %d units, reorder point %d, suggest ordering %d (entry %d)",
		a.ItemID, a.SKU, a.StockOnHand, a.ReorderPoint, a.ReorderQuantity, a.EntryID)
	return nil
}

// Fanout sends each alert to every notifier and joins their errors.
type Fanout []core.ReorderNotifier

func (f Fanout) NotifyReorder(ctx context.Context, a core.ReorderAlert) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyReorder(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
