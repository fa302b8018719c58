package core

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxReferenceLength = 100

// maxQuantity bounds every quantity and balance to the range of the INT
// columns that store them.
const maxQuantity = math.MaxInt32

var typeAliases = map[string]TransactionType{
	"writeoff":        WriteOff,
	"write-off":       WriteOff,
	"inventory_count": Count,
	"stock_count":     Count,
	"receipt":         Purchase,
}

// Normalize cleans up caller input (CLI, JSON, model output) before validation.
func (d *Draft) Normalize() {
	t := strings.ToLower(strings.TrimSpace(string(d.Type)))
	if alias, ok := typeAliases[t]; ok {
		d.Type = alias
	} else {
		d.Type = TransactionType(t)
	}
	d.FromBin = strings.TrimSpace(d.FromBin)
	d.ToBin = strings.TrimSpace(d.ToBin)
	d.Reference = strings.TrimSpace(d.Reference)
	d.Notes = strings.TrimSpace(d.Notes)
	d.CreatedBy = strings.TrimSpace(d.CreatedBy)
}

// Validate enforces the structural rules for the draft's kind.
// It does not consult the catalog; existence checks happen in the processor.
func (d *Draft) Validate() error {
	if d.ItemID <= 0 {
		return invalid("item_id", "must be a positive id, got %d", d.ItemID)
	}
	if d.Quantity > maxQuantity || d.Quantity < -maxQuantity {
		return invalid("quantity", "magnitude must be at most %d, got %d", maxQuantity, d.Quantity)
	}

	needFrom, needTo, err := d.locationRule()
	if err != nil {
		return err
	}

	if err := checkSide("from_location_id", "from_bin", d.Type, needFrom, d.FromLocationID, d.FromBin); err != nil {
		return err
	}
	if err := checkSide("to_location_id", "to_bin", d.Type, needTo, d.ToLocationID, d.ToBin); err != nil {
		return err
	}

	if d.Type == Transfer && *d.FromLocationID == *d.ToLocationID && d.FromBin == d.ToBin {
		return invalid("to_location_id", "transfer source and destination are the same (location %d, bin %q)", *d.ToLocationID, d.ToBin)
	}

	if d.UnitPrice.IsNegative() {
		return invalid("unit_price", "cannot be negative, got %s", d.UnitPrice)
	}

	if n := utf8.RuneCountInString(d.Reference); n > maxReferenceLength {
		return invalid("reference", "must be at most %d characters, got %d", maxReferenceLength, n)
	}

	return nil
}

// locationRule applies the per-kind quantity sign rule and reports which
// location fields the kind requires.
func (d *Draft) locationRule() (needFrom, needTo bool, err error) {
	switch d.Type {
	case Purchase, Return:
		if d.Quantity <= 0 {
			return false, false, invalid("quantity", "%s quantity must be positive, got %d", d.Type, d.Quantity)
		}
		return false, true, nil
	case Sale, WriteOff:
		if d.Quantity <= 0 {
			return false, false, invalid("quantity", "%s quantity must be positive, got %d", d.Type, d.Quantity)
		}
		return true, false, nil
	case Transfer:
		if d.Quantity <= 0 {
			return false, false, invalid("quantity", "transfer quantity must be positive, got %d", d.Quantity)
		}
		return true, true, nil
	case Adjustment:
		if d.Quantity == 0 {
			return false, false, invalid("quantity", "adjustment quantity must be non-zero")
		}
		if d.Quantity > 0 {
			return false, true, nil
		}
		return true, false, nil
	case Count:
		if d.Quantity < 0 {
			return false, false, invalid("quantity", "count quantity cannot be negative, got %d", d.Quantity)
		}
		return false, true, nil
	default:
		return false, false, invalid("type", "unknown transaction type %q", d.Type)
	}
}

func checkSide(locField, binField string, t TransactionType, need bool, loc *int, bin string) error {
	switch {
	case need && loc == nil:
		return invalid(locField, "required for %s", t)
	case !need && loc != nil:
		return invalid(locField, "not used by %s", t)
	case loc == nil && bin != "":
		return invalid(binField, "set without %s", locField)
	case loc != nil && *loc <= 0:
		return invalid(locField, "must be a positive id, got %d", *loc)
	}
	return nil
}

// entry builds the ledger record for a validated draft. TotalPrice is always
// recomputed; whatever the caller supplied is discarded. CreatedAt keeps
// microseconds, the finest unit every store can hold.
func (d *Draft) entry(now time.Time) LedgerEntry {
	return LedgerEntry{
		ItemID:         d.ItemID,
		Type:           d.Type,
		Quantity:       d.Quantity,
		FromLocationID: copyID(d.FromLocationID),
		FromBin:        d.FromBin,
		ToLocationID:   copyID(d.ToLocationID),
		ToBin:          d.ToBin,
		UnitPrice:      d.UnitPrice,
		TotalPrice:     decimal.NewFromInt(int64(d.Quantity)).Mul(d.UnitPrice),
		CreatedBy:      d.CreatedBy,
		Reference:      d.Reference,
		Notes:          d.Notes,
		WorkOrderID:    copyID(d.WorkOrderID),
		CreatedAt:      now.Truncate(time.Microsecond),
	}
}

func copyID(id *int) *int {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
