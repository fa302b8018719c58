package core

import (
	"fmt"
	"slices"
)

type effectKind int

const (
	increase effectKind = iota
	decrease
	set
)

type effect struct {
	key  BalanceKey
	kind effectKind
	qty  int
}

// effects expands an entry into the ordered balance effects of its kind.
// Every TransactionType must have a case here; the default branch rejects
// anything outside the closed set.
func effects(e LedgerEntry) ([]effect, error) {
	from, hasFrom := e.FromKey()
	to, hasTo := e.ToKey()

	switch e.Type {
	case Purchase, Return:
		if !hasTo {
			return nil, invalid("to_location_id", "required for %s", e.Type)
		}
		return []effect{{key: to, kind: increase, qty: e.Quantity}}, nil
	case Sale, WriteOff:
		if !hasFrom {
			return nil, invalid("from_location_id", "required for %s", e.Type)
		}
		return []effect{{key: from, kind: decrease, qty: e.Quantity}}, nil
	case Transfer:
		if !hasFrom || !hasTo {
			return nil, invalid("", "transfer requires both locations")
		}
		return []effect{
			{key: from, kind: decrease, qty: e.Quantity},
			{key: to, kind: increase, qty: e.Quantity},
		}, nil
	case Adjustment:
		if e.Quantity > 0 {
			if !hasTo {
				return nil, invalid("to_location_id", "required for positive adjustment")
			}
			return []effect{{key: to, kind: increase, qty: e.Quantity}}, nil
		}
		if !hasFrom {
			return nil, invalid("from_location_id", "required for negative adjustment")
		}
		return []effect{{key: from, kind: decrease, qty: -e.Quantity}}, nil
	case Count:
		if !hasTo {
			return nil, invalid("to_location_id", "required for count")
		}
		return []effect{{key: to, kind: set, qty: e.Quantity}}, nil
	default:
		return nil, invalid("type", "unknown transaction type %q", e.Type)
	}
}

// touchedKeys returns the balance keys an entry may read or write.
func touchedKeys(e LedgerEntry) []BalanceKey {
	var keys []BalanceKey
	if k, ok := e.FromKey(); ok {
		keys = append(keys, k)
	}
	if k, ok := e.ToKey(); ok {
		keys = append(keys, k)
	}
	return keys
}

// LockKeys returns the serialization keys for an entry in ascending order.
// Stores acquire them in this order so opposing transfers cannot deadlock.
func LockKeys(e LedgerEntry) []LockKey {
	var keys []LockKey
	for _, k := range touchedKeys(e) {
		keys = append(keys, k.Lock())
	}
	slices.SortFunc(keys, compareLockKeys)
	return slices.Compact(keys)
}

func compareLockKeys(a, b LockKey) int {
	if a.ItemID != b.ItemID {
		return a.ItemID - b.ItemID
	}
	return a.LocationID - b.LocationID
}

func compareBalanceKeys(a, b BalanceKey) int {
	if c := compareLockKeys(a.Lock(), b.Lock()); c != 0 {
		return c
	}
	switch {
	case a.Bin < b.Bin:
		return -1
	case a.Bin > b.Bin:
		return 1
	}
	return 0
}

// BalanceSheet is an in-memory projection: the rule engine the processor runs
// against the rows it has locked, and the target of a full ledger replay.
type BalanceSheet struct {
	rows map[BalanceKey]Balance
}

// NewBalanceSheet seeds a sheet with existing rows.
func NewBalanceSheet(rows ...Balance) *BalanceSheet {
	s := &BalanceSheet{rows: make(map[BalanceKey]Balance, len(rows))}
	for _, r := range rows {
		s.rows[r.BalanceKey] = r
	}
	return s
}

// Row returns the materialized row for key, if any.
func (s *BalanceSheet) Row(key BalanceKey) (Balance, bool) {
	b, ok := s.rows[key]
	return b, ok
}

// Quantity returns the balance at key, 0 when absent.
func (s *BalanceSheet) Quantity(key BalanceKey) int {
	return s.rows[key].Quantity
}

// StockOnHand sums every row of the item.
func (s *BalanceSheet) StockOnHand(itemID int) int {
	total := 0
	for k, b := range s.rows {
		if k.ItemID == itemID {
			total += b.Quantity
		}
	}
	return total
}

// Rows returns all rows ordered by item, location and bin.
func (s *BalanceSheet) Rows() []Balance {
	out := make([]Balance, 0, len(s.rows))
	for _, b := range s.rows {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Balance) int { return compareBalanceKeys(a.BalanceKey, b.BalanceKey) })
	return out
}

// Apply runs the entry's effects. It returns the rows that changed and the net
// change in the item's stock on hand. On error the sheet is left untouched.
func (s *BalanceSheet) Apply(e LedgerEntry, policy NegativeStockPolicy) ([]Balance, int, error) {
	effs, err := effects(e)
	if err != nil {
		return nil, 0, err
	}

	staged := make(map[BalanceKey]Balance, len(effs))
	var order []BalanceKey
	lookup := func(k BalanceKey) (Balance, bool) {
		if b, ok := staged[k]; ok {
			return b, true
		}
		return s.Row(k)
	}
	write := func(k BalanceKey, qty int) {
		if _, seen := staged[k]; !seen {
			order = append(order, k)
		}
		staged[k] = Balance{BalanceKey: k, Quantity: qty, UpdatedAt: e.CreatedAt}
	}

	delta := 0
	for _, eff := range effs {
		cur, exists := lookup(eff.key)
		switch eff.kind {
		case increase:
			if cur.Quantity > maxQuantity-eff.qty {
				return nil, 0, invalid("quantity", "balance for item %d at location %d (bin %q) would exceed %d: have %d, adding %d",
					eff.key.ItemID, eff.key.LocationID, eff.key.Bin, maxQuantity, cur.Quantity, eff.qty)
			}
			write(eff.key, cur.Quantity+eff.qty)
			delta += eff.qty
		case decrease:
			if !exists {
				// Nothing was ever stocked here: no row is created.
				if policy == NegativeStockReject && eff.qty > 0 {
					return nil, 0, &ConsistencyError{Key: eff.key, Have: 0, Want: eff.qty}
				}
				continue
			}
			next := cur.Quantity - eff.qty
			if next < 0 {
				if policy == NegativeStockReject {
					return nil, 0, &ConsistencyError{Key: eff.key, Have: cur.Quantity, Want: eff.qty}
				}
				next = 0
			}
			write(eff.key, next)
			delta += next - cur.Quantity
		case set:
			if exists && cur.Quantity == eff.qty {
				continue
			}
			if !exists && eff.qty == 0 {
				continue
			}
			write(eff.key, eff.qty)
			delta += eff.qty - cur.Quantity
		}
	}

	changed := make([]Balance, 0, len(order))
	for _, k := range order {
		s.rows[k] = staged[k]
		changed = append(changed, staged[k])
	}
	return changed, delta, nil
}

// Replay rebuilds a projection from empty state by applying entries in order.
// Clamp semantics are used regardless of the live policy: entries accepted
// under NegativeStockReject never went negative, so the result is identical.
func Replay(entries []LedgerEntry) (*BalanceSheet, error) {
	s := NewBalanceSheet()
	for _, e := range entries {
		if _, _, err := s.Apply(e, NegativeStockClamp); err != nil {
			return nil, fmt.Errorf("failed to replay entry %d: %w", e.ID, err)
		}
	}
	return s, nil
}
