// Package memory is an in-process store for tests, demos and single-binary use.
//
// Writers serialize per (item, location) through a striped set of mutexes
// taken in LockKeys order. Disjoint keys run in parallel; the journal append
// and the balance writes become visible together at commit under a short data
// lock. A unit that asks for stock on hand also takes an item-wide lock and
// keeps it through commit.
package memory

import (
	"context"
	"slices"
	"sync"

	"stock-ledger/internal/core"
)

type Store struct {
	locks keyLocks

	// gate is held shared by every writer and exclusively by ReplaceBalances.
	gate sync.RWMutex

	mu       sync.RWMutex
	seq      int
	entries  []core.LedgerEntry // ordered by ID
	balances map[core.BalanceKey]core.Balance
	reversed map[int]bool
}

var _ core.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		locks:    keyLocks{m: map[core.LockKey]*sync.Mutex{}},
		balances: map[core.BalanceKey]core.Balance{},
		reversed: map[int]bool{},
	}
}

type keyLocks struct {
	mu sync.Mutex
	m  map[core.LockKey]*sync.Mutex
}

func (l *keyLocks) get(k core.LockKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[k]
	if !ok {
		m = &sync.Mutex{}
		l.m[k] = m
	}
	return m
}

func (s *Store) Atomic(ctx context.Context, keys []core.LockKey, fn func(ctx context.Context, tx core.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	for _, k := range keys {
		m := s.locks.get(k)
		m.Lock()
		defer m.Unlock()
	}

	tx := &memTx{store: s, balances: map[core.BalanceKey]core.Balance{}}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range tx.entries {
		i, _ := slices.BinarySearchFunc(s.entries, e.ID, func(x core.LedgerEntry, id int) int { return x.ID - id })
		s.entries = slices.Insert(s.entries, i, e)
		if e.ReversesEntryID != nil {
			s.reversed[*e.ReversesEntryID] = true
		}
	}
	for k, b := range tx.balances {
		s.balances[k] = b
	}
	return nil
}

type memTx struct {
	store    *Store
	balances map[core.BalanceKey]core.Balance
	entries  []core.LedgerEntry
	held     []*sync.Mutex
}

func (tx *memTx) release() {
	for _, m := range tx.held {
		m.Unlock()
	}
}

func (tx *memTx) GetBalance(_ context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	if b, ok := tx.balances[key]; ok {
		return b, true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	b, ok := tx.store.balances[key]
	return b, ok, nil
}

func (tx *memTx) PutBalance(_ context.Context, b core.Balance) error {
	tx.balances[b.BalanceKey] = b
	return nil
}

func (tx *memTx) AppendEntry(_ context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	tx.store.mu.Lock()
	tx.store.seq++
	e.ID = tx.store.seq
	tx.store.mu.Unlock()

	tx.entries = append(tx.entries, cloneEntry(e))
	return e, nil
}

func (tx *memTx) IsReversed(_ context.Context, entryID int) (bool, error) {
	for _, e := range tx.entries {
		if e.ReversesEntryID != nil && *e.ReversesEntryID == entryID {
			return true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.reversed[entryID], nil
}

// itemLock is the item-wide key. Location ids are positive, so it never
// collides with a per-location key.
func itemLock(itemID int) core.LockKey {
	return core.LockKey{ItemID: itemID}
}

func (tx *memTx) StockOnHand(_ context.Context, itemID int) (int, error) {
	m := tx.store.locks.get(itemLock(itemID))
	if !slices.Contains(tx.held, m) {
		m.Lock()
		tx.held = append(tx.held, m)
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	total := 0
	for k, b := range tx.store.balances {
		if _, staged := tx.balances[k]; k.ItemID == itemID && !staged {
			total += b.Quantity
		}
	}
	for k, b := range tx.balances {
		if k.ItemID == itemID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *Store) GetBalance(_ context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[key]
	return b, ok, nil
}

func (s *Store) ListBalances(_ context.Context, itemID int) ([]core.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []core.Balance
	for k, b := range s.balances {
		if k.ItemID == itemID {
			rows = append(rows, b)
		}
	}
	return core.NewBalanceSheet(rows...).Rows(), nil
}

func (s *Store) StockOnHand(_ context.Context, itemID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for k, b := range s.balances {
		if k.ItemID == itemID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *Store) GetEntry(_ context.Context, id int) (core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, found := slices.BinarySearchFunc(s.entries, id, func(x core.LedgerEntry, id int) int { return x.ID - id })
	if !found {
		return core.LedgerEntry{}, &core.NotFoundError{Kind: "entry", ID: id}
	}
	return cloneEntry(s.entries[i]), nil
}

func (s *Store) ListEntries(_ context.Context, itemID int, filter core.LedgerFilter, afterID, limit int) ([]core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.LedgerEntry
	for _, e := range s.entries {
		if e.ID <= afterID || (itemID != 0 && e.ItemID != itemID) || !filter.Matches(e) {
			continue
		}
		out = append(out, cloneEntry(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ReadAll(_ context.Context) ([]core.LedgerEntry, []core.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]core.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, cloneEntry(e))
	}
	rows := make([]core.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		rows = append(rows, b)
	}
	return entries, rows, nil
}

func (s *Store) ReplaceBalances(_ context.Context, project func(entries []core.LedgerEntry) ([]core.Balance, error)) (int, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.RLock()
	entries := make([]core.LedgerEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, cloneEntry(e))
	}
	s.mu.RUnlock()

	rows, err := project(entries)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = make(map[core.BalanceKey]core.Balance, len(rows))
	for _, b := range rows {
		s.balances[b.BalanceKey] = b
	}
	return len(rows), nil
}

// SetBalance overwrites one projection row behind the ledger's back. It exists
// so tests and repair tooling can simulate drift.
func (s *Store) SetBalance(b core.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.BalanceKey] = b
}

func cloneEntry(e core.LedgerEntry) core.LedgerEntry {
	e.FromLocationID = cloneID(e.FromLocationID)
	e.ToLocationID = cloneID(e.ToLocationID)
	e.WorkOrderID = cloneID(e.WorkOrderID)
	e.ReversesEntryID = cloneID(e.ReversesEntryID)
	return e
}

func cloneID(id *int) *int {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
