package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stock-ledger/internal/core"
)

func TestCatalog_SKUIsUnique(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	id, err := c.CreateItem(ctx, core.Item{SKU: "NUT-M6", Name: "Nut"})
	if err != nil || id != 1 {
		t.Fatalf("CreateItem = %d, %v", id, err)
	}
	_, err = c.CreateItem(ctx, core.Item{SKU: "NUT-M6", Name: "Other nut"})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "sku" {
		t.Errorf("duplicate SKU: %v, want ValidationError on sku", err)
	}
	if _, err := c.CreateItem(ctx, core.Item{Name: "Loose parts"}); err != nil {
		t.Errorf("item without SKU rejected: %v", err)
	}
	// an item may keep its own SKU on update
	if err := c.PutItem(core.Item{ID: id, SKU: "NUT-M6", Name: "Nut M6"}); err != nil {
		t.Errorf("PutItem on own SKU failed: %v", err)
	}
}

func TestCatalog_Locations(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	root, err := c.CreateLocation(ctx, core.Location{Name: "Depot"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateLocation(ctx, core.Location{Name: "Shelf", ParentID: &root}); err != nil {
		t.Errorf("child location failed: %v", err)
	}
	missing := 42
	var nf *core.NotFoundError
	if _, err := c.CreateLocation(ctx, core.Location{Name: "Orphan", ParentID: &missing}); !errors.As(err, &nf) {
		t.Errorf("unknown parent: %v", err)
	}
	if ok, _ := c.LocationExists(ctx, root); !ok {
		t.Error("created location does not exist")
	}
}

func TestStore_AtomicRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	k := core.BalanceKey{ItemID: 1, LocationID: 1}
	boom := errors.New("boom")

	err := s.Atomic(ctx, []core.LockKey{k.Lock()}, func(ctx context.Context, tx core.LedgerTx) error {
		if _, err := tx.AppendEntry(ctx, core.LedgerEntry{ItemID: 1, Type: core.Purchase, Quantity: 1}); err != nil {
			return err
		}
		if err := tx.PutBalance(ctx, core.Balance{BalanceKey: k, Quantity: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic = %v, want boom", err)
	}
	if _, ok, _ := s.GetBalance(ctx, k); ok {
		t.Error("balance written by a failed unit of work")
	}
	if entries, _ := s.ListEntries(ctx, 0, core.LedgerFilter{}, 0, 0); len(entries) != 0 {
		t.Errorf("%d entries written by a failed unit of work", len(entries))
	}
}

func TestStore_DisjointKeysRunInParallel(t *testing.T) {
	s := NewStore()
	a := core.LockKey{ItemID: 1, LocationID: 1}
	b := core.LockKey{ItemID: 1, LocationID: 2}

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Atomic(context.Background(), []core.LockKey{a}, func(context.Context, core.LedgerTx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		s.Atomic(context.Background(), []core.LockKey{b}, func(context.Context, core.LedgerTx) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("writer on a disjoint key was blocked")
	}
	close(release)
	wg.Wait()
}

func TestStore_StockOnHandInsideUnitIsOrderedPerItem(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := core.BalanceKey{ItemID: 1, LocationID: 1}
	b := core.BalanceKey{ItemID: 1, LocationID: 2}
	s.SetBalance(core.Balance{BalanceKey: a, Quantity: 5})
	s.SetBalance(core.Balance{BalanceKey: b, Quantity: 5})

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Atomic(ctx, []core.LockKey{a.Lock()}, func(ctx context.Context, tx core.LedgerTx) error {
			tx.PutBalance(ctx, core.Balance{BalanceKey: a, Quantity: 2})
			total, _ := tx.StockOnHand(ctx, 1)
			if total != 7 {
				t.Errorf("first unit sees %d, want 7 (own write included)", total)
			}
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	seen := make(chan int, 1)
	go func() {
		s.Atomic(ctx, []core.LockKey{b.Lock()}, func(ctx context.Context, tx core.LedgerTx) error {
			tx.PutBalance(ctx, core.Balance{BalanceKey: b, Quantity: 2})
			total, _ := tx.StockOnHand(ctx, 1)
			seen <- total
			return nil
		})
	}()

	select {
	case total := <-seen:
		t.Fatalf("second unit read %d while the first still held the item", total)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	wg.Wait()

	select {
	case total := <-seen:
		if total != 4 {
			t.Errorf("second unit sees %d, want 4 (first commit included)", total)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second unit never acquired the item")
	}
}

func TestStore_EntriesAreCopied(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	to := 3
	var saved core.LedgerEntry
	s.Atomic(ctx, nil, func(ctx context.Context, tx core.LedgerTx) error {
		var err error
		saved, err = tx.AppendEntry(ctx, core.LedgerEntry{ItemID: 1, Type: core.Purchase, Quantity: 1, ToLocationID: &to})
		return err
	})
	to = 99

	got, err := s.GetEntry(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	*got.ToLocationID = 7
	again, _ := s.GetEntry(ctx, saved.ID)
	if *again.ToLocationID != 3 {
		t.Errorf("stored entry was mutated through a pointer: %d", *again.ToLocationID)
	}
}
