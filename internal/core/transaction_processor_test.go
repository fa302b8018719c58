package core_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
	"stock-ledger/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	catalog   *memory.Catalog
	processor core.TransactionProcessor
	alerts    *recorder
}

type recorder struct {
	mu     sync.Mutex
	alerts []core.ReorderAlert
}

func (r *recorder) NotifyReorder(_ context.Context, a core.ReorderAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) list() []core.ReorderAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ReorderAlert(nil), r.alerts...)
}

func newFixture(t *testing.T, policy core.NegativeStockPolicy) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), catalog: memory.NewCatalog(), alerts: &recorder{}}
	if err := f.catalog.PutItem(core.Item{ID: itemX, SKU: "BRK-01", Name: "Brake pad", ReorderPoint: 5, ReorderQuantity: 20, PurchasePrice: decimal.RequireFromString("7.50")}); err != nil {
		t.Fatal(err)
	}
	f.catalog.PutLocation(core.Location{ID: locA, Name: "Warehouse"})
	f.catalog.PutLocation(core.Location{ID: locB, Name: "Van", ParentID: ptr(locA)})
	f.processor = core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{
		NegativeStock: policy,
		Notifier:      f.alerts,
		Now:           func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) submit(t *testing.T, d core.Draft) core.LedgerEntry {
	t.Helper()
	d.ItemID = itemX
	e, err := f.processor.Submit(context.Background(), d)
	if err != nil {
		t.Fatalf("Submit(%s %d) failed: %v", d.Type, d.Quantity, err)
	}
	return e
}

func (f *fixture) balance(t *testing.T, loc int, bin string) int {
	t.Helper()
	b, _, err := f.store.GetBalance(context.Background(), key(loc, bin))
	if err != nil {
		t.Fatal(err)
	}
	return b.Quantity
}

func (f *fixture) entryCount(t *testing.T) int {
	t.Helper()
	entries, _, err := f.store.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestProcessor_Submit(t *testing.T) {
	f := newFixture(t, "")

	e := f.submit(t, core.Draft{
		Type:         "Purchase",
		Quantity:     12,
		ToLocationID: ptr(locA),
		UnitPrice:    decimal.RequireFromString("2.25"),
		TotalPrice:   decimal.RequireFromString("1000"),
		CreatedBy:    " dana ",
		Reference:    "DN-4411",
	})

	if e.ID != 1 || e.Type != core.Purchase || e.CreatedBy != "dana" {
		t.Errorf("entry = %+v", e)
	}
	if !e.TotalPrice.Equal(decimal.RequireFromString("27")) {
		t.Errorf("total_price = %s, want 27 (caller value must be ignored)", e.TotalPrice)
	}
	if !e.CreatedAt.Equal(fixedNow) {
		t.Errorf("created_at = %v, want %v", e.CreatedAt, fixedNow)
	}

	stored, err := f.store.GetEntry(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Reference != "DN-4411" || !stored.TotalPrice.Equal(e.TotalPrice) {
		t.Errorf("stored entry = %+v", stored)
	}
	if got := f.balance(t, locA, ""); got != 12 {
		t.Errorf("balance = %d, want 12", got)
	}
}

func TestProcessor_FailuresLeaveNoTrace(t *testing.T) {
	f := newFixture(t, core.NegativeStockReject)
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 3, ToLocationID: ptr(locA)})
	ctx := context.Background()

	tests := []struct {
		name  string
		draft core.Draft
		check func(error) bool
	}{
		{"validation", core.Draft{ItemID: itemX, Type: core.Sale, Quantity: 0, FromLocationID: ptr(locA)}, func(err error) bool {
			var ve *core.ValidationError
			return errors.As(err, &ve)
		}},
		{"unknown item", core.Draft{ItemID: 99, Type: core.Purchase, Quantity: 1, ToLocationID: ptr(locA)}, func(err error) bool {
			var nf *core.NotFoundError
			return errors.As(err, &nf) && nf.Kind == "item" && nf.ID == 99
		}},
		{"unknown location", core.Draft{ItemID: itemX, Type: core.Transfer, Quantity: 1, FromLocationID: ptr(locA), ToLocationID: ptr(77)}, func(err error) bool {
			var nf *core.NotFoundError
			return errors.As(err, &nf) && nf.Kind == "location" && nf.ID == 77
		}},
		{"oversell under reject", core.Draft{ItemID: itemX, Type: core.Transfer, Quantity: 5, FromLocationID: ptr(locA), ToLocationID: ptr(locB)}, func(err error) bool {
			var ce *core.ConsistencyError
			return errors.As(err, &ce) && ce.Have == 3 && ce.Want == 5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.processor.Validate(ctx, tt.draft); tt.name != "oversell under reject" && !tt.check(err) {
				t.Errorf("Validate error = %v", err)
			}
			_, err := f.processor.Submit(ctx, tt.draft)
			if err == nil || !tt.check(err) {
				t.Fatalf("Submit error = %v", err)
			}
			if n := f.entryCount(t); n != 1 {
				t.Errorf("ledger has %d entries, want 1", n)
			}
			if a, b := f.balance(t, locA, ""), f.balance(t, locB, ""); a != 3 || b != 0 {
				t.Errorf("balances A=%d B=%d, want 3/0", a, b)
			}
		})
	}
}

func TestProcessor_ValidateDoesNotPersist(t *testing.T) {
	f := newFixture(t, "")
	if err := f.processor.Validate(context.Background(), core.Draft{ItemID: itemX, Type: core.Purchase, Quantity: 1, ToLocationID: ptr(locA)}); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if n := f.entryCount(t); n != 0 {
		t.Errorf("Validate appended %d entries", n)
	}
}

// failingStore fails every balance write after the entry has been appended.
type failingStore struct {
	*memory.Store
}

var errDiskFull = errors.New("disk full")

type failingTx struct {
	core.LedgerTx
}

func (failingTx) PutBalance(context.Context, core.Balance) error { return errDiskFull }

func (s failingStore) Atomic(ctx context.Context, keys []core.LockKey, fn func(context.Context, core.LedgerTx) error) error {
	return s.Store.Atomic(ctx, keys, func(ctx context.Context, tx core.LedgerTx) error {
		return fn(ctx, failingTx{tx})
	})
}

func TestProcessor_StoreFailureIsAtomic(t *testing.T) {
	store := failingStore{memory.NewStore()}
	catalog := memory.NewCatalog()
	catalog.PutItem(core.Item{ID: itemX, Name: "Brake pad"})
	catalog.PutLocation(core.Location{ID: locA})
	p := core.NewTransactionProcessor(store, catalog, catalog, core.ProcessorConfig{})

	_, err := p.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Purchase, Quantity: 4, ToLocationID: ptr(locA)})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("error = %v, want the store error unchanged", err)
	}
	entries, balances, _ := store.ReadAll(context.Background())
	if len(entries) != 0 || len(balances) != 0 {
		t.Errorf("partial write: %d entries, %d balances", len(entries), len(balances))
	}
}

func TestProcessor_Reverse(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	purchase := f.submit(t, core.Draft{Type: core.Purchase, Quantity: 10, ToLocationID: ptr(locA), ToBin: "A1", UnitPrice: decimal.NewFromInt(3)})
	transfer := f.submit(t, core.Draft{Type: core.Transfer, Quantity: 4, FromLocationID: ptr(locA), FromBin: "A1", ToLocationID: ptr(locB)})
	sale := f.submit(t, core.Draft{Type: core.Sale, Quantity: 1, FromLocationID: ptr(locB), WorkOrderID: ptr(501)})
	count := f.submit(t, core.Draft{Type: core.Count, Quantity: 5, ToLocationID: ptr(locA), ToBin: "A1"})

	rev, err := f.processor.Reverse(ctx, sale.ID, "lee", "")
	if err != nil {
		t.Fatalf("Reverse(sale) failed: %v", err)
	}
	if rev.Type != core.Adjustment || rev.Quantity != 1 || rev.ToLocationID == nil || *rev.ToLocationID != locB {
		t.Errorf("sale reversal = %+v", rev)
	}
	if rev.ReversesEntryID == nil || *rev.ReversesEntryID != sale.ID || rev.Notes != "Reversal of entry 3" || rev.CreatedBy != "lee" {
		t.Errorf("reversal metadata = %+v", rev)
	}
	if rev.WorkOrderID == nil || *rev.WorkOrderID != 501 {
		t.Errorf("reversal lost the work order: %+v", rev.WorkOrderID)
	}
	if got := f.balance(t, locB, ""); got != 4 {
		t.Errorf("van after sale reversal = %d, want 4", got)
	}

	rev, err = f.processor.Reverse(ctx, transfer.ID, "lee", "wrong van")
	if err != nil {
		t.Fatalf("Reverse(transfer) failed: %v", err)
	}
	if rev.Type != core.Transfer || *rev.FromLocationID != locB || *rev.ToLocationID != locA || rev.ToBin != "A1" {
		t.Errorf("transfer reversal = %+v", rev)
	}
	if a, b := f.balance(t, locA, "A1"), f.balance(t, locB, ""); a != 9 || b != 0 {
		t.Errorf("after transfer reversal A1=%d van=%d, want 9/0", a, b)
	}

	if _, err := f.processor.Reverse(ctx, transfer.ID, "lee", ""); err == nil {
		t.Error("second reversal of one entry must fail")
	}
	if _, err := f.processor.Reverse(ctx, rev.ID, "lee", ""); err == nil {
		t.Error("reversing a reversal must fail")
	}
	var ve *core.ValidationError
	if _, err := f.processor.Reverse(ctx, count.ID, "lee", ""); !errors.As(err, &ve) {
		t.Errorf("reversing a count: %v, want ValidationError", err)
	}
	var nf *core.NotFoundError
	if _, err := f.processor.Reverse(ctx, 404, "lee", ""); !errors.As(err, &nf) || nf.Kind != "entry" {
		t.Errorf("reversing a missing entry: %v", err)
	}

	rev, err = f.processor.Reverse(ctx, purchase.ID, "lee", "")
	if err != nil {
		t.Fatalf("Reverse(purchase) failed: %v", err)
	}
	if rev.Type != core.Adjustment || rev.Quantity != -10 || *rev.FromLocationID != locA || rev.FromBin != "A1" {
		t.Errorf("purchase reversal = %+v", rev)
	}
	if !rev.TotalPrice.Equal(decimal.NewFromInt(-30)) {
		t.Errorf("reversal total = %s, want -30", rev.TotalPrice)
	}
	// the count left 5 in A1 (then +4 back); reversing 10 clamps to zero
	if got := f.balance(t, locA, "A1"); got != 0 {
		t.Errorf("A1 after purchase reversal = %d, want 0", got)
	}
}

func TestProcessor_ConcurrentSalesOnOneKey(t *testing.T) {
	f := newFixture(t, core.NegativeStockReject)
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 40, ToLocationID: ptr(locA)})

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Sale, Quantity: 1, FromLocationID: ptr(locA)})
			mu.Lock()
			defer mu.Unlock()
			var ce *core.ConsistencyError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &ce):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 40 || rejected != 10 {
		t.Errorf("ok=%d rejected=%d, want 40/10", ok, rejected)
	}
	if got := f.balance(t, locA, ""); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
	if n := f.entryCount(t); n != 41 {
		t.Errorf("ledger has %d entries, want 41", n)
	}
}

func TestProcessor_OpposingTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t, "")
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 500, ToLocationID: ptr(locA)})
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 500, ToLocationID: ptr(locB)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			from, to := locA, locB
			if i%2 == 1 {
				from, to = to, from
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.processor.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Transfer, Quantity: 1, FromLocationID: ptr(from), ToLocationID: ptr(to)})
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}
	if a, b := f.balance(t, locA, ""), f.balance(t, locB, ""); a != 500 || b != 500 {
		t.Errorf("A=%d B=%d, want 500/500", a, b)
	}
}

func TestProcessor_ReorderAlertOnCrossing(t *testing.T) {
	f := newFixture(t, "")

	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 10, ToLocationID: ptr(locA)})
	f.submit(t, core.Draft{Type: core.Sale, Quantity: 3, FromLocationID: ptr(locA)}) // 7
	if n := len(f.alerts.list()); n != 0 {
		t.Fatalf("%d alerts above the reorder point", n)
	}

	crossing := f.submit(t, core.Draft{Type: core.Sale, Quantity: 2, FromLocationID: ptr(locA)}) // 5
	f.submit(t, core.Draft{Type: core.WriteOff, Quantity: 1, FromLocationID: ptr(locA)})         // 4, already below
	alerts := f.alerts.list()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.EntryID != crossing.ID || a.StockOnHand != 5 || a.ReorderPoint != 5 || a.ReorderQuantity != 20 || a.SKU != "BRK-01" {
		t.Errorf("alert = %+v", a)
	}

	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 10, ToLocationID: ptr(locB)}) // 14
	f.submit(t, core.Draft{Type: core.Count, Quantity: 0, ToLocationID: ptr(locB)})     // 4
	if n := len(f.alerts.list()); n != 2 {
		t.Errorf("count crossing the reorder point: %d alerts, want 2", n)
	}
}

// barrierStore holds every unit of work after its first balance write until
// all parties have written, so their commits overlap.
type barrierStore struct {
	*memory.Store
	wg *sync.WaitGroup
}

type barrierTx struct {
	core.LedgerTx
	wg   *sync.WaitGroup
	once *sync.Once
}

func (tx barrierTx) PutBalance(ctx context.Context, b core.Balance) error {
	if err := tx.LedgerTx.PutBalance(ctx, b); err != nil {
		return err
	}
	tx.once.Do(func() {
		tx.wg.Done()
		tx.wg.Wait()
	})
	return nil
}

func (s barrierStore) Atomic(ctx context.Context, keys []core.LockKey, fn func(context.Context, core.LedgerTx) error) error {
	return s.Store.Atomic(ctx, keys, func(ctx context.Context, tx core.LedgerTx) error {
		return fn(ctx, barrierTx{LedgerTx: tx, wg: s.wg, once: &sync.Once{}})
	})
}

func TestProcessor_ConcurrentCrossingAlertsOnce(t *testing.T) {
	f := newFixture(t, "")
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 5, ToLocationID: ptr(locA)})
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: 5, ToLocationID: ptr(locB)})

	// 10 -> 7 -> 4 crosses the reorder point of 5 exactly once, whichever
	// sale commits first.
	var barrier sync.WaitGroup
	barrier.Add(2)
	p := core.NewTransactionProcessor(barrierStore{Store: f.store, wg: &barrier}, f.catalog, f.catalog, core.ProcessorConfig{
		Notifier: f.alerts,
		Now:      func() time.Time { return fixedNow },
	})

	var wg sync.WaitGroup
	for _, loc := range []int{locA, locB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Sale, Quantity: 3, FromLocationID: ptr(loc)}); err != nil {
				t.Errorf("Sale at %d failed: %v", loc, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("overlapping sales deadlocked")
	}

	alerts := f.alerts.list()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts for one crossing, want 1: %+v", len(alerts), alerts)
	}
	if alerts[0].StockOnHand != 4 {
		t.Errorf("alert stock on hand = %d, want 4", alerts[0].StockOnHand)
	}
	if a, b := f.balance(t, locA, ""), f.balance(t, locB, ""); a != 2 || b != 2 {
		t.Errorf("A=%d B=%d, want 2/2", a, b)
	}
}

func TestProcessor_BalanceStaysWithinColumnRange(t *testing.T) {
	f := newFixture(t, "")
	f.submit(t, core.Draft{Type: core.Purchase, Quantity: math.MaxInt32, ToLocationID: ptr(locA)})

	_, err := f.processor.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Purchase, Quantity: 1, ToLocationID: ptr(locA)})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Fatalf("error = %v, want ValidationError on quantity", err)
	}
	if got := f.balance(t, locA, ""); got != math.MaxInt32 {
		t.Errorf("balance = %d, want %d", got, math.MaxInt32)
	}
	if n := f.entryCount(t); n != 1 {
		t.Errorf("ledger has %d entries, want 1", n)
	}
}

func TestProcessor_CreatedAtHasMicrosecondPrecision(t *testing.T) {
	f := newFixture(t, "")
	now := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	p := core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{
		Now: func() time.Time { return now },
	})

	e, err := p.Submit(context.Background(), core.Draft{ItemID: itemX, Type: core.Purchase, Quantity: 1, ToLocationID: ptr(locA)})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)
	if !e.CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", e.CreatedAt, want)
	}
	stored, err := f.store.GetEntry(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("stored created_at = %v, returned %v", stored.CreatedAt, e.CreatedAt)
	}
	b, _, _ := f.store.GetBalance(context.Background(), key(locA, ""))
	if !b.UpdatedAt.Equal(want) {
		t.Errorf("updated_at = %v, want %v", b.UpdatedAt, want)
	}
}
