package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
	"stock-ledger/internal/store/sqlite"
)

type fixture struct {
	store   *sqlite.Store
	catalog *sqlite.Catalog
	itemID  int
	shelfID int
	yardID  int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{store: sqlite.NewStore(db), catalog: sqlite.NewCatalog(db)}
	f.itemID, err = f.catalog.CreateItem(ctx, core.Item{SKU: "BOLT-M8", Name: "M8 bolt", ReorderPoint: 5, PurchasePrice: decimal.RequireFromString("0.35")})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if f.shelfID, err = f.catalog.CreateLocation(ctx, core.Location{Name: "Shelf"}); err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}
	if f.yardID, err = f.catalog.CreateLocation(ctx, core.Location{Name: "Yard"}); err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}
	return f
}

func ptr(v int) *int { return &v }

func TestSQLiteStore_RoundTripsEntries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	proc := core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{Now: func() time.Time { return now }})

	wo := 42
	saved, err := proc.Submit(ctx, core.Draft{
		ItemID: f.itemID, Type: core.Purchase, Quantity: 12, ToLocationID: ptr(f.shelfID), ToBin: "B2",
		UnitPrice: decimal.RequireFromString("0.35"), Reference: "DN-1", WorkOrderID: &wo,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got, err := f.store.GetEntry(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Type != core.Purchase || got.Quantity != 12 || got.ToBin != "B2" || got.FromLocationID != nil {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.ToLocationID == nil || *got.ToLocationID != f.shelfID {
		t.Errorf("to location = %v, want %d", got.ToLocationID, f.shelfID)
	}
	if got.WorkOrderID == nil || *got.WorkOrderID != wo {
		t.Errorf("work order = %v, want %d", got.WorkOrderID, wo)
	}
	if !got.TotalPrice.Equal(decimal.RequireFromString("4.2")) {
		t.Errorf("total price = %s, want 4.2", got.TotalPrice)
	}
	if want := now.Truncate(time.Microsecond); !got.CreatedAt.Equal(want) || !saved.CreatedAt.Equal(want) {
		t.Errorf("created at = %v (returned %v), want %v", got.CreatedAt, saved.CreatedAt, want)
	}

	var nf *core.NotFoundError
	if _, err := f.store.GetEntry(ctx, 999); !errors.As(err, &nf) {
		t.Errorf("GetEntry(999) error = %v, want NotFoundError", err)
	}
}

func TestSQLiteStore_ProjectionAndRebuild(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	proc := core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{})
	proj := core.NewBalanceProjection(f.store, f.catalog)

	for _, d := range []core.Draft{
		{ItemID: f.itemID, Type: core.Purchase, Quantity: 50, ToLocationID: ptr(f.shelfID)},
		{ItemID: f.itemID, Type: core.Transfer, Quantity: 20, FromLocationID: ptr(f.shelfID), ToLocationID: ptr(f.yardID)},
		{ItemID: f.itemID, Type: core.Count, Quantity: 18, ToLocationID: ptr(f.yardID)},
	} {
		if _, err := proc.Submit(ctx, d); err != nil {
			t.Fatalf("Submit(%s) failed: %v", d.Type, err)
		}
	}

	summary, err := proj.Summary(ctx, f.itemID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.StockOnHand != 48 || len(summary.Balances) != 2 {
		t.Errorf("summary = %+v, want 48 on hand over 2 rows", summary)
	}
	if !summary.CurrentValue.Equal(decimal.RequireFromString("16.8")) {
		t.Errorf("current value = %s, want 16.8", summary.CurrentValue)
	}

	n, err := proj.Rebuild(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Rebuild = %d, %v; want 2 rows", n, err)
	}
	drifts, err := proj.Verify(ctx)
	if err != nil || len(drifts) != 0 {
		t.Errorf("Verify = %+v, %v; want no drift", drifts, err)
	}
}

func TestSQLiteStore_ListEntriesByTimeWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	proc := core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Hour)
		},
	})
	for i := 0; i < 4; i++ {
		if _, err := proc.Submit(ctx, core.Draft{ItemID: f.itemID, Type: core.Purchase, Quantity: 1, ToLocationID: ptr(f.shelfID)}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	got, err := f.store.ListEntries(ctx, f.itemID, core.LedgerFilter{
		Since: base.Add(2 * time.Hour),
		Until: base.Add(4 * time.Hour),
	}, 0, 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Errorf("window returned %+v, want entries 2 and 3", got)
	}
}

func TestSQLiteStore_RejectsDuplicateReversal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	proc := core.NewTransactionProcessor(f.store, f.catalog, f.catalog, core.ProcessorConfig{})

	sale, err := proc.Submit(ctx, core.Draft{ItemID: f.itemID, Type: core.Sale, Quantity: 3, FromLocationID: ptr(f.shelfID)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	rev, err := proc.Reverse(ctx, sale.ID, "auditor", "")
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if rev.ReversesEntryID == nil || *rev.ReversesEntryID != sale.ID || rev.Notes != "Reversal of entry 1" {
		t.Errorf("unexpected reversal entry: %+v", rev)
	}
	var ve *core.ValidationError
	if _, err := proc.Reverse(ctx, sale.ID, "auditor", ""); !errors.As(err, &ve) {
		t.Errorf("second Reverse error = %v, want ValidationError", err)
	}
}

func TestCatalog_SKUIsUnique(t *testing.T) {
	f := setup(t)
	_, err := f.catalog.CreateItem(context.Background(), core.Item{SKU: "BOLT-M8", Name: "Duplicate"})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "sku" {
		t.Errorf("duplicate SKU: %v, want ValidationError on sku", err)
	}
}
