package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-ledger/internal/core"
	"stock-ledger/internal/store/memory"
)

func seedLedger(t *testing.T) (core.LedgerReader, time.Time) {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewCatalog()
	catalog.PutItem(core.Item{ID: 1, Name: "Fuse"})
	catalog.PutItem(core.Item{ID: 2, Name: "Relay"})
	catalog.PutLocation(core.Location{ID: locA})
	catalog.PutLocation(core.Location{ID: locB})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	p := core.NewTransactionProcessor(store, catalog, catalog, core.ProcessorConfig{
		Now: func() time.Time { tick = tick.Add(time.Hour); return tick },
	})

	drafts := []core.Draft{
		{ItemID: 1, Type: core.Purchase, Quantity: 10, ToLocationID: ptr(locA)},                           // 01:00
		{ItemID: 2, Type: core.Purchase, Quantity: 10, ToLocationID: ptr(locA)},                           // 02:00
		{ItemID: 1, Type: core.Transfer, Quantity: 3, FromLocationID: ptr(locA), ToLocationID: ptr(locB)}, // 03:00
		{ItemID: 1, Type: core.Sale, Quantity: 1, FromLocationID: ptr(locB), WorkOrderID: ptr(7)},         // 04:00
		{ItemID: 1, Type: core.Sale, Quantity: 2, FromLocationID: ptr(locA)},                              // 05:00
		{ItemID: 1, Type: core.WriteOff, Quantity: 1, FromLocationID: ptr(locA), WorkOrderID: ptr(7)},     // 06:00
	}
	for _, d := range drafts {
		if _, err := p.Submit(context.Background(), d); err != nil {
			t.Fatalf("seed %s failed: %v", d.Type, err)
		}
	}
	return core.NewLedgerReader(store, 2), start
}

func ids(t *testing.T, r core.LedgerReader, itemID int, f core.LedgerFilter) []int {
	t.Helper()
	var out []int
	for e, err := range r.ListLedger(context.Background(), itemID, f) {
		if err != nil {
			t.Fatalf("ListLedger failed: %v", err)
		}
		out = append(out, e.ID)
	}
	return out
}

func equalIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListLedger_Filters(t *testing.T) {
	r, start := seedLedger(t)

	tests := []struct {
		name   string
		itemID int
		filter core.LedgerFilter
		want   []int
	}{
		{"all items", 0, core.LedgerFilter{}, []int{1, 2, 3, 4, 5, 6}},
		{"one item across pages", 1, core.LedgerFilter{}, []int{1, 3, 4, 5, 6}},
		{"types", 1, core.LedgerFilter{Types: []core.TransactionType{core.Sale, core.WriteOff}}, []int{4, 5, 6}},
		{"location on either side", 1, core.LedgerFilter{LocationID: ptr(locB)}, []int{3, 4}},
		{"work order", 0, core.LedgerFilter{WorkOrderID: ptr(7)}, []int{4, 6}},
		{"time window", 0, core.LedgerFilter{Since: start.Add(2 * time.Hour), Until: start.Add(5 * time.Hour)}, []int{2, 3, 4}},
		{"limit", 1, core.LedgerFilter{Limit: 3}, []int{1, 3, 4}},
		{"limit with filter", 0, core.LedgerFilter{LocationID: ptr(locA), Limit: 4}, []int{1, 2, 3, 5}},
		{"no match", 2, core.LedgerFilter{Types: []core.TransactionType{core.Count}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(t, r, tt.itemID, tt.filter); !equalIDs(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListLedger_RestartableAndStoppable(t *testing.T) {
	r, _ := seedLedger(t)
	seq := r.ListLedger(context.Background(), 1, core.LedgerFilter{})

	first := 0
	for e, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		first = e.ID
		break
	}
	if first != 1 {
		t.Errorf("first entry = %d, want 1", first)
	}

	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 5 {
		t.Errorf("second pass yielded %d entries, want 5", n)
	}
}

func TestListLedger_Cancelled(t *testing.T) {
	r, _ := seedLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range r.ListLedger(ctx, 0, core.LedgerFilter{}) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		return
	}
	t.Error("cancelled listing yielded nothing")
}

func TestGetEntry_NotFound(t *testing.T) {
	r, _ := seedLedger(t)
	var nf *core.NotFoundError
	if _, err := r.GetEntry(context.Background(), 99); !errors.As(err, &nf) || nf.Kind != "entry" {
		t.Errorf("GetEntry(99) = %v", err)
	}
}
