// seed-demo loads a small demo catalog and opening stock into the configured
// store. It refuses to run when the store already has ledger entries.
//
// Usage: go run ./cmd/seed-demo
package main

import (
	"context"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/app"
	"stock-ledger/internal/config"
	"stock-ledger/internal/core"
)

type demoItem struct {
	sku, name           string
	reorderPoint, stock int
	price               string
}

var demoItems = []demoItem{
	{"OF-100", "Oil filter", 10, 40, "3.40"},
	{"BP-220", "Brake pad set", 4, 12, "28.00"},
	{"FU-15A", "Fuse 15A", 50, 200, "0.35"},
	{"CB-10M", "Cable 10m", 5, 6, "4.00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx := context.Background()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer backend.Close()
	svc := app.NewService(backend, cfg)

	existing, err := svc.ListEntries(ctx, app.ListEntriesRequest{Limit: 1})
	if err != nil {
		log.Fatalf("Failed to read ledger: %v", err)
	}
	if len(existing.Entries) > 0 {
		log.Println("Ledger already has entries; not seeding.")
		os.Exit(1)
	}

	log.Println("Creating locations...")
	wh, err := svc.CreateLocation(ctx, app.CreateLocationRequest{Name: "Main warehouse"})
	if err != nil {
		log.Fatalf("Failed to create location: %v", err)
	}
	for _, name := range []string{"Van 1", "Van 2"} {
		if _, err := svc.CreateLocation(ctx, app.CreateLocationRequest{Name: name, ParentID: &wh.Location.ID}); err != nil {
			log.Fatalf("Failed to create location %s: %v", name, err)
		}
	}

	log.Println("Creating items and opening stock...")
	for _, d := range demoItems {
		item, err := svc.CreateItem(ctx, app.CreateItemRequest{
			SKU:             d.sku,
			Name:            d.name,
			ReorderPoint:    d.reorderPoint,
			ReorderQuantity: d.reorderPoint * 2,
			PurchasePrice:   decimal.RequireFromString(d.price),
		})
		if err != nil {
			log.Fatalf("Failed to create item %s: %v", d.sku, err)
		}
		_, err = svc.SubmitDraft(ctx, core.Draft{
			ItemID:       item.Item.ID,
			Type:         core.Count,
			Quantity:     d.stock,
			ToLocationID: &wh.Location.ID,
			UnitPrice:    item.Item.PurchasePrice,
			Reference:    "OPENING",
			Notes:        "Opening stock",
			CreatedBy:    "seed-demo",
		})
		if err != nil {
			log.Fatalf("Failed to record opening stock for %s: %v", d.sku, err)
		}
	}

	log.Printf("Demo data seeded: %d items, 3 locations.", len(demoItems))
}
