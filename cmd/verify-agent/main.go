// Command verify-agent sends a few sample stock events to the draft
// interpreter against an in-memory catalog and prints what comes back.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/app"
	"stock-ledger/internal/config"
)

var events = []string{
	"Received 24 oil filters at the main warehouse, delivery note DN-2231, 3.40 each.",
	"Tech took 2 oil filters from the warehouse to van 1.",
	"Moved some stuff.",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.OpenAIKey == "" {
		log.Fatal("OPENAI_API_KEY not set")
	}
	cfg.Store = config.StoreMemory
	cfg.RedisAddr = ""

	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer backend.Close()
	svc := app.NewService(backend, cfg)

	item, err := svc.CreateItem(ctx, app.CreateItemRequest{SKU: "OF-100", Name: "Oil filter", ReorderPoint: 10, PurchasePrice: decimal.RequireFromString("3.40")})
	if err != nil {
		log.Fatalf("Failed to seed item: %v", err)
	}
	wh, err := svc.CreateLocation(ctx, app.CreateLocationRequest{Name: "Main warehouse"})
	if err != nil {
		log.Fatalf("Failed to seed location: %v", err)
	}
	if _, err := svc.CreateLocation(ctx, app.CreateLocationRequest{Name: "Van 1", ParentID: &wh.Location.ID}); err != nil {
		log.Fatalf("Failed to seed location: %v", err)
	}
	fmt.Printf("Seeded item %d (%s), locations 1 (Main warehouse) and 2 (Van 1)\n", item.Item.ID, item.Item.SKU)

	for _, event := range events {
		fmt.Printf("\nINTERPRETING EVENT: %s\n", event)
		result, err := svc.InterpretEvent(ctx, event)
		if err != nil {
			log.Printf("Error: %v", err)
			continue
		}
		if result.IsClarification {
			fmt.Printf("CLARIFICATION: %s\n", result.ClarificationMessage)
			continue
		}

		d := result.Draft
		fmt.Printf("Confidence: %.2f\n", result.Confidence)
		fmt.Printf("Reasoning: %s\n", result.Reasoning)
		fmt.Printf("Draft: %s of %d x item %d, unit price %s, reference %q\n", d.Type, d.Quantity, d.ItemID, d.UnitPrice, d.Reference)
		if err := svc.ValidateDraft(ctx, *d); err != nil {
			fmt.Printf("Validation: %v\n", err)
		} else {
			fmt.Println("Validation: ok")
		}
	}
}
