// Command verify-ledger replays the ledger and compares it with the balance
// projection. It exits 1 on drift; -repair rebuilds the projection instead.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"stock-ledger/internal/app"
	"stock-ledger/internal/config"
)

func main() {
	repair := flag.Bool("repair", false, "rebuild the projection when drift is found")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer backend.Close()
	log.Printf("[CONNECT] %s store open", cfg.Store)

	svc := app.NewService(backend, cfg)
	result, err := svc.VerifyProjection(ctx)
	if err != nil {
		log.Fatalf("[VERIFY] %v", err)
	}
	if result.Clean {
		log.Println("[VERIFY] projection matches the ledger")
		return
	}

	for _, d := range result.Drifts {
		log.Printf("[DRIFT] item %d location %d bin %q: projected %d, replayed %d",
			d.Key.ItemID, d.Key.LocationID, d.Key.Bin, d.Projected, d.Replayed)
	}
	if !*repair {
		backend.Close()
		log.Printf("[VERIFY] %d drifting rows; rerun with -repair to rebuild", len(result.Drifts))
		os.Exit(1)
	}

	rebuilt, err := svc.RebuildProjection(ctx)
	if err != nil {
		log.Fatalf("[REPAIR] %v", err)
	}
	log.Printf("[REPAIR] projection rebuilt with %d rows", rebuilt.Rows)
}
