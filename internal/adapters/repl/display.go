package repl

import (
	"fmt"
	"strings"

	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
)

func printStock(s core.StockSummary) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 62))
	fmt.Printf("  ITEM %d  %s", s.Item.ID, s.Item.Name)
	if s.Item.SKU != "" {
		fmt.Printf("  [%s]", s.Item.SKU)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("=", 62))
	if len(s.Balances) == 0 {
		fmt.Println("  No stock recorded.")
	} else {
		fmt.Printf("  %-12s %-20s %12s\n", "LOCATION", "BIN", "QTY")
		fmt.Println(strings.Repeat("-", 62))
		for _, b := range s.Balances {
			bin := b.Bin
			if bin == "" {
				bin = "-"
			}
			fmt.Printf("  %-12d %-20s %12d\n", b.LocationID, bin, b.Quantity)
		}
	}
	fmt.Println(strings.Repeat("-", 62))
	fmt.Printf("  On hand: %d   Reorder point: %d   Value: %s\n",
		s.StockOnHand, s.Item.ReorderPoint, s.CurrentValue.StringFixed(2))
	switch {
	case s.BelowMinimum:
		fmt.Println("  BELOW MINIMUM STOCK LEVEL")
	case s.NeedsReordering:
		fmt.Printf("  Needs reordering (suggested quantity %d)\n", s.Item.ReorderQuantity)
	}
	fmt.Println(strings.Repeat("=", 62))
}

func printEntries(entries []core.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Println("No ledger entries found.")
		return
	}
	fmt.Printf("%-6s %-20s %-11s %6s %8s %-14s %-14s %s\n", "ID", "AT", "TYPE", "ITEM", "QTY", "FROM", "TO", "REF")
	fmt.Println(strings.Repeat("-", 96))
	for _, e := range entries {
		fmt.Printf("%-6d %-20s %-11s %6d %8d %-14s %-14s %s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, e.ItemID, e.Quantity,
			side(e.FromLocationID, e.FromBin), side(e.ToLocationID, e.ToBin), e.Reference)
	}
}

func printEntry(e core.LedgerEntry) {
	fmt.Printf("Entry %d recorded: %s of %d for item %d", e.ID, e.Type, e.Quantity, e.ItemID)
	if !e.TotalPrice.IsZero() {
		fmt.Printf(", total %s", e.TotalPrice.StringFixed(2))
	}
	fmt.Println(".")
}

func printDraft(d core.Draft) {
	fmt.Printf("\nTYPE:       %s\n", d.Type)
	fmt.Printf("ITEM:       %d\n", d.ItemID)
	fmt.Printf("QUANTITY:   %d\n", d.Quantity)
	if d.FromLocationID != nil {
		fmt.Printf("FROM:       %s\n", side(d.FromLocationID, d.FromBin))
	}
	if d.ToLocationID != nil {
		fmt.Printf("TO:         %s\n", side(d.ToLocationID, d.ToBin))
	}
	fmt.Printf("UNIT PRICE: %s\n", d.UnitPrice.StringFixed(2))
	if d.Reference != "" {
		fmt.Printf("REFERENCE:  %s\n", d.Reference)
	}
	if d.Notes != "" {
		fmt.Printf("NOTES:      %s\n", d.Notes)
	}
}

func printDrifts(r *app.VerifyResult) {
	if r.Clean {
		fmt.Println("Projection matches the ledger.")
		return
	}
	fmt.Printf("%d balance rows disagree with the ledger:\n", len(r.Drifts))
	for _, d := range r.Drifts {
		fmt.Printf("  %s\n", describeDrift(d))
	}
	fmt.Println("Run /rebuild to replace the projection with a replay.")
}

func describeDrift(d core.Drift) string {
	at := fmt.Sprintf("item %d at location %d%s", d.Key.ItemID, d.Key.LocationID, binLabel(d.Key.Bin))
	switch {
	case d.Missing:
		return fmt.Sprintf("%s: missing, ledger gives %d", at, d.Replayed)
	case d.Orphan:
		return fmt.Sprintf("%s: %d with no ledger history", at, d.Projected)
	default:
		return fmt.Sprintf("%s: projected %d, ledger gives %d", at, d.Projected, d.Replayed)
	}
}

func side(loc *int, bin string) string {
	if loc == nil {
		return "-"
	}
	if bin == "" {
		return fmt.Sprintf("%d", *loc)
	}
	return fmt.Sprintf("%d/%s", *loc, bin)
}

func binLabel(bin string) string {
	if bin == "" {
		return ""
	}
	return fmt.Sprintf(" (bin %s)", bin)
}

func printHelp() {
	fmt.Println()
	fmt.Println("Stock")
	fmt.Println("  /stock <item>                      Position across locations")
	fmt.Println("  /balance <item> <loc> [bin]        Quantity at one location")
	fmt.Println("  /entries [item] [limit]            Recent ledger entries")
	fmt.Println("Record")
	fmt.Println("  /receive <item> <loc> <qty> [price]")
	fmt.Println("  /sell    <item> <loc> <qty> [price]")
	fmt.Println("  /scrap   <item> <loc> <qty>")
	fmt.Println("  /return  <item> <loc> <qty> [price]")
	fmt.Println("  /move    <item> <from> <to> <qty>")
	fmt.Println("  /count   <item> <loc> <qty> [bin]")
	fmt.Println("  /new                               Guided draft for any kind")
	fmt.Println("  /reverse <entry> [notes]           Compensating entry")
	fmt.Println("Catalog")
	fmt.Println("  /item                              Register an item")
	fmt.Println("  /location <name> [--parent <id>]   Register a location")
	fmt.Println("Projection")
	fmt.Println("  /verify                            Compare balances with a ledger replay")
	fmt.Println("  /rebuild                           Replace balances with a ledger replay")
	fmt.Println()
	fmt.Println("  /help, /exit")
	fmt.Println()
	fmt.Println("Anything else is sent to the AI agent, e.g. \"received 40 filters at the main store\".")
}
