package repl

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
)

// handleNewDraft walks through every field of a draft. Empty input skips
// optional fields; "cancel" aborts at any prompt.
func handleNewDraft(ctx context.Context, reader *bufio.Reader, svc app.ApplicationService, user string) {
	var kinds []string
	for _, t := range core.AllTransactionTypes {
		kinds = append(kinds, string(t))
	}
	fmt.Printf("Kinds: %s\n", strings.Join(kinds, ", "))

	var d core.Draft
	var ok bool
	if d.Type, ok = askKind(reader); !ok {
		return
	}
	if d.ItemID, ok = askInt(reader, "Item id: ", true); !ok {
		return
	}
	if d.Quantity, ok = askInt(reader, "Quantity: ", true); !ok {
		return
	}
	if d.FromLocationID, d.FromBin, ok = askSide(reader, "From location id (blank for none): "); !ok {
		return
	}
	if d.ToLocationID, d.ToBin, ok = askSide(reader, "To location id (blank for none): "); !ok {
		return
	}

	fmt.Print("Unit price (blank for 0): ")
	raw := readLine(reader)
	if raw == "cancel" {
		fmt.Println("Draft cancelled.")
		return
	}
	if raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			fmt.Printf("Invalid price %q. Draft cancelled.\n", raw)
			return
		}
		d.UnitPrice = price
	}
	fmt.Print("Reference (optional): ")
	if d.Reference = readLine(reader); d.Reference == "cancel" {
		fmt.Println("Draft cancelled.")
		return
	}
	fmt.Print("Notes (optional): ")
	if d.Notes = readLine(reader); d.Notes == "cancel" {
		fmt.Println("Draft cancelled.")
		return
	}
	d.CreatedBy = user

	if err := svc.ValidateDraft(ctx, d); err != nil {
		fmt.Printf("Draft is not valid: %v\n", err)
		return
	}
	printDraft(d)
	if !confirm(reader, "\nRecord this transaction? (y/n): ") {
		fmt.Println("Transaction Cancelled.")
		return
	}
	if err := submit(ctx, svc, d); err != nil {
		fmt.Printf("[REPL] Error: %v\n", err)
	}
}

func handleNewItem(ctx context.Context, reader *bufio.Reader, svc app.ApplicationService) {
	var req app.CreateItemRequest
	fmt.Print("Name: ")
	req.Name = readLine(reader)
	fmt.Print("SKU (optional): ")
	req.SKU = readLine(reader)

	var ok bool
	if req.ReorderPoint, ok = askInt(reader, "Reorder point (blank for 0): ", false); !ok {
		return
	}
	if req.MinStockLevel, ok = askInt(reader, "Minimum stock level (blank for 0): ", false); !ok {
		return
	}
	if req.ReorderQuantity, ok = askInt(reader, "Reorder quantity (blank for 0): ", false); !ok {
		return
	}
	fmt.Print("Purchase price (blank for 0): ")
	if raw := readLine(reader); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			fmt.Printf("Invalid price %q. Item not created.\n", raw)
			return
		}
		req.PurchasePrice = price
	}

	result, err := svc.CreateItem(ctx, req)
	if err != nil {
		fmt.Printf("[REPL] Error creating item: %v\n", err)
		return
	}
	fmt.Printf("Item %d created: %s\n", result.Item.ID, result.Item.Name)
}

func askKind(reader *bufio.Reader) (core.TransactionType, bool) {
	for {
		fmt.Print("Kind: ")
		raw := strings.ToLower(readLine(reader))
		if raw == "cancel" || raw == "" {
			fmt.Println("Draft cancelled.")
			return "", false
		}
		d := core.Draft{Type: core.TransactionType(raw)}
		d.Normalize()
		for _, t := range core.AllTransactionTypes {
			if d.Type == t {
				return t, true
			}
		}
		fmt.Printf("  Unknown kind %q.\n", raw)
	}
}

func askInt(reader *bufio.Reader, prompt string, required bool) (int, bool) {
	for {
		fmt.Print(prompt)
		raw := readLine(reader)
		switch {
		case raw == "cancel":
			fmt.Println("Cancelled.")
			return 0, false
		case raw == "" && !required:
			return 0, true
		}
		n, err := strconv.Atoi(raw)
		if err == nil {
			return n, true
		}
		fmt.Println("  Enter a whole number.")
	}
}

// askSide reads "<location-id> [bin]".
func askSide(reader *bufio.Reader, prompt string) (*int, string, bool) {
	for {
		fmt.Print(prompt)
		raw := readLine(reader)
		if raw == "cancel" {
			fmt.Println("Draft cancelled.")
			return nil, "", false
		}
		if raw == "" {
			return nil, "", true
		}
		parts := strings.Fields(raw)
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			fmt.Println("  Format: <location-id> [bin]")
			continue
		}
		bin := ""
		if len(parts) > 1 {
			bin = strings.Join(parts[1:], " ")
		}
		return &id, bin, true
	}
}

// readLine returns the trimmed line, or "cancel" once input is exhausted.
func readLine(reader *bufio.Reader) string {
	s, err := reader.ReadString('\n')
	s = strings.TrimSpace(s)
	if err != nil && s == "" {
		return "cancel"
	}
	return s
}
