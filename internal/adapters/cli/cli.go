package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/ai"
	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
)

// Usage lists the one-shot commands.
const Usage = `Usage: ledgerctl <command> [arguments]

  propose "<event>"                 draft a transaction from free text (prints JSON)
  validate < draft.json             check a draft without recording it
  submit   < draft.json             record a draft
  reverse  [-by user] [-notes text] <entry-id>
  entry    <entry-id>
  entries  [-item id] [-type kind,...] [-location id] [-work-order id]
           [-since RFC3339] [-until RFC3339] [-limit n]
  balance  <item-id> <location-id> [bin]
  stock    <item-id>
  item-add -name text [-sku code] [-reorder-point n] [-min-stock n] [-reorder-qty n] [-price d]
  location-add -name text [-parent id]
  verify                            compare balances with a ledger replay
  rebuild                           replace balances with a ledger replay
  schema                            print the draft JSON schema
  repl                              interactive mode (default)`

// ErrDrift is returned by verify when the projection disagrees with the ledger.
var ErrDrift = fmt.Errorf("projection drift detected")

// Run executes a one-shot command. args is os.Args[1:]; the first element is
// the subcommand name. user is recorded as created_by on writes.
func Run(ctx context.Context, svc app.ApplicationService, args []string, user string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given\n%s", Usage)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "propose", "prop", "p":
		if len(rest) < 1 {
			return fmt.Errorf("usage: ledgerctl propose \"<event description>\"")
		}
		result, err := svc.InterpretEvent(ctx, strings.Join(rest, " "))
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		if result.IsClarification {
			return fmt.Errorf("AI needs clarification: %s", result.ClarificationMessage)
		}
		return writeJSON(stdout, result.Draft)

	case "validate", "val", "v":
		draft, err := readDraft(stdin, user)
		if err != nil {
			return err
		}
		if err := svc.ValidateDraft(ctx, draft); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Draft is valid.")
		return nil

	case "submit", "commit", "c":
		draft, err := readDraft(stdin, user)
		if err != nil {
			return err
		}
		result, err := svc.SubmitDraft(ctx, draft)
		if err != nil {
			return err
		}
		return writeJSON(stdout, result.Entry)

	case "reverse":
		fs := newFlagSet("reverse")
		by := fs.String("by", user, "recorded as created_by")
		notes := fs.String("notes", "", "notes for the compensating entry")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := intArg(fs.Args(), 0, "entry id")
		if err != nil {
			return err
		}
		result, err := svc.ReverseEntry(ctx, app.ReverseRequest{EntryID: id, CreatedBy: *by, Notes: *notes})
		if err != nil {
			return err
		}
		return writeJSON(stdout, result.Entry)

	case "entry":
		id, err := intArg(rest, 0, "entry id")
		if err != nil {
			return err
		}
		result, err := svc.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(stdout, result.Entry)

	case "entries", "log":
		req, err := parseEntriesFlags(rest)
		if err != nil {
			return err
		}
		result, err := svc.ListEntries(ctx, req)
		if err != nil {
			return err
		}
		if result.Entries == nil {
			result.Entries = []core.LedgerEntry{}
		}
		return writeJSON(stdout, result.Entries)

	case "balance", "bal":
		itemID, err := intArg(rest, 0, "item id")
		if err != nil {
			return err
		}
		locationID, err := intArg(rest, 1, "location id")
		if err != nil {
			return err
		}
		bin := ""
		if len(rest) > 2 {
			bin = rest[2]
		}
		result, err := svc.GetBalance(ctx, itemID, locationID, bin)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, result.Quantity)
		return nil

	case "stock":
		itemID, err := intArg(rest, 0, "item id")
		if err != nil {
			return err
		}
		result, err := svc.GetStock(ctx, itemID)
		if err != nil {
			return err
		}
		printStock(stdout, result.Summary)
		return nil

	case "item-add":
		fs := newFlagSet("item-add")
		req := app.CreateItemRequest{}
		fs.StringVar(&req.Name, "name", "", "item name")
		fs.StringVar(&req.SKU, "sku", "", "unique stock keeping unit")
		fs.IntVar(&req.ReorderPoint, "reorder-point", 0, "alert at or below this stock on hand")
		fs.IntVar(&req.MinStockLevel, "min-stock", 0, "minimum stock level")
		fs.IntVar(&req.ReorderQuantity, "reorder-qty", 0, "suggested reorder quantity")
		price := fs.String("price", "0", "purchase price")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("invalid -price %q", *price)
		}
		req.PurchasePrice = p
		result, err := svc.CreateItem(ctx, req)
		if err != nil {
			return err
		}
		return writeJSON(stdout, result.Item)

	case "location-add":
		fs := newFlagSet("location-add")
		name := fs.String("name", "", "location name")
		parent := fs.Int("parent", 0, "parent location id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		req := app.CreateLocationRequest{Name: *name}
		if *parent != 0 {
			req.ParentID = parent
		}
		result, err := svc.CreateLocation(ctx, req)
		if err != nil {
			return err
		}
		return writeJSON(stdout, result.Location)

	case "verify":
		result, err := svc.VerifyProjection(ctx)
		if err != nil {
			return err
		}
		if result.Clean {
			fmt.Fprintln(stdout, "Projection matches the ledger.")
			return nil
		}
		if err := writeJSON(stdout, result.Drifts); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d rows", ErrDrift, len(result.Drifts))

	case "rebuild":
		result, err := svc.RebuildProjection(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Projection rebuilt: %d balance rows.\n", result.Rows)
		return nil

	case "schema":
		return writeJSON(stdout, ai.GenerateDraftSchema())

	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, Usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func readDraft(r io.Reader, user string) (core.Draft, error) {
	var draft core.Draft
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&draft); err != nil {
		return core.Draft{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if draft.CreatedBy == "" {
		draft.CreatedBy = user
	}
	return draft, nil
}

func parseEntriesFlags(args []string) (app.ListEntriesRequest, error) {
	var req app.ListEntriesRequest
	fs := newFlagSet("entries")
	fs.IntVar(&req.ItemID, "item", 0, "item id (0 for all)")
	types := fs.String("type", "", "comma-separated kinds")
	location := fs.Int("location", 0, "location id on either side")
	workOrder := fs.Int("work-order", 0, "work order id")
	since := fs.String("since", "", "inclusive lower bound, RFC3339")
	until := fs.String("until", "", "exclusive upper bound, RFC3339")
	fs.IntVar(&req.Limit, "limit", 50, "maximum entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return req, err
	}

	if *types != "" {
		for _, t := range strings.Split(*types, ",") {
			d := core.Draft{Type: core.TransactionType(t)}
			d.Normalize()
			req.Types = append(req.Types, d.Type)
		}
	}
	if *location != 0 {
		req.LocationID = location
	}
	if *workOrder != 0 {
		req.WorkOrderID = workOrder
	}
	var err error
	if req.Since, err = parseTime("since", *since); err != nil {
		return req, err
	}
	if req.Until, err = parseTime("until", *until); err != nil {
		return req, err
	}
	return req, nil
}

func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s %q: want RFC3339", name, v)
	}
	return t.UTC(), nil
}

func intArg(args []string, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing %s\n%s", name, Usage)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[i])
	}
	return n, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStock(w io.Writer, s core.StockSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 62))
	fmt.Fprintf(w, "  ITEM %d  %s\n", s.Item.ID, s.Item.Name)
	fmt.Fprintln(w, strings.Repeat("=", 62))
	fmt.Fprintf(w, "  %-12s %-20s %12s\n", "LOCATION", "BIN", "QTY")
	fmt.Fprintln(w, strings.Repeat("-", 62))
	for _, b := range s.Balances {
		bin := b.Bin
		if bin == "" {
			bin = "-"
		}
		fmt.Fprintf(w, "  %-12d %-20s %12d\n", b.LocationID, bin, b.Quantity)
	}
	fmt.Fprintln(w, strings.Repeat("-", 62))
	fmt.Fprintf(w, "  %-33s %12d\n", "ON HAND", s.StockOnHand)
	fmt.Fprintf(w, "  %-33s %12s\n", "VALUE", s.CurrentValue.StringFixed(2))
	fmt.Fprintf(w, "  %-33s %12t\n", "NEEDS REORDERING", s.NeedsReordering)
	fmt.Fprintln(w, strings.Repeat("=", 62))
}
