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

// Run starts the interactive loop. Slash commands run deterministically;
// anything else is sent to the AI agent to draft a transaction.
func Run(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, user string) {
	fmt.Println("Stock Ledger")
	fmt.Println("Describe a stock movement to draft a transaction, or use /help for commands.")
	fmt.Println(strings.Repeat("-", 70))

	errExit := fmt.Errorf("exit")

	dispatchSlash := func(input string) error {
		tokens := strings.Fields(strings.TrimPrefix(input, "/"))
		if len(tokens) == 0 {
			return nil
		}
		cmd := strings.ToLower(tokens[0])
		args := tokens[1:]

		switch cmd {
		case "stock", "s":
			if len(args) < 1 {
				fmt.Println("Usage: /stock <item-id>")
				return nil
			}
			itemID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			result, err := svc.GetStock(ctx, itemID)
			if err != nil {
				return err
			}
			printStock(result.Summary)

		case "bal", "balance":
			if len(args) < 2 {
				fmt.Println("Usage: /balance <item-id> <location-id> [bin]")
				return nil
			}
			ids, err := atoiAll(args[:2])
			if err != nil {
				return err
			}
			bin := ""
			if len(args) > 2 {
				bin = args[2]
			}
			result, err := svc.GetBalance(ctx, ids[0], ids[1], bin)
			if err != nil {
				return err
			}
			fmt.Printf("Item %d at location %d%s: %d\n", ids[0], ids[1], binLabel(result.Key.Bin), result.Quantity)

		case "entries", "log":
			req := app.ListEntriesRequest{Limit: 20}
			if len(args) > 0 {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid item id %q", args[0])
				}
				req.ItemID = id
			}
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid limit %q", args[1])
				}
				req.Limit = n
			}
			result, err := svc.ListEntries(ctx, req)
			if err != nil {
				return err
			}
			printEntries(result.Entries)

		case "receive", "sell", "scrap", "return":
			// Quick forms: /receive <item> <loc> <qty> [unit-price]
			if len(args) < 3 {
				fmt.Printf("Usage: /%s <item-id> <location-id> <qty> [unit-price]\n", cmd)
				return nil
			}
			draft, err := quickDraft(cmd, args)
			if err != nil {
				return err
			}
			draft.CreatedBy = user
			return submit(ctx, svc, draft)

		case "move":
			if len(args) < 4 {
				fmt.Println("Usage: /move <item-id> <from-location> <to-location> <qty>")
				return nil
			}
			ids, err := atoiAll(args[:4])
			if err != nil {
				return err
			}
			return submit(ctx, svc, core.Draft{
				ItemID: ids[0], Type: core.Transfer, Quantity: ids[3],
				FromLocationID: &ids[1], ToLocationID: &ids[2], CreatedBy: user,
			})

		case "count":
			if len(args) < 3 {
				fmt.Println("Usage: /count <item-id> <location-id> <qty> [bin]")
				return nil
			}
			ids, err := atoiAll(args[:3])
			if err != nil {
				return err
			}
			d := core.Draft{ItemID: ids[0], Type: core.Count, Quantity: ids[2], ToLocationID: &ids[1], CreatedBy: user}
			if len(args) > 3 {
				d.ToBin = args[3]
			}
			return submit(ctx, svc, d)

		case "new", "draft":
			handleNewDraft(ctx, reader, svc, user)

		case "reverse":
			if len(args) < 1 {
				fmt.Println("Usage: /reverse <entry-id> [notes...]")
				return nil
			}
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			result, err := svc.ReverseEntry(ctx, app.ReverseRequest{EntryID: id, CreatedBy: user, Notes: strings.Join(args[1:], " ")})
			if err != nil {
				return err
			}
			fmt.Printf("Entry %d recorded, reversing entry %d.\n", result.Entry.ID, id)

		case "item":
			handleNewItem(ctx, reader, svc)

		case "location", "loc":
			if len(args) < 1 {
				fmt.Println("Usage: /location <name...> [--parent <id>]")
				return nil
			}
			req, err := parseLocationArgs(args)
			if err != nil {
				return err
			}
			result, err := svc.CreateLocation(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Location %d created: %s\n", result.Location.ID, result.Location.Name)

		case "verify":
			result, err := svc.VerifyProjection(ctx)
			if err != nil {
				return err
			}
			printDrifts(result)

		case "rebuild":
			result, err := svc.RebuildProjection(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Projection rebuilt: %d balance rows.\n", result.Rows)

		case "help", "h":
			printHelp()

		case "exit", "quit", "e", "q":
			return errExit

		default:
			fmt.Printf("Unknown command: /%s  (type /help for all commands)\n", cmd)
		}
		return nil
	}

	for {
		fmt.Print("\n> ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return
			}
			continue
		}

		if strings.HasPrefix(input, "/") {
			if err := dispatchSlash(input); err != nil {
				if err == errExit {
					fmt.Println("Goodbye!")
					return
				}
				fmt.Printf("Error: %v\n", err)
			}
			continue
		}

		fmt.Println("[AI] Processing...")
		accumulatedInput := input

		rounds := 0
		for {
			rounds++
			if rounds > 3 {
				fmt.Println("Could not produce a draft. Try a slash command instead, see /help.")
				break
			}

			result, err := svc.InterpretEvent(ctx, accumulatedInput)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				break
			}

			if result.IsClarification {
				fmt.Printf("\n[AI]: %s\n", result.ClarificationMessage)
				fmt.Print("> ")
				followUp, _ := reader.ReadString('\n')
				followUp = strings.TrimSpace(followUp)

				if strings.HasPrefix(followUp, "/") {
					fmt.Println("(AI session cancelled)")
					if dispErr := dispatchSlash(followUp); dispErr != nil {
						if dispErr == errExit {
							fmt.Println("Goodbye!")
							return
						}
						fmt.Printf("Error: %v\n", dispErr)
					}
					break
				}
				if followUp == "" || strings.ToLower(followUp) == "cancel" {
					fmt.Println("Cancelled.")
					break
				}
				accumulatedInput = fmt.Sprintf("Original event: %s\nClarification requested: %s\nUser response: %s",
					accumulatedInput, result.ClarificationMessage, followUp)
				fmt.Println("[AI] Thinking...")
				continue
			}

			draft := *result.Draft
			draft.CreatedBy = user
			printDraft(draft)
			fmt.Printf("REASONING:  %s\n", result.Reasoning)
			fmt.Printf("CONFIDENCE: %.2f\n", result.Confidence)
			if result.Confidence < 0.6 {
				fmt.Println("\nWARNING: Low confidence draft.")
			}

			if err := svc.ValidateDraft(ctx, draft); err != nil {
				fmt.Printf("Draft is not valid: %v\n", err)
				break
			}
			if confirm(reader, "\nRecord this transaction? (y/n): ") {
				if err := submit(ctx, svc, draft); err != nil {
					fmt.Printf("Transaction FAILED: %v\n", err)
				}
			} else {
				fmt.Println("Transaction Cancelled.")
			}
			break
		}
	}
}

func submit(ctx context.Context, svc app.ApplicationService, draft core.Draft) error {
	result, err := svc.SubmitDraft(ctx, draft)
	if err != nil {
		return err
	}
	printEntry(result.Entry)
	return nil
}

var quickKinds = map[string]core.TransactionType{
	"receive": core.Purchase,
	"sell":    core.Sale,
	"scrap":   core.WriteOff,
	"return":  core.Return,
}

// quickDraft builds a single-location draft from "<item> <loc> <qty> [price]".
func quickDraft(cmd string, args []string) (core.Draft, error) {
	kind, ok := quickKinds[cmd]
	if !ok {
		return core.Draft{}, fmt.Errorf("unknown quick command %q", cmd)
	}
	ids, err := atoiAll(args[:3])
	if err != nil {
		return core.Draft{}, err
	}
	d := core.Draft{ItemID: ids[0], Type: kind, Quantity: ids[2]}
	switch kind {
	case core.Purchase, core.Return:
		d.ToLocationID = &ids[1]
	default:
		d.FromLocationID = &ids[1]
	}
	if len(args) > 3 {
		price, err := decimal.NewFromString(args[3])
		if err != nil {
			return core.Draft{}, fmt.Errorf("invalid unit price %q", args[3])
		}
		d.UnitPrice = price
	}
	return d, nil
}

func parseLocationArgs(args []string) (app.CreateLocationRequest, error) {
	var req app.CreateLocationRequest
	var name []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--parent" {
			if i+1 >= len(args) {
				return req, fmt.Errorf("--parent needs a location id")
			}
			id, err := strconv.Atoi(args[i+1])
			if err != nil {
				return req, fmt.Errorf("invalid parent id %q", args[i+1])
			}
			req.ParentID = &id
			i++
			continue
		}
		name = append(name, args[i])
	}
	req.Name = strings.Join(name, " ")
	return req, nil
}

func atoiAll(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", a)
		}
		out[i] = n
	}
	return out, nil
}

func confirm(reader *bufio.Reader, prompt string) bool {
	fmt.Print(prompt)
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	return choice == "y" || choice == "yes"
}
