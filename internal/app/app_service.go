package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"stock-ledger/internal/ai"
	"stock-ledger/internal/core"
)

type appService struct {
	processor  core.TransactionProcessor
	projection core.BalanceProjection
	ledger     core.LedgerReader
	catalog    Catalog
	agent      ai.DraftInterpreter
}

// NewAppService constructs an appService that satisfies ApplicationService.
// agent may be nil, in which case InterpretEvent returns an error.
func NewAppService(
	processor core.TransactionProcessor,
	projection core.BalanceProjection,
	ledger core.LedgerReader,
	catalog Catalog,
	agent ai.DraftInterpreter,
) ApplicationService {
	return &appService{
		processor:  processor,
		projection: projection,
		ledger:     ledger,
		catalog:    catalog,
		agent:      agent,
	}
}

func (s *appService) CreateItem(ctx context.Context, req CreateItemRequest) (*ItemResult, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if req.PurchasePrice.IsNegative() {
		return nil, &core.ValidationError{Field: "purchase_price", Message: "cannot be negative"}
	}

	item := core.Item{
		SKU:             req.SKU,
		Name:            req.Name,
		ReorderPoint:    req.ReorderPoint,
		MinStockLevel:   req.MinStockLevel,
		ReorderQuantity: req.ReorderQuantity,
		PurchasePrice:   req.PurchasePrice,
	}

	id, err := s.catalog.CreateItem(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	return &ItemResult{Item: item}, nil
}

func (s *appService) CreateLocation(ctx context.Context, req CreateLocationRequest) (*LocationResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	loc := core.Location{Name: req.Name, ParentID: req.ParentID}
	id, err := s.catalog.CreateLocation(ctx, loc)
	if err != nil {
		return nil, err
	}
	loc.ID = id
	return &LocationResult{Location: loc}, nil
}

func (s *appService) SubmitDraft(ctx context.Context, draft core.Draft) (*EntryResult, error) {
	requestID := uuid.NewString()
	entry, err := s.processor.Submit(ctx, draft)
	if err != nil {
		log.Printf("[LEDGER] %s rejected %s for item %d: %v", requestID, draft.Type, draft.ItemID, err)
		return nil, err
	}
	log.Printf("[LEDGER] %s recorded entry %d: %s of %d for item %d", requestID, entry.ID, entry.Type, entry.Quantity, entry.ItemID)
	return &EntryResult{Entry: entry, RequestID: requestID}, nil
}

func (s *appService) ValidateDraft(ctx context.Context, draft core.Draft) error {
	return s.processor.Validate(ctx, draft)
}

func (s *appService) ReverseEntry(ctx context.Context, req ReverseRequest) (*EntryResult, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	entry, err := s.processor.Reverse(ctx, req.EntryID, req.CreatedBy, req.Notes)
	if err != nil {
		log.Printf("[LEDGER] %s failed to reverse entry %d: %v", requestID, req.EntryID, err)
		return nil, err
	}
	log.Printf("[LEDGER] %s recorded entry %d reversing entry %d", requestID, entry.ID, req.EntryID)
	return &EntryResult{Entry: entry, RequestID: requestID}, nil
}

func (s *appService) GetEntry(ctx context.Context, id int) (*EntryResult, error) {
	entry, err := s.ledger.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EntryResult{Entry: entry}, nil
}

func (s *appService) ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	filter := core.LedgerFilter{
		Types:       req.Types,
		LocationID:  req.LocationID,
		WorkOrderID: req.WorkOrderID,
		Since:       req.Since,
		Until:       req.Until,
		Limit:       req.Limit,
	}
	result := &EntryListResult{}
	for e, err := range s.ledger.ListLedger(ctx, req.ItemID, filter) {
		if err != nil {
			return nil, fmt.Errorf("failed to list ledger: %w", err)
		}
		result.Entries = append(result.Entries, e)
	}
	return result, nil
}

func (s *appService) GetBalance(ctx context.Context, itemID, locationID int, bin string) (*BalanceResult, error) {
	if _, err := s.catalog.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	ok, err := s.catalog.LocationExists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &core.NotFoundError{Kind: "location", ID: locationID}
	}

	bin = strings.TrimSpace(bin)
	qty, err := s.projection.GetBalance(ctx, itemID, locationID, bin)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		Key:      core.BalanceKey{ItemID: itemID, LocationID: locationID, Bin: bin},
		Quantity: qty,
	}, nil
}

func (s *appService) GetStock(ctx context.Context, itemID int) (*StockResult, error) {
	summary, err := s.projection.Summary(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &StockResult{Summary: summary}, nil
}

func (s *appService) RebuildProjection(ctx context.Context) (*RebuildResult, error) {
	n, err := s.projection.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[LEDGER] projection rebuilt: %d balance rows", n)
	return &RebuildResult{Rows: n}, nil
}

func (s *appService) VerifyProjection(ctx context.Context) (*VerifyResult, error) {
	drifts, err := s.projection.Verify(ctx)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Drifts: drifts, Clean: len(drifts) == 0}, nil
}

func (s *appService) InterpretEvent(ctx context.Context, text string) (*AIResult, error) {
	if s.agent == nil {
		return nil, fmt.Errorf("AI agent is not configured; set OPENAI_API_KEY")
	}
	in, err := s.agent.InterpretEvent(ctx, text, s.lookupTools())
	if err != nil {
		return nil, err
	}
	if in.IsClarificationRequest {
		return &AIResult{IsClarification: true, ClarificationMessage: in.ClarificationMessage}, nil
	}

	draft := in.Draft
	return &AIResult{Draft: &draft, Confidence: in.Confidence, Reasoning: in.Reasoning}, nil
}

// lookupTools exposes read-only catalog and stock lookups to the agent.
func (s *appService) lookupTools() *ai.ToolRegistry {
	reg := ai.NewToolRegistry()
	reg.Register(ai.ToolDefinition{
		Name:        "get_item",
		Description: "Look up a stocked item by id: name, SKU, reorder point and purchase price.",
		InputSchema: ai.IDSchema("item_id", "Catalog id of the item"),
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			id, err := ai.IntParam(params, "item_id")
			if err != nil {
				return "", err
			}
			item, err := s.catalog.GetItem(ctx, id)
			if err != nil {
				return "", err
			}
			return toJSON(item)
		},
	})
	reg.Register(ai.ToolDefinition{
		Name:        "get_stock",
		Description: "Current stock of an item per location and bin, with total on hand.",
		InputSchema: ai.IDSchema("item_id", "Catalog id of the item"),
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			id, err := ai.IntParam(params, "item_id")
			if err != nil {
				return "", err
			}
			summary, err := s.projection.Summary(ctx, id)
			if err != nil {
				return "", err
			}
			return toJSON(map[string]any{
				"item_id":       id,
				"stock_on_hand": summary.StockOnHand,
				"balances":      summary.Balances,
			})
		},
	})
	reg.Register(ai.ToolDefinition{
		Name:        "location_exists",
		Description: "Check whether a location id is registered.",
		InputSchema: ai.IDSchema("location_id", "Location id"),
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			id, err := ai.IntParam(params, "location_id")
			if err != nil {
				return "", err
			}
			ok, err := s.catalog.LocationExists(ctx, id)
			if err != nil {
				return "", err
			}
			return toJSON(map[string]any{"location_id": id, "exists": ok})
		},
	})
	return reg
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(b), nil
}
