package app

import (
	"context"

	"stock-ledger/internal/core"
)

// Catalog is the item and location registry the service reads and seeds.
type Catalog interface {
	core.ItemLookup
	core.LocationLookup
	CreateItem(ctx context.Context, item core.Item) (int, error)
	CreateLocation(ctx context.Context, loc core.Location) (int, error)
}

// ApplicationService is the single interface all adapters (CLI, REPL) call.
// Implementations contain no display logic.
type ApplicationService interface {
	// CreateItem registers a stocked item in the catalog.
	CreateItem(ctx context.Context, req CreateItemRequest) (*ItemResult, error)
	// CreateLocation registers a location, optionally nested under a parent.
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*LocationResult, error)

	// SubmitDraft records a transaction and applies it to the balances.
	SubmitDraft(ctx context.Context, draft core.Draft) (*EntryResult, error)
	// ValidateDraft runs every check SubmitDraft would without writing.
	ValidateDraft(ctx context.Context, draft core.Draft) error
	// ReverseEntry appends a compensating entry for an earlier one.
	ReverseEntry(ctx context.Context, req ReverseRequest) (*EntryResult, error)

	GetEntry(ctx context.Context, id int) (*EntryResult, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error)

	GetBalance(ctx context.Context, itemID, locationID int, bin string) (*BalanceResult, error)
	// GetStock returns an item's position across every location.
	GetStock(ctx context.Context, itemID int) (*StockResult, error)

	// RebuildProjection replaces every balance with a replay of the ledger.
	RebuildProjection(ctx context.Context) (*RebuildResult, error)
	// VerifyProjection compares the balances with a replay of the ledger.
	VerifyProjection(ctx context.Context) (*VerifyResult, error)

	// InterpretEvent asks the AI agent to draft a transaction from free text.
	// The draft is not submitted.
	InterpretEvent(ctx context.Context, text string) (*AIResult, error)
}
