package app

import "stock-ledger/internal/core"

type ItemResult struct {
	Item core.Item
}

type LocationResult struct {
	Location core.Location
}

// EntryResult is returned by write and lookup operations on the ledger.
// RequestID is set on writes and appears in the service log line.
type EntryResult struct {
	Entry     core.LedgerEntry
	RequestID string
}

type EntryListResult struct {
	Entries []core.LedgerEntry
}

type BalanceResult struct {
	Key      core.BalanceKey
	Quantity int
}

// StockResult is returned by GetStock.
type StockResult struct {
	Summary core.StockSummary
}

type RebuildResult struct {
	Rows int
}

// VerifyResult is returned by VerifyProjection. Clean is true when the
// projection matches the replay exactly.
type VerifyResult struct {
	Drifts []core.Drift
	Clean  bool
}

// AIResult is either a draft ready for review or a clarification request.
type AIResult struct {
	Draft                *core.Draft
	IsClarification      bool
	ClarificationMessage string
	Confidence           float64
	Reasoning            string
}
