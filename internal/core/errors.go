package core

import "fmt"

// ValidationError reports a malformed or incomplete draft.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown item, location or ledger entry.
type NotFoundError struct {
	Kind string // "item", "location" or "entry"
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ConsistencyError is raised under NegativeStockReject when a decrease
// would take a balance below zero.
type ConsistencyError struct {
	Key  BalanceKey
	Have int
	Want int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d at location %d (bin %q): have %d, need %d",
		e.Key.ItemID, e.Key.LocationID, e.Key.Bin, e.Have, e.Want)
}
