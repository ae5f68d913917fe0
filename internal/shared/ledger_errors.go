package shared

import (
	"errors"
	"fmt"
)

// Ledger error sentinels live here (rather than in internal/ledger) so that
// platform/httpx can map them to HTTP responses without importing the ledger
// package, which itself depends on httpx. The ledger package re-exports them.
var (
	// ErrPartNotFound indicates the part does not exist in the caller's boutique.
	ErrPartNotFound = errors.New("ledger: part not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be a positive integer")
	// ErrInvalidMovementType indicates a type outside the enumeration.
	ErrInvalidMovementType = errors.New("ledger: invalid movement type")
	// ErrInsufficientStock is the sentinel matched by errors.Is against
	// InsufficientStockError values.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
)

// InsufficientStockError reports a decrement that would drive stock negative,
// carrying the part name and current stock for the user-facing message.
type InsufficientStockError struct {
	PartID    int64
	PartName  string
	Stock     int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for %q: have %d, need %d", e.PartName, e.Stock, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
