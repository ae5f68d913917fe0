package ledger

import (
	"time"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// MovementType enumerates the supported stock movements.
type MovementType string

const (
	// MovementIncoming represents a purchase receipt or generic stock addition.
	MovementIncoming MovementType = "INCOMING"
	// MovementOutgoing represents a sale fulfillment. The only decrementing type
	// whose guard the original behaviour enforced; see MovementTransfer.
	MovementOutgoing MovementType = "OUTGOING"
	// MovementReturn represents a customer or credit-note return to stock.
	MovementReturn MovementType = "RETURN"
	// MovementAdjustment sets the stock to an absolute value.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementInventoryReconcile sets the stock to a physically counted value.
	MovementInventoryReconcile MovementType = "INVENTORY_RECONCILE"
	// MovementTransfer represents an inter-location transfer out. Carries the
	// same non-negative guard as OUTGOING until an in-flight ledger exists.
	MovementTransfer MovementType = "TRANSFER"
)

// Valid reports whether the type belongs to the closed enumeration.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIncoming, MovementOutgoing, MovementReturn,
		MovementAdjustment, MovementInventoryReconcile, MovementTransfer:
		return true
	}
	return false
}

// Part is the ledger's view of a stock-bearing catalog entry.
type Part struct {
	ID         int64
	BoutiqueID int64
	Reference  string
	Name       string
	Stock      int64
	StockMin   int64
}

// Movement is one immutable ledger entry. Rows are append-only; before/after
// quantities are captured at posting time and never recomputed.
type Movement struct {
	ID             int64        `json:"id"`
	PartID         int64        `json:"part_id"`
	BoutiqueID     int64        `json:"boutique_id"`
	Type           MovementType `json:"type"`
	Quantity       int64        `json:"quantity"`
	QuantityBefore int64        `json:"quantity_before"`
	QuantityAfter  int64        `json:"quantity_after"`
	Reason         string       `json:"reason"`
	DocumentRef    string       `json:"document_ref,omitempty"`
	ActorID        int64        `json:"actor_id"`
	CreatedAt      time.Time    `json:"created_at"`
}

// MovementInput describes a movement to post. Quantity is always a positive
// magnitude; direction comes from the type.
type MovementInput struct {
	PartID      int64
	BoutiqueID  int64
	Type        MovementType
	Quantity    int64
	Reason      string
	DocumentRef string
	ActorID     int64
}

// Result carries the before/after pair returned to orchestrators.
type Result struct {
	QuantityBefore int64
	QuantityAfter  int64
}

// MovementFilter narrows movement history listings.
type MovementFilter struct {
	BoutiqueID int64
	PartID     int64
	Type       MovementType
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// The error sentinels and InsufficientStockError are defined in
// internal/shared so platform/httpx can map them without importing this
// package (which would create an import cycle); they are re-exported here
// to keep the ledger API surface unchanged.
var (
	// ErrPartNotFound indicates the part does not exist in the caller's boutique.
	ErrPartNotFound = shared.ErrPartNotFound
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = shared.ErrInvalidQuantity
	// ErrInvalidMovementType indicates a type outside the enumeration.
	ErrInvalidMovementType = shared.ErrInvalidMovementType
	// ErrInsufficientStock is the sentinel matched by errors.Is against
	// InsufficientStockError values.
	ErrInsufficientStock = shared.ErrInsufficientStock
)

// InsufficientStockError reports a decrement that would drive stock negative,
// carrying the part name and current stock for the user-facing message.
type InsufficientStockError = shared.InsufficientStockError
