package ledger

import (
	"context"
	"time"
)

// TxStore is the capability set the engine needs from the caller's open
// transaction: a row-locked part read, a stock write, and a movement append.
// Orchestrators bind it to their own pgx transaction via NewTxStore so document
// writes and ledger writes commit or roll back together.
type TxStore interface {
	GetPartForUpdate(ctx context.Context, boutiqueID, partID int64) (Part, error)
	UpdatePartStock(ctx context.Context, partID, stock int64) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// Engine is the single authoritative mutation path for part stock. It owns the
// per-type transform rules and the non-negative guard; no other code writes the
// stock column.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs the engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithNow overrides the engine clock for testing.
func (e *Engine) WithNow(fn func() time.Time) {
	if fn != nil {
		e.now = fn
	}
}

// Apply posts one movement inside the caller's transaction. The operation is
// deliberately not idempotent: posting twice produces two ledger entries and
// two stock changes. Callers guard against double submission of the same
// business event.
func (e *Engine) Apply(ctx context.Context, store TxStore, input MovementInput) (Result, error) {
	if !input.Type.Valid() {
		return Result{}, ErrInvalidMovementType
	}
	// Absolute-set types accept zero as a target value (a shelf counted empty);
	// every delta type requires a strictly positive magnitude.
	minQty := int64(1)
	if input.Type == MovementAdjustment || input.Type == MovementInventoryReconcile {
		minQty = 0
	}
	if input.Quantity < minQty {
		return Result{}, ErrInvalidQuantity
	}

	part, err := store.GetPartForUpdate(ctx, input.BoutiqueID, input.PartID)
	if err != nil {
		return Result{}, err
	}

	before := part.Stock
	var after int64
	switch input.Type {
	case MovementIncoming, MovementReturn:
		after = before + input.Quantity
	case MovementOutgoing, MovementTransfer:
		after = before - input.Quantity
		if after < 0 {
			return Result{}, &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.Name,
				Stock:     before,
				Requested: input.Quantity,
			}
		}
	case MovementAdjustment, MovementInventoryReconcile:
		after = input.Quantity
	}

	if err := store.UpdatePartStock(ctx, part.ID, after); err != nil {
		return Result{}, err
	}
	if _, err := store.InsertMovement(ctx, Movement{
		PartID:         part.ID,
		BoutiqueID:     input.BoutiqueID,
		Type:           input.Type,
		Quantity:       input.Quantity,
		QuantityBefore: before,
		QuantityAfter:  after,
		Reason:         input.Reason,
		DocumentRef:    input.DocumentRef,
		ActorID:        input.ActorID,
		CreatedAt:      e.now().UTC(),
	}); err != nil {
		return Result{}, err
	}

	return Result{QuantityBefore: before, QuantityAfter: after}, nil
}
