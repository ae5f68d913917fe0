package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	CountMovements(ctx context.Context, filter MovementFilter) (int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double submission of the same business event.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// SequencerPort allocates document numbers.
type SequencerPort interface {
	Next(ctx context.Context, boutiqueID int64, docType, prefix string, at time.Time) (string, error)
}

// Service exposes direct ledger operations: manual adjustments, ad-hoc
// receipts, transfers, and movement history. Document-driven movements go
// through the orchestrating services instead, which call Engine.Apply inside
// their own transactions.
type Service struct {
	repo        RepositoryPort
	engine      *Engine
	audit       AuditPort
	idempotency IdempotencyPort
	sequencer   SequencerPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *Engine, audit AuditPort, idem IdempotencyPort, seq SequencerPort) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, idempotency: idem, sequencer: seq}
}

// Post applies one movement in its own transaction. When a reference is
// supplied it doubles as the idempotency key guarding double submission.
func (s *Service) Post(ctx context.Context, input MovementInput) (Result, error) {
	if input.BoutiqueID == 0 {
		return Result{}, shared.ErrBoutiqueScope
	}
	if input.PartID == 0 {
		return Result{}, fmt.Errorf("%w: part required", shared.ErrValidation)
	}

	insertedKey := false
	key := ""
	switch {
	case input.DocumentRef != "" && s.idempotency != nil:
		// Deterministic key: the same movement type, boutique and document
		// always map to one record regardless of who submits it.
		key = uuid.NewSHA1(uuid.Nil, fmt.Appendf(nil, "%s:%d:%s", input.Type, input.BoutiqueID, input.DocumentRef)).String()
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Result{}, err
		}
		insertedKey = true
	case input.DocumentRef == "" && s.sequencer != nil:
		// Manual movements without a client reference still get a traceable
		// number, so the history never shows an anonymous stock change.
		ref, err := s.sequencer.Next(ctx, input.BoutiqueID, "movement", "MVT", time.Now().UTC())
		if err != nil {
			return Result{}, err
		}
		input.DocumentRef = ref
	}

	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		result, err = s.engine.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:    input.ActorID,
			BoutiqueID: input.BoutiqueID,
			Action:     fmt.Sprintf("ledger:%s", input.Type),
			Entity:     "stock_movement",
			EntityID:   fmt.Sprintf("part:%d", input.PartID),
			Meta: map[string]any{
				"quantity": input.Quantity,
				"before":   result.QuantityBefore,
				"after":    result.QuantityAfter,
				"reason":   input.Reason,
			},
			At: time.Now().UTC(),
		})
	}
	return result, nil
}

// History lists movements newest first with pagination metadata.
func (s *Service) History(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.BoutiqueID == 0 {
		return nil, shared.Pagination{}, shared.ErrBoutiqueScope
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.Pagination{}, ErrInvalidMovementType
	}
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	total, err := s.repo.CountMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	perPage := filter.Limit
	if perPage <= 0 {
		perPage = 100
	}
	page := filter.Offset/perPage + 1
	return movements, shared.NewPagination(page, perPage, total), nil
}

// Replay folds the part's movement history, in chronological order, over an
// initial stock value.
// The result must always match the part's stored stock; the reconciliation
// report uses it to prove the ledger is the source of truth.
func Replay(initial int64, history []Movement) (int64, error) {
	stock := initial
	for _, m := range history {
		switch m.Type {
		case MovementIncoming, MovementReturn:
			stock += m.Quantity
		case MovementOutgoing, MovementTransfer:
			stock -= m.Quantity
		case MovementAdjustment, MovementInventoryReconcile:
			stock = m.Quantity
		default:
			return 0, ErrInvalidMovementType
		}
	}
	return stock, nil
}

// VerifyReplay compares the stored stock against the replayed ledger.
func VerifyReplay(part Part, history []Movement, initial int64) error {
	replayed, err := Replay(initial, history)
	if err != nil {
		return err
	}
	if replayed != part.Stock {
		return fmt.Errorf("ledger drift on part %d: stored %d, replayed %d", part.ID, part.Stock, replayed)
	}
	return nil
}
