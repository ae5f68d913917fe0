package creditnotes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, boutiqueID, id int64) (CreditNote, []Line, error)
	List(ctx context.Context, filters ListFilters) ([]CreditNote, int, error)
}

// AuditPort records document events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards document submissions against double delivery.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the credit note lifecycle.
type Service struct {
	repo        RepositoryPort
	engine      *ledger.Engine
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, engine *ledger.Engine, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, idempotency: idem}
}

// LineInput is one requested credit line.
type LineInput struct {
	PartID      int64
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Returnable  bool
}

// CreateInput is the credit note creation request. Reference is the client's
// own submission identifier; resubmitting it is rejected rather than issuing
// a second credit for the same return.
type CreateInput struct {
	InvoiceNumber string
	ClientName    string
	Reason        string
	Reference     string
	Lines         []LineInput
}

func validateCreate(input CreateInput) error {
	if input.InvoiceNumber == "" {
		return fmt.Errorf("%w: invoice number required", shared.ErrValidation)
	}
	if input.Reason == "" {
		return fmt.Errorf("%w: reason required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if line.PartID == 0 {
			return fmt.Errorf("%w: line %d missing part", shared.ErrValidation, i+1)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price cannot be negative", shared.ErrValidation, i+1)
		}
	}
	return nil
}

// Create records a pending credit note. No stock effect until validation.
func (s *Service) Create(ctx context.Context, input CreateInput) (CreditNote, []Line, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return CreditNote{}, nil, shared.ErrBoutiqueScope
	}
	if err := validateCreate(input); err != nil {
		return CreditNote{}, nil, err
	}

	insertedKey := false
	key := ""
	if input.Reference != "" && s.idempotency != nil {
		key = uuid.NewSHA1(uuid.Nil, fmt.Appendf(nil, "credit_note:%d:%s", scope.BoutiqueID, input.Reference)).String()
		if err := s.idempotency.CheckAndInsert(ctx, key, "credit_notes"); err != nil {
			return CreditNote{}, nil, err
		}
		insertedKey = true
	}

	note := CreditNote{
		BoutiqueID:    scope.BoutiqueID,
		InvoiceNumber: input.InvoiceNumber,
		ClientName:    input.ClientName,
		Status:        StatusEnAttente,
		Reason:        input.Reason,
		CreatedBy:     scope.UserID,
	}
	lines := make([]Line, 0, len(input.Lines))
	total := decimal.Zero
	for _, in := range input.Lines {
		lineTotal := in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)).Round(2)
		total = total.Add(lineTotal)
		lines = append(lines, Line{
			PartID:      in.PartID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineTotal:   lineTotal,
			Returnable:  in.Returnable,
		})
	}
	note.Total = total

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, scope.BoutiqueID)
		if err != nil {
			return err
		}
		note.Number = number
		id, err := tx.InsertCreditNote(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		for i := range lines {
			lines[i].CreditNoteID = id
			lineID, err := tx.InsertLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return CreditNote{}, nil, err
	}

	s.record(ctx, scope, "credit_note:create", note.ID, map[string]any{"number": note.Number, "invoice": note.InvoiceNumber})
	return note, lines, nil
}

// Validate confirms the credit note. One RETURN per returnable line comes
// back to stock in the document transaction; non-returnable lines are
// credited without restocking.
func (s *Service) Validate(ctx context.Context, id int64) (CreditNote, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return CreditNote{}, shared.ErrBoutiqueScope
	}

	var note CreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		note, err = tx.GetForUpdate(ctx, scope.BoutiqueID, id)
		if err != nil {
			return err
		}
		if note.Status != StatusEnAttente {
			return fmt.Errorf("%w: cannot validate %s credit note", shared.ErrInvalidState, note.Status)
		}
		lines, err := tx.GetLines(ctx, note.ID)
		if err != nil {
			return err
		}
		store := tx.Ledger()
		for _, line := range lines {
			if !line.Returnable {
				continue
			}
			_, err := s.engine.Apply(ctx, store, ledger.MovementInput{
				PartID:      line.PartID,
				BoutiqueID:  scope.BoutiqueID,
				Type:        ledger.MovementReturn,
				Quantity:    line.Quantity,
				Reason:      "retour avoir",
				DocumentRef: note.Number,
				ActorID:     scope.UserID,
			})
			if err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		note.Status = StatusValide
		note.ValidatedBy = scope.UserID
		note.ValidatedAt = &now
		return tx.MarkValidated(ctx, note.ID, scope.UserID, now)
	})
	if err != nil {
		return CreditNote{}, err
	}

	s.record(ctx, scope, "credit_note:validate", note.ID, map[string]any{"number": note.Number})
	return note, nil
}

// Refund closes a validated credit note once the client has been paid back.
// Purely monetary, no stock effect.
func (s *Service) Refund(ctx context.Context, id int64) (CreditNote, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return CreditNote{}, shared.ErrBoutiqueScope
	}

	var note CreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		note, err = tx.GetForUpdate(ctx, scope.BoutiqueID, id)
		if err != nil {
			return err
		}
		if note.Status != StatusValide {
			return fmt.Errorf("%w: cannot refund %s credit note", shared.ErrInvalidState, note.Status)
		}
		now := time.Now().UTC()
		note.Status = StatusRembourse
		note.RefundedAt = &now
		return tx.MarkRefunded(ctx, note.ID, now)
	})
	if err != nil {
		return CreditNote{}, err
	}

	s.record(ctx, scope, "credit_note:refund", note.ID, map[string]any{"number": note.Number, "total": note.Total.String()})
	return note, nil
}

// Get loads one credit note with lines within the caller's boutique.
func (s *Service) Get(ctx context.Context, id int64) (CreditNote, []Line, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return CreditNote{}, nil, shared.ErrBoutiqueScope
	}
	return s.repo.Get(ctx, scope.BoutiqueID, id)
}

// List returns credit note headers for the caller's boutique.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]CreditNote, int, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return nil, 0, shared.ErrBoutiqueScope
	}
	filters.BoutiqueID = scope.BoutiqueID
	return s.repo.List(ctx, filters)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:    scope.UserID,
		BoutiqueID: scope.BoutiqueID,
		Action:     action,
		Entity:     "credit_note",
		EntityID:   strconv.FormatInt(entityID, 10),
		Meta:       meta,
		At:         time.Now().UTC(),
	})
}
