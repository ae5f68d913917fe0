package invoices

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "github.com/syrax68/gestion-pieces-sub001/internal/billing/shared"
	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, boutiqueID, id int64) (Invoice, []Line, error)
	List(ctx context.Context, filters ListFilters) ([]Invoice, int, error)
	GetAvailability(ctx context.Context, boutiqueID int64, partIDs []int64) (map[int64]PartAvailability, error)
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

// Service orchestrates invoice lifecycle. Every stock effect goes through the
// ledger engine bound to the invoice transaction.
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

// LineInput is one requested invoice line.
type LineInput struct {
	PartID          int64
	Description     string
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// CreateInput is the invoice creation request. Reference is the client's own
// submission identifier; resubmitting the same reference is rejected instead
// of billing and destocking twice.
type CreateInput struct {
	ClientID   int64
	ClientName string
	Notes      string
	Draft      bool
	Reference  string
	Lines      []LineInput
}

// PaymentInput records money received against an invoice.
type PaymentInput struct {
	Amount decimal.Decimal
}

func validateCreate(input CreateInput) error {
	if input.ClientName == "" {
		return fmt.Errorf("%w: client name required", shared.ErrValidation)
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

// Create builds an invoice. A draft reserves nothing; a finalized invoice
// posts one OUTGOING movement per line in the same transaction as the
// document, so an overdraw on any line aborts the whole invoice.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, []Line, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Invoice{}, nil, shared.ErrBoutiqueScope
	}
	if err := validateCreate(input); err != nil {
		return Invoice{}, nil, err
	}

	if !input.Draft {
		if err := s.precheckAvailability(ctx, scope.BoutiqueID, input.Lines); err != nil {
			return Invoice{}, nil, err
		}
	}

	insertedKey := false
	key := ""
	if input.Reference != "" && s.idempotency != nil {
		key = uuid.NewSHA1(uuid.Nil, fmt.Appendf(nil, "invoice:%d:%s", scope.BoutiqueID, input.Reference)).String()
		if err := s.idempotency.CheckAndInsert(ctx, key, "invoices"); err != nil {
			return Invoice{}, nil, err
		}
		insertedKey = true
	}

	status := StatusEnAttente
	if input.Draft {
		status = StatusBrouillon
	}

	inv := Invoice{
		BoutiqueID: scope.BoutiqueID,
		ClientID:   input.ClientID,
		ClientName: input.ClientName,
		Status:     status,
		AmountPaid: decimal.Zero,
		Notes:      input.Notes,
		CreatedBy:  scope.UserID,
	}
	lines := make([]Line, 0, len(input.Lines))
	subtotal, taxTotal, total := decimal.Zero, decimal.Zero, decimal.Zero
	for _, in := range input.Lines {
		discountAmount, taxAmount, lineTotal := billing.CalculateLineTotals(in.Quantity, in.UnitPrice, in.DiscountPercent, in.TaxPercent)
		gross := in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)).Round(2)
		subtotal = subtotal.Add(gross.Sub(discountAmount))
		taxTotal = taxTotal.Add(taxAmount)
		total = total.Add(lineTotal)
		lines = append(lines, Line{
			PartID:          in.PartID,
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
			DiscountAmount:  discountAmount,
			TaxAmount:       taxAmount,
			LineTotal:       lineTotal,
		})
	}
	inv.Subtotal = subtotal
	inv.TaxTotal = taxTotal
	inv.Total = total

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, scope.BoutiqueID)
		if err != nil {
			return err
		}
		inv.Number = number
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		for i := range lines {
			lines[i].InvoiceID = id
			lineID, err := tx.InsertLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		if input.Draft {
			return nil
		}
		return s.applyOutgoing(ctx, tx, inv, lines, scope.UserID)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Invoice{}, nil, err
	}

	s.record(ctx, scope, "invoice:create", inv.ID, map[string]any{"number": inv.Number, "status": string(inv.Status), "total": inv.Total.String()})
	return inv, lines, nil
}

// Finalize moves a draft to EN_ATTENTE and posts its stock movements.
func (s *Service) Finalize(ctx context.Context, id int64) (Invoice, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Invoice{}, shared.ErrBoutiqueScope
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetForUpdate(ctx, scope.BoutiqueID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusBrouillon {
			return fmt.Errorf("%w: cannot finalize %s invoice", shared.ErrInvalidState, inv.Status)
		}
		lines, err := tx.GetLines(ctx, inv.ID)
		if err != nil {
			return err
		}
		if err := s.applyOutgoing(ctx, tx, inv, lines, scope.UserID); err != nil {
			return err
		}
		inv.Status = StatusEnAttente
		return tx.UpdateStatus(ctx, inv.ID, StatusEnAttente)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.record(ctx, scope, "invoice:finalize", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// RecordPayment adds a payment. Full coverage flips the status to PAYEE,
// anything short of the total to PARTIELLEMENT_PAYEE.
func (s *Service) RecordPayment(ctx context.Context, id int64, input PaymentInput) (Invoice, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Invoice{}, shared.ErrBoutiqueScope
	}
	if !input.Amount.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetForUpdate(ctx, scope.BoutiqueID, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusEnAttente, StatusPartiellementPayee:
		default:
			return fmt.Errorf("%w: cannot pay %s invoice", shared.ErrInvalidState, inv.Status)
		}
		paid := inv.AmountPaid.Add(input.Amount)
		if paid.GreaterThan(inv.Total) {
			return fmt.Errorf("%w: payment exceeds balance due", shared.ErrValidation)
		}
		inv.AmountPaid = paid
		if paid.Equal(inv.Total) {
			inv.Status = StatusPayee
		} else {
			inv.Status = StatusPartiellementPayee
		}
		return tx.UpdatePayment(ctx, inv.ID, inv)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.record(ctx, scope, "invoice:payment", inv.ID, map[string]any{"amount": input.Amount.String(), "status": string(inv.Status)})
	return inv, nil
}

// Cancel voids the invoice. When stock had been decremented, one RETURN per
// line puts the parts back in the same transaction; a draft cancels with no
// stock effect. Paid invoices cannot be cancelled, they go through a credit
// note instead.
func (s *Service) Cancel(ctx context.Context, id int64) (Invoice, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Invoice{}, shared.ErrBoutiqueScope
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetForUpdate(ctx, scope.BoutiqueID, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusBrouillon, StatusEnAttente:
		default:
			return fmt.Errorf("%w: cannot cancel %s invoice", shared.ErrInvalidState, inv.Status)
		}
		if inv.Status == StatusEnAttente {
			lines, err := tx.GetLines(ctx, inv.ID)
			if err != nil {
				return err
			}
			for _, line := range lines {
				_, err := s.engine.Apply(ctx, tx.Ledger(), ledger.MovementInput{
					PartID:      line.PartID,
					BoutiqueID:  scope.BoutiqueID,
					Type:        ledger.MovementReturn,
					Quantity:    line.Quantity,
					Reason:      "annulation facture",
					DocumentRef: inv.Number,
					ActorID:     scope.UserID,
				})
				if err != nil {
					return err
				}
			}
		}
		inv.Status = StatusAnnulee
		now := time.Now().UTC()
		inv.CancelledBy = scope.UserID
		inv.CancelledAt = &now
		return tx.MarkCancelled(ctx, inv.ID, scope.UserID, now)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.record(ctx, scope, "invoice:cancel", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// Get loads one invoice with lines within the caller's boutique.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, []Line, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Invoice{}, nil, shared.ErrBoutiqueScope
	}
	return s.repo.Get(ctx, scope.BoutiqueID, id)
}

// List returns invoice headers for the caller's boutique.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Invoice, int, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return nil, 0, shared.ErrBoutiqueScope
	}
	filters.BoutiqueID = scope.BoutiqueID
	return s.repo.List(ctx, filters)
}

func (s *Service) applyOutgoing(ctx context.Context, tx TxRepository, inv Invoice, lines []Line, actorID int64) error {
	store := tx.Ledger()
	for _, line := range lines {
		_, err := s.engine.Apply(ctx, store, ledger.MovementInput{
			PartID:      line.PartID,
			BoutiqueID:  inv.BoutiqueID,
			Type:        ledger.MovementOutgoing,
			Quantity:    line.Quantity,
			Reason:      "vente facture",
			DocumentRef: inv.Number,
			ActorID:     actorID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// precheckAvailability rejects obviously short lines before opening the
// transaction. Quantities are aggregated per part so two lines on the same
// part are checked together. Unlocked read, the engine remains the authority.
func (s *Service) precheckAvailability(ctx context.Context, boutiqueID int64, lines []LineInput) error {
	needed := map[int64]int64{}
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, seen := needed[line.PartID]; !seen {
			ids = append(ids, line.PartID)
		}
		needed[line.PartID] += line.Quantity
	}
	available, err := s.repo.GetAvailability(ctx, boutiqueID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		part, ok := available[id]
		if !ok {
			return ledger.ErrPartNotFound
		}
		if part.Stock < needed[id] {
			return &ledger.InsufficientStockError{
				PartID:    id,
				PartName:  part.Name,
				Stock:     part.Stock,
				Requested: needed[id],
			}
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, scope shared.Scope, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:    scope.UserID,
		BoutiqueID: scope.BoutiqueID,
		Action:     action,
		Entity:     "invoice",
		EntityID:   strconv.FormatInt(entityID, 10),
		Meta:       meta,
		At:         time.Now().UTC(),
	})
}
