package invoices

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	parts     map[int64]ledger.Part
	invoices  map[int64]Invoice
	lines     map[int64][]Line
	movements []ledger.Movement
	nextID    int64
	nextSeq   int64
}

func newMemoryRepo(parts ...ledger.Part) *memoryRepo {
	r := &memoryRepo{
		parts:    map[int64]ledger.Part{},
		invoices: map[int64]Invoice{},
		lines:    map[int64][]Line{},
		nextID:   1,
	}
	for _, p := range parts {
		r.parts[p.ID] = p
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapParts := make(map[int64]ledger.Part, len(r.parts))
	for id, p := range r.parts {
		snapParts[id] = p
	}
	snapInvoices := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		snapInvoices[id] = inv
	}
	snapLines := make(map[int64][]Line, len(r.lines))
	for id, ls := range r.lines {
		snapLines[id] = append([]Line(nil), ls...)
	}
	snapMovements := len(r.movements)
	snapNextID, snapNextSeq := r.nextID, r.nextSeq

	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.parts = snapParts
		r.invoices = snapInvoices
		r.lines = snapLines
		r.movements = r.movements[:snapMovements]
		r.nextID, r.nextSeq = snapNextID, snapNextSeq
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, boutiqueID, id int64) (Invoice, []Line, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.BoutiqueID != boutiqueID {
		return Invoice{}, nil, shared.ErrNotFound
	}
	return inv, r.lines[id], nil
}

func (r *memoryRepo) List(_ context.Context, filters ListFilters) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.BoutiqueID != filters.BoutiqueID {
			continue
		}
		if filters.Status != "" && inv.Status != filters.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetAvailability(_ context.Context, boutiqueID int64, partIDs []int64) (map[int64]PartAvailability, error) {
	out := map[int64]PartAvailability{}
	for _, id := range partIDs {
		p, ok := r.parts[id]
		if !ok || p.BoutiqueID != boutiqueID {
			continue
		}
		out[id] = PartAvailability{PartID: p.ID, Name: p.Name, Stock: p.Stock}
	}
	return out, nil
}

type memoryTx memoryRepo

func (t *memoryTx) NextNumber(_ context.Context, _ int64) (string, error) {
	t.nextSeq++
	return fmt.Sprintf("FAC-2026-%06d", t.nextSeq), nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	id := t.nextID
	t.nextID++
	inv.ID = id
	t.invoices[id] = inv
	return id, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	id := t.nextID
	t.nextID++
	line.ID = id
	t.lines[line.InvoiceID] = append(t.lines[line.InvoiceID], line)
	return id, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, boutiqueID, id int64) (Invoice, error) {
	inv, ok := t.invoices[id]
	if !ok || inv.BoutiqueID != boutiqueID {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (t *memoryTx) GetLines(_ context.Context, invoiceID int64) ([]Line, error) {
	return t.lines[invoiceID], nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status) error {
	inv := t.invoices[id]
	inv.Status = status
	t.invoices[id] = inv
	return nil
}

func (t *memoryTx) UpdatePayment(_ context.Context, id int64, updated Invoice) error {
	inv := t.invoices[id]
	inv.Status = updated.Status
	inv.AmountPaid = updated.AmountPaid
	t.invoices[id] = inv
	return nil
}

func (t *memoryTx) MarkCancelled(_ context.Context, id int64, cancelledBy int64, at time.Time) error {
	inv := t.invoices[id]
	inv.Status = StatusAnnulee
	inv.CancelledBy = cancelledBy
	inv.CancelledAt = &at
	t.invoices[id] = inv
	return nil
}

func (t *memoryTx) Ledger() ledger.TxStore {
	return (*memoryLedger)(t)
}

type memoryLedger memoryRepo

func (s *memoryLedger) GetPartForUpdate(_ context.Context, boutiqueID, partID int64) (ledger.Part, error) {
	p, ok := s.parts[partID]
	if !ok || p.BoutiqueID != boutiqueID {
		return ledger.Part{}, ledger.ErrPartNotFound
	}
	return p, nil
}

func (s *memoryLedger) UpdatePartStock(_ context.Context, partID, stock int64) error {
	p := s.parts[partID]
	p.Stock = stock
	s.parts[partID] = p
	return nil
}

func (s *memoryLedger) InsertMovement(_ context.Context, movement ledger.Movement) (int64, error) {
	movement.ID = int64(len(s.movements) + 1)
	s.movements = append(s.movements, movement)
	return movement.ID, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func scopedCtx() context.Context {
	return shared.ContextWithScope(context.Background(), shared.Scope{BoutiqueID: 7, UserID: 3})
}

func testParts() []ledger.Part {
	return []ledger.Part{
		{ID: 1, BoutiqueID: 7, Reference: "PLQ-AV-001", Name: "Plaquettes avant", Stock: 10, StockMin: 2},
		{ID: 2, BoutiqueID: 7, Reference: "FLT-HLE-002", Name: "Filtre a huile", Stock: 4, StockMin: 1},
	}
}

func twoLineInput(draft bool) CreateInput {
	return CreateInput{
		ClientName: "Garage Rakoto",
		Draft:      draft,
		Lines: []LineInput{
			{PartID: 1, Description: "Plaquettes avant", Quantity: 3, UnitPrice: decimal.RequireFromString("19.90"), DiscountPercent: decimal.RequireFromString("10"), TaxPercent: decimal.RequireFromString("20")},
			{PartID: 2, Description: "Filtre a huile", Quantity: 1, UnitPrice: decimal.RequireFromString("8.50"), TaxPercent: decimal.RequireFromString("20")},
		},
	}
}

func TestCreateFinalizedDecrementsStock(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	audit := &recordingAudit{}
	svc := NewService(repo, ledger.NewEngine(), audit, nil)

	inv, lines, err := svc.Create(scopedCtx(), twoLineInput(false))
	require.NoError(t, err)
	require.Equal(t, StatusEnAttente, inv.Status)
	require.Equal(t, "FAC-2026-000001", inv.Number)
	require.Len(t, lines, 2)

	// 3 x 19.90 = 59.70, 10% off = 53.73, +20% tax 10.75 -> 64.48
	// 1 x 8.50, +20% tax 1.70 -> 10.20
	require.True(t, lines[0].LineTotal.Equal(decimal.RequireFromString("64.48")), lines[0].LineTotal.String())
	require.True(t, lines[1].LineTotal.Equal(decimal.RequireFromString("10.20")), lines[1].LineTotal.String())
	require.True(t, inv.Total.Equal(decimal.RequireFromString("74.68")), inv.Total.String())

	require.EqualValues(t, 7, repo.parts[1].Stock)
	require.EqualValues(t, 3, repo.parts[2].Stock)
	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		require.Equal(t, ledger.MovementOutgoing, m.Type)
		require.Equal(t, inv.Number, m.DocumentRef)
	}

	require.Len(t, audit.logs, 1)
	require.Equal(t, "invoice:create", audit.logs[0].Action)
}

func TestCreateDraftLeavesStockAlone(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(true))
	require.NoError(t, err)
	require.Equal(t, StatusBrouillon, inv.Status)
	require.EqualValues(t, 10, repo.parts[1].Stock)
	require.Empty(t, repo.movements)
}

func TestCreateRejectsOverdrawAndPersistsNothing(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	input := twoLineInput(false)
	input.Lines[0].Quantity = 11
	_, _, err := svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, repo.invoices)
	require.EqualValues(t, 10, repo.parts[1].Stock)
	require.Empty(t, repo.movements)
}

func TestCreateAggregatesQuantityPerPart(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	// Each line fits on its own but together they overdraw part 1.
	input := CreateInput{
		ClientName: "Garage Rakoto",
		Lines: []LineInput{
			{PartID: 1, Description: "Plaquettes avant", Quantity: 6, UnitPrice: decimal.RequireFromString("19.90")},
			{PartID: 1, Description: "Plaquettes avant", Quantity: 6, UnitPrice: decimal.RequireFromString("19.90")},
		},
	}
	_, _, err := svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.EqualValues(t, 10, repo.parts[1].Stock)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(testParts()...), ledger.NewEngine(), nil, nil)

	_, _, err := svc.Create(context.Background(), twoLineInput(false))
	require.ErrorIs(t, err, shared.ErrBoutiqueScope)

	input := twoLineInput(false)
	input.ClientName = ""
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = twoLineInput(false)
	input.Lines = nil
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = twoLineInput(false)
	input.Lines[0].Quantity = 0
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestFinalizeDraft(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(true))
	require.NoError(t, err)
	require.EqualValues(t, 10, repo.parts[1].Stock)

	finalized, err := svc.Finalize(scopedCtx(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnAttente, finalized.Status)
	require.EqualValues(t, 7, repo.parts[1].Stock)
	require.Len(t, repo.movements, 2)

	_, err = svc.Finalize(scopedCtx(), inv.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestFinalizeRollsBackOnOverdraw(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	input := twoLineInput(true)
	inv, _, err := svc.Create(scopedCtx(), input)
	require.NoError(t, err)

	// Stock drains between draft and finalize.
	p := repo.parts[1]
	p.Stock = 1
	repo.parts[1] = p

	_, err = svc.Finalize(scopedCtx(), inv.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	stored, _, getErr := svc.Get(scopedCtx(), inv.ID)
	require.NoError(t, getErr)
	require.Equal(t, StatusBrouillon, stored.Status)
	require.Empty(t, repo.movements)
}

func TestRecordPayment(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(false))
	require.NoError(t, err)

	partial, err := svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: decimal.RequireFromString("50")})
	require.NoError(t, err)
	require.Equal(t, StatusPartiellementPayee, partial.Status)

	paid, err := svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: decimal.RequireFromString("24.68")})
	require.NoError(t, err)
	require.Equal(t, StatusPayee, paid.Status)
	require.True(t, paid.AmountPaid.Equal(paid.Total))

	_, err = svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: decimal.RequireFromString("1")})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(false))
	require.NoError(t, err)

	_, err = svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: decimal.RequireFromString("100")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelRestocksIssuedInvoice(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(false))
	require.NoError(t, err)
	require.EqualValues(t, 7, repo.parts[1].Stock)

	cancelled, err := svc.Cancel(scopedCtx(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAnnulee, cancelled.Status)
	require.EqualValues(t, 10, repo.parts[1].Stock)
	require.EqualValues(t, 4, repo.parts[2].Stock)

	returns := 0
	for _, m := range repo.movements {
		if m.Type == ledger.MovementReturn {
			returns++
			require.Equal(t, inv.Number, m.DocumentRef)
		}
	}
	require.Equal(t, 2, returns)
}

func TestCancelDraftHasNoStockEffect(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(true))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(scopedCtx(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAnnulee, cancelled.Status)
	require.Empty(t, repo.movements)
}

func TestCancelRejectsPaidInvoice(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	inv, _, err := svc.Create(scopedCtx(), twoLineInput(false))
	require.NoError(t, err)
	_, err = svc.RecordPayment(scopedCtx(), inv.ID, PaymentInput{Amount: inv.Total})
	require.NoError(t, err)

	_, err = svc.Cancel(scopedCtx(), inv.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

type memoryKeys struct {
	inserted map[string]string
	deleted  []string
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{inserted: make(map[string]string)}
}

func (s *memoryKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := s.inserted[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.inserted[key] = module
	return nil
}

func (s *memoryKeys) Delete(_ context.Context, key string) error {
	delete(s.inserted, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func TestCreateRejectsDuplicateSubmission(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	keys := newMemoryKeys()
	svc := NewService(repo, ledger.NewEngine(), nil, keys)

	input := twoLineInput(false)
	input.Reference = "pos-7-000042"

	_, _, err := svc.Create(scopedCtx(), input)
	require.NoError(t, err)

	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.invoices, 1, "the replay must not create a second invoice")
	require.EqualValues(t, 7, repo.parts[1].Stock, "the replay must not destock again")
	require.EqualValues(t, 3, repo.parts[2].Stock)
}

// failingTxRepo lets the availability precheck pass, then fails the document
// transaction, the shape of a write error after the key was claimed.
type failingTxRepo struct {
	*memoryRepo
	txErr error
}

func (r *failingTxRepo) WithTx(_ context.Context, _ func(context.Context, TxRepository) error) error {
	return r.txErr
}

func TestCreateReleasesKeyOnFailure(t *testing.T) {
	txErr := fmt.Errorf("insert invoice: connection reset")
	repo := &failingTxRepo{memoryRepo: newMemoryRepo(testParts()...), txErr: txErr}
	keys := newMemoryKeys()
	svc := NewService(repo, ledger.NewEngine(), nil, keys)

	input := twoLineInput(false)
	input.Reference = "pos-7-000043"

	_, _, err := svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, txErr)
	require.Empty(t, keys.inserted, "a failed creation must release its key")
	require.Len(t, keys.deleted, 1)

	// The resubmission under the same reference goes through once the
	// transaction succeeds.
	svc = NewService(repo.memoryRepo, ledger.NewEngine(), nil, keys)
	_, _, err = svc.Create(scopedCtx(), input)
	require.NoError(t, err)
}
