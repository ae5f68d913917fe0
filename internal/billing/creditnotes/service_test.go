package creditnotes

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
	notes     map[int64]CreditNote
	lines     map[int64][]Line
	movements []ledger.Movement
	nextID    int64
	nextSeq   int64
}

func newMemoryRepo(parts ...ledger.Part) *memoryRepo {
	r := &memoryRepo{
		parts:  map[int64]ledger.Part{},
		notes:  map[int64]CreditNote{},
		lines:  map[int64][]Line{},
		nextID: 1,
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
	snapNotes := make(map[int64]CreditNote, len(r.notes))
	for id, n := range r.notes {
		snapNotes[id] = n
	}
	snapLines := make(map[int64][]Line, len(r.lines))
	for id, ls := range r.lines {
		snapLines[id] = append([]Line(nil), ls...)
	}
	snapMovements := len(r.movements)
	snapNextID, snapNextSeq := r.nextID, r.nextSeq

	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.parts = snapParts
		r.notes = snapNotes
		r.lines = snapLines
		r.movements = r.movements[:snapMovements]
		r.nextID, r.nextSeq = snapNextID, snapNextSeq
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, boutiqueID, id int64) (CreditNote, []Line, error) {
	note, ok := r.notes[id]
	if !ok || note.BoutiqueID != boutiqueID {
		return CreditNote{}, nil, shared.ErrNotFound
	}
	return note, r.lines[id], nil
}

func (r *memoryRepo) List(_ context.Context, filters ListFilters) ([]CreditNote, int, error) {
	var out []CreditNote
	for _, note := range r.notes {
		if note.BoutiqueID != filters.BoutiqueID {
			continue
		}
		if filters.Status != "" && note.Status != filters.Status {
			continue
		}
		out = append(out, note)
	}
	return out, len(out), nil
}

type memoryTx memoryRepo

func (t *memoryTx) NextNumber(_ context.Context, _ int64) (string, error) {
	t.nextSeq++
	return fmt.Sprintf("AVR-2026-%06d", t.nextSeq), nil
}

func (t *memoryTx) InsertCreditNote(_ context.Context, note CreditNote) (int64, error) {
	id := t.nextID
	t.nextID++
	note.ID = id
	t.notes[id] = note
	return id, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	id := t.nextID
	t.nextID++
	line.ID = id
	t.lines[line.CreditNoteID] = append(t.lines[line.CreditNoteID], line)
	return id, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, boutiqueID, id int64) (CreditNote, error) {
	note, ok := t.notes[id]
	if !ok || note.BoutiqueID != boutiqueID {
		return CreditNote{}, shared.ErrNotFound
	}
	return note, nil
}

func (t *memoryTx) GetLines(_ context.Context, creditNoteID int64) ([]Line, error) {
	return t.lines[creditNoteID], nil
}

func (t *memoryTx) MarkValidated(_ context.Context, id int64, validatedBy int64, at time.Time) error {
	note := t.notes[id]
	note.Status = StatusValide
	note.ValidatedBy = validatedBy
	note.ValidatedAt = &at
	t.notes[id] = note
	return nil
}

func (t *memoryTx) MarkRefunded(_ context.Context, id int64, at time.Time) error {
	note := t.notes[id]
	note.Status = StatusRembourse
	note.RefundedAt = &at
	t.notes[id] = note
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

func scopedCtx() context.Context {
	return shared.ContextWithScope(context.Background(), shared.Scope{BoutiqueID: 7, UserID: 3})
}

func testParts() []ledger.Part {
	return []ledger.Part{
		{ID: 1, BoutiqueID: 7, Reference: "PLQ-AV-001", Name: "Plaquettes avant", Stock: 5, StockMin: 2},
		{ID: 2, BoutiqueID: 7, Reference: "BGL-CLT-003", Name: "Bougie allumage", Stock: 12, StockMin: 4},
	}
}

func mixedLineInput() CreateInput {
	return CreateInput{
		InvoiceNumber: "FAC-2026-000042",
		ClientName:    "Garage Rakoto",
		Reason:        "piece defectueuse",
		Lines: []LineInput{
			{PartID: 1, Description: "Plaquettes avant", Quantity: 2, UnitPrice: decimal.RequireFromString("19.90"), Returnable: true},
			{PartID: 2, Description: "Bougie cassee", Quantity: 1, UnitPrice: decimal.RequireFromString("6.00"), Returnable: false},
		},
	}
}

func TestCreatePending(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	note, lines, err := svc.Create(scopedCtx(), mixedLineInput())
	require.NoError(t, err)
	require.Equal(t, StatusEnAttente, note.Status)
	require.Equal(t, "AVR-2026-000001", note.Number)
	require.Len(t, lines, 2)
	require.True(t, note.Total.Equal(decimal.RequireFromString("45.80")), note.Total.String())

	// Creation never touches stock.
	require.EqualValues(t, 5, repo.parts[1].Stock)
	require.Empty(t, repo.movements)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(testParts()...), ledger.NewEngine(), nil, nil)

	_, _, err := svc.Create(context.Background(), mixedLineInput())
	require.ErrorIs(t, err, shared.ErrBoutiqueScope)

	input := mixedLineInput()
	input.InvoiceNumber = ""
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = mixedLineInput()
	input.Reason = ""
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = mixedLineInput()
	input.Lines[0].Quantity = 0
	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValidateRestocksReturnableLinesOnly(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	audit := &recordingAudit{}
	svc := NewService(repo, ledger.NewEngine(), audit, nil)

	note, _, err := svc.Create(scopedCtx(), mixedLineInput())
	require.NoError(t, err)

	validated, err := svc.Validate(scopedCtx(), note.ID)
	require.NoError(t, err)
	require.Equal(t, StatusValide, validated.Status)
	require.NotNil(t, validated.ValidatedAt)

	// Returnable line restocked, damaged line credited without restock.
	require.EqualValues(t, 7, repo.parts[1].Stock)
	require.EqualValues(t, 12, repo.parts[2].Stock)
	require.Len(t, repo.movements, 1)
	require.Equal(t, ledger.MovementReturn, repo.movements[0].Type)
	require.Equal(t, note.Number, repo.movements[0].DocumentRef)
	require.EqualValues(t, 2, repo.movements[0].Quantity)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "credit_note:validate", audit.logs[1].Action)
}

func TestValidateRejectsWrongStatus(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	note, _, err := svc.Create(scopedCtx(), mixedLineInput())
	require.NoError(t, err)
	_, err = svc.Validate(scopedCtx(), note.ID)
	require.NoError(t, err)

	// Validating twice would restock twice.
	_, err = svc.Validate(scopedCtx(), note.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.EqualValues(t, 7, repo.parts[1].Stock)
	require.Len(t, repo.movements, 1)
}

func TestRefundLifecycle(t *testing.T) {
	repo := newMemoryRepo(testParts()...)
	svc := NewService(repo, ledger.NewEngine(), nil, nil)

	note, _, err := svc.Create(scopedCtx(), mixedLineInput())
	require.NoError(t, err)

	// Refunding a pending note skips the physical return step.
	_, err = svc.Refund(scopedCtx(), note.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.Validate(scopedCtx(), note.ID)
	require.NoError(t, err)

	refunded, err := svc.Refund(scopedCtx(), note.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRembourse, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	// Refund is monetary only.
	require.Len(t, repo.movements, 1)

	_, err = svc.Refund(scopedCtx(), note.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
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

	input := mixedLineInput()
	input.Reference = "retour-7-000012"

	_, _, err := svc.Create(scopedCtx(), input)
	require.NoError(t, err)

	_, _, err = svc.Create(scopedCtx(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.notes, 1, "the replay must not issue a second credit")
}
