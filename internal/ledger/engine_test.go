package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryStore implements TxStore over a map, serialising access the way the
// database row lock does in production.
type memoryStore struct {
	mu        sync.Mutex
	parts     map[int64]Part
	movements []Movement
	nextID    int64
}

func newMemoryStore(parts ...Part) *memoryStore {
	s := &memoryStore{parts: make(map[int64]Part)}
	for _, p := range parts {
		s.parts[p.ID] = p
	}
	return s
}

func (s *memoryStore) GetPartForUpdate(_ context.Context, boutiqueID, partID int64) (Part, error) {
	p, ok := s.parts[partID]
	if !ok || p.BoutiqueID != boutiqueID {
		return Part{}, ErrPartNotFound
	}
	return p, nil
}

func (s *memoryStore) UpdatePartStock(_ context.Context, partID, stock int64) error {
	p := s.parts[partID]
	p.Stock = stock
	s.parts[partID] = p
	return nil
}

func (s *memoryStore) InsertMovement(_ context.Context, m Movement) (int64, error) {
	s.nextID++
	m.ID = s.nextID
	s.movements = append(s.movements, m)
	return m.ID, nil
}

// apply runs one movement under the store lock, mimicking the transactional
// serialisation of concurrent callers.
func (s *memoryStore) apply(ctx context.Context, engine *Engine, input MovementInput) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshotParts := make(map[int64]Part, len(s.parts))
	for id, p := range s.parts {
		snapshotParts[id] = p
	}
	snapshotLen := len(s.movements)
	res, err := engine.Apply(ctx, s, input)
	if err != nil {
		// Rollback, as the enclosing transaction would.
		s.parts = snapshotParts
		s.movements = s.movements[:snapshotLen]
		return Result{}, err
	}
	return res, nil
}

func testPart() Part {
	return Part{ID: 1, BoutiqueID: 7, Reference: "PLQ-AV-001", Name: "Plaquettes avant", Stock: 10, StockMin: 2}
}

func TestApplySaleThenRefusedOverdraw(t *testing.T) {
	store := newMemoryStore(testPart())
	engine := NewEngine()
	ctx := context.Background()

	res, err := store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 3, Reason: "sale", ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, Result{QuantityBefore: 10, QuantityAfter: 7}, res)
	require.EqualValues(t, 7, store.parts[1].Stock)
	require.Len(t, store.movements, 1)
	m := store.movements[0]
	require.Equal(t, MovementOutgoing, m.Type)
	require.EqualValues(t, 3, m.Quantity)
	require.EqualValues(t, 10, m.QuantityBefore)
	require.EqualValues(t, 7, m.QuantityAfter)

	_, err = store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 8, Reason: "sale"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "Plaquettes avant", insufficient.PartName)
	require.EqualValues(t, 7, insufficient.Stock)
	require.EqualValues(t, 7, store.parts[1].Stock, "stock untouched after refused movement")
	require.Len(t, store.movements, 1, "no movement appended after refused movement")
}

func TestApplyTransforms(t *testing.T) {
	cases := []struct {
		name     string
		typ      MovementType
		quantity int64
		want     int64
	}{
		{"incoming adds", MovementIncoming, 5, 15},
		{"return adds", MovementReturn, 2, 12},
		{"outgoing subtracts", MovementOutgoing, 4, 6},
		{"transfer subtracts", MovementTransfer, 4, 6},
		{"adjustment sets absolute", MovementAdjustment, 3, 3},
		{"reconcile sets absolute", MovementInventoryReconcile, 25, 25},
		{"reconcile to zero", MovementInventoryReconcile, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore(testPart())
			engine := NewEngine()
			res, err := store.apply(context.Background(), engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: tc.typ, Quantity: tc.quantity})
			require.NoError(t, err)
			require.EqualValues(t, 10, res.QuantityBefore)
			require.EqualValues(t, tc.want, res.QuantityAfter)
			require.EqualValues(t, tc.want, store.parts[1].Stock)
			require.EqualValues(t, 10, store.movements[0].QuantityBefore, "recorded before equals pre-call stock")
		})
	}
}

func TestApplyTransferGuardsNegativeStock(t *testing.T) {
	store := newMemoryStore(testPart())
	engine := NewEngine()
	_, err := store.apply(context.Background(), engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementTransfer, Quantity: 11})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestApplyValidation(t *testing.T) {
	store := newMemoryStore(testPart())
	engine := NewEngine()
	ctx := context.Background()

	_, err := store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementType("LOAN"), Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidMovementType)

	_, err = store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementIncoming, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = store.apply(ctx, engine, MovementInput{PartID: 99, BoutiqueID: 7, Type: MovementIncoming, Quantity: 1})
	require.ErrorIs(t, err, ErrPartNotFound)

	// Boutique scope is part of the part lookup: a part from another boutique
	// is indistinguishable from a missing one.
	_, err = store.apply(ctx, engine, MovementInput{PartID: 1, BoutiqueID: 8, Type: MovementIncoming, Quantity: 1})
	require.ErrorIs(t, err, ErrPartNotFound)
}

func TestApplyIsIntentionallyNotIdempotent(t *testing.T) {
	store := newMemoryStore(testPart())
	engine := NewEngine()
	ctx := context.Background()
	input := MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 2, Reason: "sale", DocumentRef: "FAC-2026-000001"}

	_, err := store.apply(ctx, engine, input)
	require.NoError(t, err)
	_, err = store.apply(ctx, engine, input)
	require.NoError(t, err)

	require.Len(t, store.movements, 2, "identical submissions produce two ledger entries")
	require.EqualValues(t, 6, store.parts[1].Stock, "stock reduced by 2x quantity")
}

func TestConcurrentOutgoingNeverOverdraws(t *testing.T) {
	// 5 clerks each sell 2 units from a stock of 8: exactly one must fail and
	// stock must never commit negative.
	part := testPart()
	part.Stock = 8
	store := newMemoryStore(part)
	engine := NewEngine()

	const clerks = 5
	errs := make(chan error, clerks)
	var wg sync.WaitGroup
	for i := 0; i < clerks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.apply(context.Background(), engine, MovementInput{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 2, Reason: "sale"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientStock)
			failures++
		}
	}
	require.Equal(t, 1, failures)
	require.EqualValues(t, 0, store.parts[1].Stock)
	require.Len(t, store.movements, 4)
	for _, m := range store.movements {
		require.GreaterOrEqual(t, m.QuantityAfter, int64(0), "no commit point observes negative stock")
	}
}

func TestReplayReproducesStock(t *testing.T) {
	store := newMemoryStore(testPart())
	engine := NewEngine()
	ctx := context.Background()

	sequence := []MovementInput{
		{PartID: 1, BoutiqueID: 7, Type: MovementIncoming, Quantity: 5},
		{PartID: 1, BoutiqueID: 7, Type: MovementOutgoing, Quantity: 3},
		{PartID: 1, BoutiqueID: 7, Type: MovementAdjustment, Quantity: 20},
		{PartID: 1, BoutiqueID: 7, Type: MovementReturn, Quantity: 1},
		{PartID: 1, BoutiqueID: 7, Type: MovementTransfer, Quantity: 6},
		{PartID: 1, BoutiqueID: 7, Type: MovementInventoryReconcile, Quantity: 9},
	}
	for _, input := range sequence {
		_, err := store.apply(ctx, engine, input)
		require.NoError(t, err)
	}

	require.NoError(t, VerifyReplay(store.parts[1], store.movements, 10))

	replayed, err := Replay(10, store.movements)
	require.NoError(t, err)
	require.EqualValues(t, 9, replayed)
}
