package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

type mockRepo struct {
	items []LowStockItem
	calls int
}

func (m *mockRepo) ListLowStock(_ context.Context, _ int64) ([]LowStockItem, error) {
	m.calls++
	return m.items, nil
}

func newTestService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute))
}

func scopedCtx() context.Context {
	return shared.ContextWithScope(context.Background(), shared.Scope{BoutiqueID: 7, UserID: 3})
}

func TestLowStockCaches(t *testing.T) {
	repo := &mockRepo{items: []LowStockItem{
		{PartID: 1, Reference: "PLQ-AV-001", Name: "Plaquettes avant", Stock: 1, StockMin: 2, Deficit: 1},
	}}
	svc := newTestService(t, repo)

	items, err := svc.LowStock(scopedCtx())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, repo.calls)

	// Second read is served from cache.
	items, err = svc.LowStock(scopedCtx())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, repo.calls)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, repo)

	_, err := svc.LowStock(scopedCtx())
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, svc.Invalidate(scopedCtx()))

	// Version bump forces a reload.
	_, err = svc.LowStock(scopedCtx())
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestLowStockRequiresScope(t *testing.T) {
	svc := newTestService(t, &mockRepo{})
	_, err := svc.LowStock(context.Background())
	require.ErrorIs(t, err, shared.ErrBoutiqueScope)
}

func TestNilCachePassesThrough(t *testing.T) {
	repo := &mockRepo{items: []LowStockItem{{PartID: 2}}}
	svc := NewService(repo, nil)

	items, err := svc.LowStock(scopedCtx())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, repo.calls)
}
