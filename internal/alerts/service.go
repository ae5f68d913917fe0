package alerts

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// LowStockItem is one part at or below its reorder threshold.
type LowStockItem struct {
	PartID    int64  `json:"part_id"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	StockMin  int64  `json:"stock_min"`
	Deficit   int64  `json:"deficit"`
}

// Repository reads the low stock projection.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListLowStock returns active parts sitting at or under stock_min.
func (r *Repository) ListLowStock(ctx context.Context, boutiqueID int64) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reference, name, stock, stock_min, stock_min - stock
FROM parts WHERE boutique_id=$1 AND active AND stock <= stock_min ORDER BY stock_min - stock DESC, reference ASC`, boutiqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.PartID, &item.Reference, &item.Name, &item.Stock, &item.StockMin, &item.Deficit); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// BoutiqueIDs lists active boutiques for the scan job fan-out.
func (r *Repository) BoutiqueIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM boutiques WHERE active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RepositoryPort is the read surface the service depends on.
type RepositoryPort interface {
	ListLowStock(ctx context.Context, boutiqueID int64) ([]LowStockItem, error)
}

// Service serves the low stock read model through the versioned cache.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// LowStock returns the current low stock list for the caller's boutique.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return nil, shared.ErrBoutiqueScope
	}
	key, err := s.cache.BuildKey(ctx, keyLowStock(scope.BoutiqueID))
	if err != nil {
		return nil, err
	}
	var items []LowStockItem
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (interface{}, error) {
		return s.repo.ListLowStock(ctx, scope.BoutiqueID)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Invalidate bumps the cache version after stock has moved.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
