package boutiques

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Repository persists boutique reference data.
type Repository interface {
	List(ctx context.Context) ([]Boutique, error)
	Get(ctx context.Context, id int64) (Boutique, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Boutique, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, COALESCE(address,''), COALESCE(phone,''), active, created_at
FROM boutiques WHERE active ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Boutique{}
	for rows.Next() {
		var b Boutique
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Boutique, error) {
	var b Boutique
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, COALESCE(address,''), COALESCE(phone,''), active, created_at
FROM boutiques WHERE id=$1`, id).Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Boutique{}, shared.ErrNotFound
		}
		return Boutique{}, err
	}
	return b, nil
}
