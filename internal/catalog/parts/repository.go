package parts

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Repository persists the parts catalog.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Part, int, error)
	Get(ctx context.Context, boutiqueID, id int64) (Part, error)
	GetByReference(ctx context.Context, boutiqueID int64, reference string) (Part, error)
	Create(ctx context.Context, part Part) (Part, error)
	Update(ctx context.Context, part Part) error
	SetActive(ctx context.Context, boutiqueID, id int64, active bool) error
	ListLowStock(ctx context.Context, boutiqueID int64) ([]Part, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const partColumns = `id, boutique_id, reference, COALESCE(barcode,''), name, COALESCE(description,''), COALESCE(brand,''),
purchase_price, sale_price, stock, stock_min, active, created_at, updated_at`

func scanPart(row pgx.Row) (Part, error) {
	var p Part
	err := row.Scan(&p.ID, &p.BoutiqueID, &p.Reference, &p.Barcode, &p.Name, &p.Description, &p.Brand,
		&p.PurchasePrice, &p.SalePrice, &p.Stock, &p.StockMin, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, shared.ErrNotFound
		}
		return Part{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	where := ` WHERE boutique_id = $1`
	args := []any{filters.BoutiqueID}

	if filters.Search != "" {
		args = append(args, "%"+FoldSearchTerm(filters.Search)+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (search_text LIKE $` + n + ` OR barcode = $` + strconv.Itoa(len(args)+1) + `)`
		args = append(args, filters.Search)
	}
	if filters.LowStock {
		where += ` AND stock <= stock_min`
	}
	if filters.Active != nil {
		args = append(args, *filters.Active)
		where += ` AND active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM parts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + partColumns + ` FROM parts` + where + ` ORDER BY reference ASC`
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	parts := []Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return parts, total, nil
}

func (r *repository) Get(ctx context.Context, boutiqueID, id int64) (Part, error) {
	return scanPart(r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE id=$1 AND boutique_id=$2`, id, boutiqueID))
}

func (r *repository) GetByReference(ctx context.Context, boutiqueID int64, reference string) (Part, error) {
	return scanPart(r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM parts WHERE reference=$1 AND boutique_id=$2`, reference, boutiqueID))
}

func (r *repository) Create(ctx context.Context, part Part) (Part, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO parts
(boutique_id, reference, barcode, name, description, brand, purchase_price, sale_price, stock, stock_min, active, search_text, created_at, updated_at)
VALUES ($1,$2,NULLIF($3,''),$4,NULLIF($5,''),NULLIF($6,''),$7,$8,$9,$10,true,$11,NOW(),NOW())
RETURNING `+partColumns,
		part.BoutiqueID, part.Reference, part.Barcode, part.Name, part.Description, part.Brand,
		part.PurchasePrice, part.SalePrice, part.Stock, part.StockMin,
		FoldSearchTerm(part.Reference+" "+part.Name+" "+part.Brand))
	return scanPart(row)
}

func (r *repository) Update(ctx context.Context, part Part) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parts SET
barcode=NULLIF($3,''), name=$4, description=NULLIF($5,''), brand=NULLIF($6,''),
purchase_price=$7, sale_price=$8, stock_min=$9,
search_text=$10, updated_at=NOW()
WHERE id=$1 AND boutique_id=$2`,
		part.ID, part.BoutiqueID, part.Barcode, part.Name, part.Description, part.Brand,
		part.PurchasePrice, part.SalePrice, part.StockMin,
		FoldSearchTerm(part.Reference+" "+part.Name+" "+part.Brand))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, boutiqueID, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parts SET active=$3, updated_at=NOW() WHERE id=$1 AND boutique_id=$2`, id, boutiqueID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListLowStock(ctx context.Context, boutiqueID int64) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partColumns+` FROM parts
WHERE boutique_id=$1 AND active AND stock <= stock_min
ORDER BY stock - stock_min ASC, reference ASC`, boutiqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	parts := []Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}
