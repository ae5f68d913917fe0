package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// NewTxStore binds the engine capability interface to an open pgx transaction.
// Document orchestrators call this with their own transaction so the document
// rows and the ledger rows share one commit.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetPartForUpdate(ctx context.Context, boutiqueID, partID int64) (Part, error) {
	var p Part
	err := s.tx.QueryRow(ctx, `SELECT id, boutique_id, reference, name, stock, stock_min
FROM parts WHERE id=$1 AND boutique_id=$2 FOR UPDATE`, partID, boutiqueID).
		Scan(&p.ID, &p.BoutiqueID, &p.Reference, &p.Name, &p.Stock, &p.StockMin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, ErrPartNotFound
		}
		return Part{}, err
	}
	return p, nil
}

func (s *txStore) UpdatePartStock(ctx context.Context, partID, stock int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE parts SET stock=$2, updated_at=NOW() WHERE id=$1`, partID, stock)
	return err
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements
(part_id, boutique_id, movement_type, quantity, quantity_before, quantity_after, reason, document_ref, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.PartID, m.BoutiqueID, string(m.Type), m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.Reason, nullString(m.DocumentRef), nullInt(m.ActorID), m.CreatedAt).Scan(&id)
	return id, err
}

// ListMovements returns movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, part_id, boutique_id, movement_type, quantity, quantity_before, quantity_after, reason, COALESCE(document_ref,''), COALESCE(actor_id,0), created_at
FROM stock_movements
WHERE boutique_id=$1
  AND ($2::bigint IS NULL OR part_id=$2)
  AND ($3::text IS NULL OR movement_type=$3)
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`,
		filter.BoutiqueID, nullInt(filter.PartID), nullMovementType(filter.Type),
		nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.PartID, &m.BoutiqueID, &m.Type, &m.Quantity, &m.QuantityBefore,
			&m.QuantityAfter, &m.Reason, &m.DocumentRef, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// CountMovements returns the total for pagination.
func (r *Repository) CountMovements(ctx context.Context, filter MovementFilter) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stock_movements
WHERE boutique_id=$1
  AND ($2::bigint IS NULL OR part_id=$2)
  AND ($3::text IS NULL OR movement_type=$3)
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')`,
		filter.BoutiqueID, nullInt(filter.PartID), nullMovementType(filter.Type),
		nullTime(filter.From), nullTime(filter.To)).Scan(&total)
	return total, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullMovementType(t MovementType) any {
	if t == "" {
		return nil
	}
	return string(t)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
