package invoices

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/platform/db"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// TxRepository exposes the transactional operations the service composes with
// ledger calls. Ledger() binds the stock engine to the same transaction, so a
// failed movement rolls back the document and vice versa.
type TxRepository interface {
	NextNumber(ctx context.Context, boutiqueID int64) (string, error)
	InsertInvoice(ctx context.Context, invoice Invoice) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetForUpdate(ctx context.Context, boutiqueID, id int64) (Invoice, error)
	GetLines(ctx context.Context, invoiceID int64) ([]Line, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdatePayment(ctx context.Context, id int64, invoice Invoice) error
	MarkCancelled(ctx context.Context, id int64, cancelledBy int64, at time.Time) error
	Ledger() ledger.TxStore
}

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	sequencer *shared.DocumentSequencer
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, sequencer *shared.DocumentSequencer) *Repository {
	return &Repository{pool: pool, sequencer: sequencer}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, sequencer: r.sequencer})
	})
}

type txRepository struct {
	tx        pgx.Tx
	sequencer *shared.DocumentSequencer
}

func (r *txRepository) NextNumber(ctx context.Context, boutiqueID int64) (string, error) {
	return r.sequencer.NextInTx(ctx, r.tx, boutiqueID, "invoice", "FAC", time.Now())
}

func (r *txRepository) Ledger() ledger.TxStore {
	return ledger.NewTxStore(r.tx)
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices
(number, boutique_id, client_id, client_name, status, subtotal, tax_total, total, amount_paid, notes, created_by, created_at, updated_at)
VALUES ($1,$2,NULLIF($3,0),$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,NOW(),NOW()) RETURNING id`,
		inv.Number, inv.BoutiqueID, inv.ClientID, inv.ClientName, string(inv.Status),
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.AmountPaid, inv.Notes, inv.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines
(invoice_id, part_id, description, quantity, unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.InvoiceID, line.PartID, line.Description, line.Quantity, line.UnitPrice,
		line.DiscountPercent, line.TaxPercent, line.DiscountAmount, line.TaxAmount, line.LineTotal).Scan(&id)
	return id, err
}

const invoiceColumns = `id, number, boutique_id, COALESCE(client_id,0), client_name, status, subtotal, tax_total, total, amount_paid,
COALESCE(notes,''), created_by, COALESCE(cancelled_by,0), cancelled_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.BoutiqueID, &inv.ClientID, &inv.ClientName, &inv.Status,
		&inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.AmountPaid, &inv.Notes, &inv.CreatedBy,
		&inv.CancelledBy, &inv.CancelledAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, boutiqueID, id int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 AND boutique_id=$2 FOR UPDATE`, id, boutiqueID))
}

func (r *txRepository) GetLines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, invoiceID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) UpdatePayment(ctx context.Context, id int64, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, amount_paid=$3, updated_at=NOW() WHERE id=$1`,
		id, string(inv.Status), inv.AmountPaid)
	return err
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64, cancelledBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, cancelled_by=$3, cancelled_at=$4, updated_at=NOW() WHERE id=$1`,
		id, string(StatusAnnulee), cancelledBy, at)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, invoiceID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, part_id, description, quantity, unit_price, discount_percent, tax_percent, discount_amount, tax_amount, line_total
FROM invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.PartID, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.DiscountPercent, &l.TaxPercent, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one invoice with its lines.
func (r *Repository) Get(ctx context.Context, boutiqueID, id int64) (Invoice, []Line, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 AND boutique_id=$2`, id, boutiqueID))
	if err != nil {
		return Invoice{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, inv.ID)
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, lines, nil
}

// List returns invoice headers, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Invoice, int, error) {
	where := ` WHERE boutique_id = $1`
	args := []any{filters.BoutiqueID}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where + ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// PartAvailability is the unlocked stock snapshot behind the fast-fail
// pre-check. The engine's row-locked guard stays the authority.
type PartAvailability struct {
	PartID int64
	Name   string
	Stock  int64
}

// GetAvailability loads current stock for the given parts without locks.
func (r *Repository) GetAvailability(ctx context.Context, boutiqueID int64, partIDs []int64) (map[int64]PartAvailability, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, stock FROM parts WHERE boutique_id=$1 AND id = ANY($2)`, boutiqueID, partIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]PartAvailability, len(partIDs))
	for rows.Next() {
		var a PartAvailability
		if err := rows.Scan(&a.PartID, &a.Name, &a.Stock); err != nil {
			return nil, err
		}
		out[a.PartID] = a
	}
	return out, rows.Err()
}
