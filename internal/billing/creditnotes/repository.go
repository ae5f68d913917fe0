package creditnotes

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

// TxRepository is the transactional surface for credit note writes.
type TxRepository interface {
	NextNumber(ctx context.Context, boutiqueID int64) (string, error)
	InsertCreditNote(ctx context.Context, note CreditNote) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetForUpdate(ctx context.Context, boutiqueID, id int64) (CreditNote, error)
	GetLines(ctx context.Context, creditNoteID int64) ([]Line, error)
	MarkValidated(ctx context.Context, id int64, validatedBy int64, at time.Time) error
	MarkRefunded(ctx context.Context, id int64, at time.Time) error
	Ledger() ledger.TxStore
}

// Repository persists credit notes in PostgreSQL.
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
	return r.sequencer.NextInTx(ctx, r.tx, boutiqueID, "credit_note", "AVR", time.Now())
}

func (r *txRepository) Ledger() ledger.TxStore {
	return ledger.NewTxStore(r.tx)
}

func (r *txRepository) InsertCreditNote(ctx context.Context, note CreditNote) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credit_notes
(number, boutique_id, invoice_number, client_name, status, total, reason, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		note.Number, note.BoutiqueID, note.InvoiceNumber, note.ClientName,
		string(note.Status), note.Total, note.Reason, note.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credit_note_lines
(credit_note_id, part_id, description, quantity, unit_price, line_total, returnable)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		line.CreditNoteID, line.PartID, line.Description, line.Quantity,
		line.UnitPrice, line.LineTotal, line.Returnable).Scan(&id)
	return id, err
}

const creditNoteColumns = `id, number, boutique_id, invoice_number, client_name, status, total, reason,
created_by, COALESCE(validated_by,0), validated_at, refunded_at, created_at, updated_at`

func scanCreditNote(row pgx.Row) (CreditNote, error) {
	var note CreditNote
	err := row.Scan(&note.ID, &note.Number, &note.BoutiqueID, &note.InvoiceNumber, &note.ClientName,
		&note.Status, &note.Total, &note.Reason, &note.CreatedBy, &note.ValidatedBy,
		&note.ValidatedAt, &note.RefundedAt, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditNote{}, shared.ErrNotFound
		}
		return CreditNote{}, err
	}
	return note, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, boutiqueID, id int64) (CreditNote, error) {
	return scanCreditNote(r.tx.QueryRow(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes WHERE id=$1 AND boutique_id=$2 FOR UPDATE`, id, boutiqueID))
}

func (r *txRepository) GetLines(ctx context.Context, creditNoteID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, creditNoteID)
}

func (r *txRepository) MarkValidated(ctx context.Context, id int64, validatedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE credit_notes SET status=$2, validated_by=$3, validated_at=$4, updated_at=NOW() WHERE id=$1`,
		id, string(StatusValide), validatedBy, at)
	return err
}

func (r *txRepository) MarkRefunded(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE credit_notes SET status=$2, refunded_at=$3, updated_at=NOW() WHERE id=$1`,
		id, string(StatusRembourse), at)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, creditNoteID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, credit_note_id, part_id, description, quantity, unit_price, line_total, returnable
FROM credit_note_lines WHERE credit_note_id=$1 ORDER BY id ASC`, creditNoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CreditNoteID, &l.PartID, &l.Description, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.Returnable); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one credit note with its lines.
func (r *Repository) Get(ctx context.Context, boutiqueID, id int64) (CreditNote, []Line, error) {
	note, err := scanCreditNote(r.pool.QueryRow(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes WHERE id=$1 AND boutique_id=$2`, id, boutiqueID))
	if err != nil {
		return CreditNote{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, note.ID)
	if err != nil {
		return CreditNote{}, nil, err
	}
	return note, lines, nil
}

// List returns credit note headers, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]CreditNote, int, error) {
	where := ` WHERE boutique_id = $1`
	args := []any{filters.BoutiqueID}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM credit_notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := `SELECT ` + creditNoteColumns + ` FROM credit_notes` + where + ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []CreditNote{}
	for rows.Next() {
		note, err := scanCreditNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, note)
	}
	return out, total, rows.Err()
}
