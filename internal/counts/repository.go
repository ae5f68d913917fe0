package counts

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

// TxRepository is the transactional surface for count session writes.
type TxRepository interface {
	NextNumber(ctx context.Context, boutiqueID int64) (string, error)
	SnapshotParts(ctx context.Context, boutiqueID int64, partIDs []int64) ([]LineItem, error)
	InsertSession(ctx context.Context, session Session) (int64, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	GetSessionForUpdate(ctx context.Context, boutiqueID, id int64) (Session, error)
	GetLineForUpdate(ctx context.Context, sessionID, lineID int64) (LineItem, error)
	GetLines(ctx context.Context, sessionID int64) ([]LineItem, error)
	UpdateLine(ctx context.Context, line LineItem) error
	MarkValidated(ctx context.Context, id int64, totalVariance int64, at time.Time) error
	MarkCancelled(ctx context.Context, id int64, at time.Time) error
	Ledger() ledger.TxStore
}

// Repository persists count sessions in PostgreSQL.
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
	return r.sequencer.NextInTx(ctx, r.tx, boutiqueID, "inventory_count", "INV", time.Now())
}

func (r *txRepository) Ledger() ledger.TxStore {
	return ledger.NewTxStore(r.tx)
}

// SnapshotParts freezes theoretical quantities for the session. An empty
// partIDs slice snapshots every active part of the boutique.
func (r *txRepository) SnapshotParts(ctx context.Context, boutiqueID int64, partIDs []int64) ([]LineItem, error) {
	query := `SELECT id, reference, name, stock FROM parts WHERE boutique_id=$1 AND active`
	args := []any{boutiqueID}
	if len(partIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, partIDs)
	}
	query += ` ORDER BY reference ASC`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.PartID, &item.Reference, &item.Name, &item.Theoretical); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertSession(ctx context.Context, session Session) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_counts
(number, boutique_id, status, total_variance, created_by, created_at, updated_at)
VALUES ($1,$2,$3,0,$4,NOW(),NOW()) RETURNING id`,
		session.Number, session.BoutiqueID, string(session.Status), session.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_count_lines
(session_id, part_id, reference, name, theoretical, counted, variance, validated)
VALUES ($1,$2,$3,$4,$5,NULL,0,false) RETURNING id`,
		line.SessionID, line.PartID, line.Reference, line.Name, line.Theoretical).Scan(&id)
	return id, err
}

const sessionColumns = `id, number, boutique_id, status, total_variance, created_by, completed_at, created_at, updated_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Number, &s.BoutiqueID, &s.Status, &s.TotalVariance, &s.CreatedBy, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *txRepository) GetSessionForUpdate(ctx context.Context, boutiqueID, id int64) (Session, error) {
	return scanSession(r.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_counts WHERE id=$1 AND boutique_id=$2 FOR UPDATE`, id, boutiqueID))
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, sessionID, lineID int64) (LineItem, error) {
	var l LineItem
	err := r.tx.QueryRow(ctx, `SELECT id, session_id, part_id, reference, name, theoretical, counted, variance, validated
FROM inventory_count_lines WHERE id=$1 AND session_id=$2 FOR UPDATE`, lineID, sessionID).
		Scan(&l.ID, &l.SessionID, &l.PartID, &l.Reference, &l.Name, &l.Theoretical, &l.Counted, &l.Variance, &l.Validated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, shared.ErrNotFound
		}
		return LineItem{}, err
	}
	return l, nil
}

func (r *txRepository) GetLines(ctx context.Context, sessionID int64) ([]LineItem, error) {
	return queryLines(ctx, r.tx, sessionID)
}

func (r *txRepository) UpdateLine(ctx context.Context, line LineItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_count_lines SET counted=$2, variance=$3, validated=$4 WHERE id=$1`,
		line.ID, line.Counted, line.Variance, line.Validated)
	return err
}

func (r *txRepository) MarkValidated(ctx context.Context, id int64, totalVariance int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_counts SET status=$2, total_variance=$3, completed_at=$4, updated_at=NOW() WHERE id=$1`,
		id, string(StatusValide), totalVariance, at)
	return err
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_counts SET status=$2, completed_at=$3, updated_at=NOW() WHERE id=$1`,
		id, string(StatusAnnule), at)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, sessionID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, session_id, part_id, reference, name, theoretical, counted, variance, validated
FROM inventory_count_lines WHERE session_id=$1 ORDER BY reference ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []LineItem{}
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.SessionID, &l.PartID, &l.Reference, &l.Name, &l.Theoretical, &l.Counted, &l.Variance, &l.Validated); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get loads one session with its lines.
func (r *Repository) Get(ctx context.Context, boutiqueID, id int64) (Session, []LineItem, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_counts WHERE id=$1 AND boutique_id=$2`, id, boutiqueID))
	if err != nil {
		return Session{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, session.ID)
	if err != nil {
		return Session{}, nil, err
	}
	return session, lines, nil
}

// List returns session headers, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Session, int, error) {
	where := ` WHERE boutique_id = $1`
	args := []any{filters.BoutiqueID}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM inventory_counts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := `SELECT ` + sessionColumns + ` FROM inventory_counts` + where + ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, session)
	}
	return out, total, rows.Err()
}
