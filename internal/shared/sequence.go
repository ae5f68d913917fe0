package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentSequencer hands out gapless per-boutique, per-document-type numbers
// from a dedicated counter row. The counter is incremented with a single upsert
// returning the new value, so two concurrent document creations can never
// observe the same "next" number the way a count(*)-based generator would.
type DocumentSequencer struct {
	pool *pgxpool.Pool
}

// NewDocumentSequencer constructs the sequencer.
func NewDocumentSequencer(pool *pgxpool.Pool) *DocumentSequencer {
	return &DocumentSequencer{pool: pool}
}

const nextSequenceSQL = `INSERT INTO document_sequences (boutique_id, doc_type, year, value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (boutique_id, doc_type, year)
DO UPDATE SET value = document_sequences.value + 1
RETURNING value`

// Next allocates the next number outside any caller transaction.
func (s *DocumentSequencer) Next(ctx context.Context, boutiqueID int64, docType, prefix string, at time.Time) (string, error) {
	if s == nil {
		return "", errors.New("document sequencer not initialised")
	}
	var value int64
	year := at.Year()
	if err := s.pool.QueryRow(ctx, nextSequenceSQL, boutiqueID, docType, year).Scan(&value); err != nil {
		return "", err
	}
	return formatDocNumber(prefix, year, value), nil
}

// NextInTx allocates the next number inside the caller's transaction, so an
// aborted document creation releases the number together with everything else.
func (s *DocumentSequencer) NextInTx(ctx context.Context, tx pgx.Tx, boutiqueID int64, docType, prefix string, at time.Time) (string, error) {
	var value int64
	year := at.Year()
	if err := tx.QueryRow(ctx, nextSequenceSQL, boutiqueID, docType, year).Scan(&value); err != nil {
		return "", err
	}
	return formatDocNumber(prefix, year, value), nil
}

func formatDocNumber(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, value)
}
