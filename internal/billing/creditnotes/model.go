package creditnotes

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the credit note state machine. Stock comes back on validation,
// never on refund: VALIDE is the physical event, REMBOURSE the monetary one.
type Status string

const (
	StatusEnAttente Status = "EN_ATTENTE"
	StatusValide    Status = "VALIDE"
	StatusRembourse Status = "REMBOURSE"
)

// CreditNote is the document header. An avoir always references the invoice
// it compensates.
type CreditNote struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	BoutiqueID    int64           `json:"boutique_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	Status        Status          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	Reason        string          `json:"reason"`
	CreatedBy     int64           `json:"created_by"`
	ValidatedBy   int64           `json:"validated_by,omitempty"`
	ValidatedAt   *time.Time      `json:"validated_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is one credited part. Returnable marks lines whose goods physically
// come back to the shelf; a damaged part is credited but not restocked.
type Line struct {
	ID           int64           `json:"id"`
	CreditNoteID int64           `json:"credit_note_id"`
	PartID       int64           `json:"part_id"`
	Description  string          `json:"description"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Returnable   bool            `json:"returnable"`
}

// ListFilters narrows credit note listings.
type ListFilters struct {
	BoutiqueID int64
	Status     Status
	Limit      int
	Offset     int
}
