package invoices

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the invoice state machine. Stock is decremented when the invoice
// leaves BROUILLON, never at payment time: issuing the document is the
// fulfillment event.
type Status string

const (
	StatusBrouillon           Status = "BROUILLON"
	StatusEnAttente           Status = "EN_ATTENTE"
	StatusPayee               Status = "PAYEE"
	StatusPartiellementPayee  Status = "PARTIELLEMENT_PAYEE"
	StatusAnnulee             Status = "ANNULEE"
)

// Invoice is the document header.
type Invoice struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	BoutiqueID  int64           `json:"boutique_id"`
	ClientID    int64           `json:"client_id,omitempty"`
	ClientName  string          `json:"client_name"`
	Status      Status          `json:"status"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	Total       decimal.Decimal `json:"total"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"created_by"`
	CancelledBy int64           `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Line is one invoiced part.
type Line struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	PartID          int64           `json:"part_id"`
	Description     string          `json:"description"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// ListFilters narrows invoice listings.
type ListFilters struct {
	BoutiqueID int64
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
