package parts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Part represents a stock-keeping unit in the catalog. Stock is mutated only
// by the ledger engine; catalog writes never touch the stock column.
type Part struct {
	ID            int64           `json:"id"`
	BoutiqueID    int64           `json:"boutique_id"`
	Reference     string          `json:"reference"`
	Barcode       string          `json:"barcode,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Stock         int64           `json:"stock"`
	StockMin      int64           `json:"stock_min"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListFilters narrows part listings.
type ListFilters struct {
	BoutiqueID int64
	Search     string
	LowStock   bool
	Active     *bool
	Limit      int
	Offset     int
}
