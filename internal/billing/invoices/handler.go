package invoices

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/httpx"
)

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.handleCreate)
	r.Get("/invoices", h.handleList)
	r.Get("/invoices/{id}", h.handleGet)
	r.Post("/invoices/{id}/finalize", h.handleFinalize)
	r.Post("/invoices/{id}/payments", h.handlePayment)
	r.Post("/invoices/{id}/cancel", h.handleCancel)
}

type lineRequest struct {
	PartID          int64  `json:"part_id" validate:"required"`
	Description     string `json:"description" validate:"required,max=500"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	DiscountPercent string `json:"discount_percent" validate:"omitempty"`
	TaxPercent      string `json:"tax_percent" validate:"omitempty"`
}

type createRequest struct {
	ClientID   int64         `json:"client_id"`
	ClientName string        `json:"client_name" validate:"required,max=200"`
	Notes      string        `json:"notes" validate:"omitempty,max=1000"`
	Draft      bool          `json:"draft"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type invoiceResponse struct {
	Invoice Invoice `json:"invoice"`
	Lines   []Line  `json:"lines,omitempty"`
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	input := CreateInput{
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Notes:      req.Notes,
		Draft:      req.Draft,
		Reference:  r.Header.Get("Idempotency-Key"),
		Lines:      make([]LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		unitPrice, ok := parseAmount(line.UnitPrice)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_price")
			return
		}
		discount, ok := parseAmount(line.DiscountPercent)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid discount_percent")
			return
		}
		tax, ok := parseAmount(line.TaxPercent)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tax_percent")
			return
		}
		input.Lines = append(input.Lines, LineInput{
			PartID:          line.PartID,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       unitPrice,
			DiscountPercent: discount,
			TaxPercent:      tax,
		})
	}

	inv, lines, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create invoice failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse{Invoice: inv, Lines: lines})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv, Lines: lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		filters.Status = Status(status)
	}
	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filters.From = t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filters.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			filters.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	invoices, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.Finalize(r.Context(), id)
	if err != nil {
		h.logger.Error("finalize invoice failed", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid amount")
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), id, PaymentInput{Amount: amount})
	if err != nil {
		h.logger.Error("record payment failed", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel invoice failed", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}
