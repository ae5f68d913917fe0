package creditnotes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/httpx"
)

// Handler wires HTTP endpoints for credit notes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the credit note handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers credit note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/credit-notes", h.handleCreate)
	r.Get("/credit-notes", h.handleList)
	r.Get("/credit-notes/{id}", h.handleGet)
	r.Post("/credit-notes/{id}/validate", h.handleValidate)
	r.Post("/credit-notes/{id}/refund", h.handleRefund)
}

type lineRequest struct {
	PartID      int64  `json:"part_id" validate:"required"`
	Description string `json:"description" validate:"required,max=500"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice   string `json:"unit_price" validate:"required"`
	Returnable  bool   `json:"returnable"`
}

type createRequest struct {
	InvoiceNumber string        `json:"invoice_number" validate:"required,max=100"`
	ClientName    string        `json:"client_name" validate:"omitempty,max=200"`
	Reason        string        `json:"reason" validate:"required,max=500"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type creditNoteResponse struct {
	CreditNote CreditNote `json:"credit_note"`
	Lines      []Line     `json:"lines,omitempty"`
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
		InvoiceNumber: req.InvoiceNumber,
		ClientName:    req.ClientName,
		Reason:        req.Reason,
		Reference:     r.Header.Get("Idempotency-Key"),
		Lines:         make([]LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		unitPrice, err := decimal.NewFromString(line.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_price")
			return
		}
		input.Lines = append(input.Lines, LineInput{
			PartID:      line.PartID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			Returnable:  line.Returnable,
		})
	}

	note, lines, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create credit note failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, creditNoteResponse{CreditNote: note, Lines: lines})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid credit note id")
		return
	}
	note, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, creditNoteResponse{CreditNote: note, Lines: lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		filters.Status = Status(status)
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

	notes, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"credit_notes": notes,
		"total":        total,
		"limit":        filters.Limit,
		"offset":       filters.Offset,
	})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid credit note id")
		return
	}
	note, err := h.service.Validate(r.Context(), id)
	if err != nil {
		h.logger.Error("validate credit note failed", slog.Int64("credit_note_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, creditNoteResponse{CreditNote: note})
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid credit note id")
		return
	}
	note, err := h.service.Refund(r.Context(), id)
	if err != nil {
		h.logger.Error("refund credit note failed", slog.Int64("credit_note_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, creditNoteResponse{CreditNote: note})
}
