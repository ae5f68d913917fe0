package parts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/httpx"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Handler wires HTTP endpoints for the parts catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the parts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Post("/{id}/deactivate", h.handleDeactivate)
	r.Post("/{id}/reactivate", h.handleReactivate)
}

type partRequest struct {
	Reference     string `json:"reference" validate:"required,max=60"`
	Barcode       string `json:"barcode" validate:"omitempty,max=60"`
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Brand         string `json:"brand" validate:"max=100"`
	PurchasePrice string `json:"purchase_price" validate:"omitempty"`
	SalePrice     string `json:"sale_price" validate:"omitempty"`
	Stock         int64  `json:"stock" validate:"gte=0"`
	StockMin      int64  `json:"stock_min" validate:"gte=0"`
}

func (h *Handler) decodePart(r *http.Request, boutiqueID int64) (Part, error) {
	var req partRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Part{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return Part{}, err
	}
	part := Part{
		BoutiqueID:  boutiqueID,
		Reference:   req.Reference,
		Barcode:     req.Barcode,
		Name:        req.Name,
		Description: req.Description,
		Brand:       req.Brand,
		Stock:       req.Stock,
		StockMin:    req.StockMin,
	}
	var err error
	if req.PurchasePrice != "" {
		if part.PurchasePrice, err = decimal.NewFromString(req.PurchasePrice); err != nil {
			return Part{}, err
		}
	}
	if req.SalePrice != "" {
		if part.SalePrice, err = decimal.NewFromString(req.SalePrice); err != nil {
			return Part{}, err
		}
	}
	return part, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	filters := ListFilters{BoutiqueID: scope.BoutiqueID, Search: r.URL.Query().Get("q")}
	if r.URL.Query().Get("low_stock") == "1" {
		filters.LowStock = true
	}
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		active := activeStr == "1" || activeStr == "true"
		filters.Active = &active
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset >= 0 {
		filters.Offset = offset
	}

	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list parts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parts": list, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	part, err := h.service.Get(r.Context(), scope.BoutiqueID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	part, err := h.decodePart(r, scope.BoutiqueID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), part)
	if err != nil {
		h.logger.Error("create part failed", slog.String("reference", part.Reference), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	part, err := h.decodePart(r, scope.BoutiqueID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	part.ID = id
	if err := h.service.Update(r.Context(), part); err != nil {
		h.logger.Error("update part failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	if active {
		err = h.service.Reactivate(r.Context(), scope.BoutiqueID, id)
	} else {
		err = h.service.Deactivate(r.Context(), scope.BoutiqueID, id)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"active": active})
}
