package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/httpx"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Handler wires HTTP endpoints for direct ledger operations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handlePostMovement)
	r.Get("/movements", h.handleListMovements)
}

type postMovementRequest struct {
	PartID      int64  `json:"part_id" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"gte=0"`
	Reason      string `json:"reason" validate:"required,max=500"`
	DocumentRef string `json:"document_ref" validate:"omitempty,max=100"`
}

type movementResponse struct {
	QuantityBefore int64 `json:"quantity_before"`
	QuantityAfter  int64 `json:"quantity_after"`
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	var req postMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Post(r.Context(), MovementInput{
		PartID:      req.PartID,
		BoutiqueID:  scope.BoutiqueID,
		Type:        MovementType(req.Type),
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		DocumentRef: req.DocumentRef,
		ActorID:     scope.UserID,
	})
	if err != nil {
		h.logger.Error("post movement failed",
			slog.Int64("part_id", req.PartID),
			slog.String("type", req.Type),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse{
		QuantityBefore: result.QuantityBefore,
		QuantityAfter:  result.QuantityAfter,
	})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrBoutiqueScope)
		return
	}
	filter := MovementFilter{BoutiqueID: scope.BoutiqueID}
	q := r.URL.Query()
	if partStr := q.Get("part_id"); partStr != "" {
		id, err := strconv.ParseInt(partStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part_id")
			return
		}
		filter.PartID = id
	}
	if typeStr := q.Get("type"); typeStr != "" {
		filter.Type = MovementType(typeStr)
	}
	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	movements, pagination, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements":  movements,
		"pagination": pagination,
	})
}
