package counts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/syrax68/gestion-pieces-sub001/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory count sessions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the counts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers count session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory-counts", h.handleStart)
	r.Get("/inventory-counts", h.handleList)
	r.Get("/inventory-counts/{id}", h.handleGet)
	r.Put("/inventory-counts/{id}/lines/{lineID}", h.handleRecordCount)
	r.Post("/inventory-counts/{id}/validate", h.handleValidate)
	r.Post("/inventory-counts/{id}/cancel", h.handleCancel)
}

type startRequest struct {
	PartIDs []int64 `json:"part_ids"`
}

type recordCountRequest struct {
	Counted int64 `json:"counted" validate:"gte=0"`
}

type sessionResponse struct {
	Session Session    `json:"session"`
	Lines   []LineItem `json:"lines,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
			return
		}
	}
	session, lines, err := h.service.Start(r.Context(), req.PartIDs)
	if err != nil {
		h.logger.Error("start inventory count failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse{Session: session, Lines: lines})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	session, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Session: session, Lines: lines})
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

	sessions, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

func (h *Handler) handleRecordCount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return
	}
	var req recordCountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.RecordCount(r.Context(), id, lineID, req.Counted)
	if err != nil {
		h.logger.Error("record count failed",
			slog.Int64("session_id", id),
			slog.Int64("line_id", lineID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	session, err := h.service.Validate(r.Context(), id)
	if err != nil {
		h.logger.Error("validate inventory count failed", slog.Int64("session_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Session: session})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	session, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel inventory count failed", slog.Int64("session_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Session: session})
}
