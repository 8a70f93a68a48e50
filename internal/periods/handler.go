package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quipu-erp/quipu-erp/internal/platform/httpx"
	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// Handler wires JSON endpoints for the period lifecycle.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers period routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/validation", h.validate)
	r.Post("/{id}/close", h.close)
	r.Post("/{id}/reopen", h.reopen)
}

type periodResponse struct {
	ID           int64  `json:"id"`
	CompanyID    int64  `json:"companyId"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	Status       string `json:"status"`
	ClosedAt     string `json:"closedAt,omitempty"`
	CloseReason  string `json:"closeReason,omitempty"`
	ReopenedAt   string `json:"reopenedAt,omitempty"`
	ReopenReason string `json:"reopenReason,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("companyId"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "companyId is required")
		return
	}
	list, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	report, err := h.service.Validate(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("validate period", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type closeRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	var req closeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	period, err := h.service.Close(r.Context(), id, CloseInput{
		ActorID: shared.ActorFromContext(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		if ve, ok := IsValidationError(err); ok {
			// Surface every blocking violation plus the structured report.
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
				"title":  "Close Validation Failed",
				"status": http.StatusUnprocessableEntity,
				"errors": ve.Report.Errors,
				"report": ve.Report,
			})
			return
		}
		if !errors.Is(err, shared.ErrState) && !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("close period", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	var req closeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	period, err := h.service.Reopen(r.Context(), id, ReopenInput{
		ActorID: shared.ActorFromContext(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func toPeriodResponse(p Period) periodResponse {
	out := periodResponse{
		ID:           p.ID,
		CompanyID:    p.CompanyID,
		Year:         p.Year,
		Month:        p.Month,
		Status:       string(p.Status),
		CloseReason:  p.CloseReason,
		ReopenReason: p.ReopenReason,
	}
	if p.ClosedAt != nil {
		out.ClosedAt = p.ClosedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if p.ReopenedAt != nil {
		out.ReopenedAt = p.ReopenedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}
