package recon

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quipu-erp/quipu-erp/internal/platform/httpx"
	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// Handler wires JSON endpoints for the reconciliation matcher.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reconciliation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{bankAccountID}/{periodID}", func(r chi.Router) {
		r.Get("/unreconciled", h.listUnreconciled)
		r.Get("/suggestions", h.suggest)
		r.Post("/matches", h.match)
		r.Post("/matches/bulk", h.bulkMatch)
		r.Post("/finalize", h.finalize)
		r.Get("/summary", h.summary)
	})
	r.Delete("/matches/{transactionID}", h.unmatch)
}

func (h *Handler) listUnreconciled(w http.ResponseWriter, r *http.Request) {
	bankAccountID, periodID, ok := h.scope(w, r)
	if !ok {
		return
	}
	txns, lines, err := h.service.ListUnreconciled(r.Context(), bankAccountID, periodID)
	if err != nil {
		h.respondError(w, "list unreconciled", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"lines":        lines,
	})
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	bankAccountID, periodID, ok := h.scope(w, r)
	if !ok {
		return
	}
	suggestions, err := h.service.Suggest(r.Context(), bankAccountID, periodID)
	if err != nil {
		h.respondError(w, "suggest matches", err)
		return
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

type matchRequest struct {
	TransactionID int64 `json:"transactionId" validate:"required"`
	LineID        int64 `json:"lineId" validate:"required"`
	// Capability flag resolved by the authorization layer upstream.
	AllowAmountMismatch bool `json:"allowAmountMismatch,omitempty"`
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	match, err := h.service.MatchPair(r.Context(), MatchInput{
		TransactionID: req.TransactionID,
		LineID:        req.LineID,
		ActorID:       shared.ActorFromContext(r.Context()),
		AllowMismatch: req.AllowAmountMismatch,
	})
	if err != nil {
		h.respondError(w, "match pair", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, match)
}

type bulkMatchRequest struct {
	Pairs               []Pair `json:"pairs" validate:"required,min=1"`
	AllowAmountMismatch bool   `json:"allowAmountMismatch,omitempty"`
}

func (h *Handler) bulkMatch(w http.ResponseWriter, r *http.Request) {
	var req bulkMatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.BulkMatch(r.Context(), BulkMatchInput{
		Pairs:         req.Pairs,
		ActorID:       shared.ActorFromContext(r.Context()),
		AllowMismatch: req.AllowAmountMismatch,
	})
	if err != nil {
		h.respondError(w, "bulk match", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) unmatch(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(chi.URLParam(r, "transactionID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	if err := h.service.Unmatch(r.Context(), transactionID, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "unmatch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type finalizeRequest struct {
	PendingDebits  float64 `json:"pendingDebits" validate:"gte=0"`
	PendingCredits float64 `json:"pendingCredits" validate:"gte=0"`
	Notes          string  `json:"notes,omitempty"`
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	bankAccountID, periodID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	summary, err := h.service.Finalize(r.Context(), FinalizeInput{
		BankAccountID:  bankAccountID,
		PeriodID:       periodID,
		PendingDebits:  req.PendingDebits,
		PendingCredits: req.PendingCredits,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "finalize reconciliation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	bankAccountID, periodID, ok := h.scope(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetSummary(r.Context(), bankAccountID, periodID)
	if err != nil {
		h.respondError(w, "reconciliation summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	bankAccountID, err := strconv.ParseInt(chi.URLParam(r, "bankAccountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bank account id")
		return 0, 0, false
	}
	periodID, err := strconv.ParseInt(chi.URLParam(r, "periodID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return 0, 0, false
	}
	return bankAccountID, periodID, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrState) &&
		!errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
