package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quipu-erp/quipu-erp/internal/platform/httpx"
	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// Handler wires JSON endpoints for the posting engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers journal entry routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/{id}", h.get)
	r.Post("/{id}/void", h.void)
	r.Get("/{id}/integrity", h.integrity)
}

type draftLineRequest struct {
	AccountCode  string  `json:"accountCode" validate:"required"`
	ThirdPartyID *int64  `json:"thirdPartyId,omitempty"`
	CostCenterID *int64  `json:"costCenterId,omitempty"`
	Debit        float64 `json:"debit" validate:"gte=0"`
	Credit       float64 `json:"credit" validate:"gte=0"`
	Memo         string  `json:"memo,omitempty"`
}

type postEntryRequest struct {
	CompanyID    int64              `json:"companyId" validate:"required"`
	Date         string             `json:"date" validate:"required,datetime=2006-01-02"`
	Glosa        string             `json:"glosa" validate:"required"`
	Currency     string             `json:"currency" validate:"required,len=3"`
	ExchangeRate float64            `json:"exchangeRate" validate:"required,gt=0"`
	Origin       string             `json:"origin" validate:"required"`
	SourceID     string             `json:"sourceId,omitempty"`
	Lines        []draftLineRequest `json:"lines" validate:"required,min=2,dive"`
	// Capability flag resolved by the authorization layer upstream.
	AllowClosedPeriodOverride bool `json:"allowClosedPeriodOverride,omitempty"`
}

type entryResponse struct {
	ID            int64          `json:"id"`
	PeriodID      int64          `json:"periodId"`
	CompanyID     int64          `json:"companyId"`
	Date          string         `json:"date"`
	Glosa         string         `json:"glosa"`
	Currency      string         `json:"currency"`
	ExchangeRate  float64        `json:"exchangeRate"`
	Origin        string         `json:"origin"`
	Status        string         `json:"status"`
	IntegrityHash string         `json:"integrityHash"`
	Lines         []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	ID           int64   `json:"id"`
	AccountCode  string  `json:"accountCode"`
	ThirdPartyID *int64  `json:"thirdPartyId,omitempty"`
	CostCenterID *int64  `json:"costCenterId,omitempty"`
	Debit        float64 `json:"debit"`
	Credit       float64 `json:"credit"`
	Memo         string  `json:"memo,omitempty"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid posting request", validationMessages(err))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid date")
		return
	}
	draft := DraftEntry{
		CompanyID:    req.CompanyID,
		Date:         date,
		Glosa:        req.Glosa,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		Origin:       EntryOrigin(req.Origin),
		PostedBy:     shared.ActorFromContext(r.Context()),
	}
	if req.SourceID != "" {
		sourceID, err := uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid source id")
			return
		}
		draft.SourceID = sourceID
	}
	for _, line := range req.Lines {
		draft.Lines = append(draft.Lines, DraftLine{
			AccountCode:  line.AccountCode,
			ThirdPartyID: line.ThirdPartyID,
			CostCenterID: line.CostCenterID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Memo:         line.Memo,
		})
	}

	entry, err := h.service.Post(r.Context(), draft, PostOptions{AllowClosedPeriod: req.AllowClosedPeriodOverride})
	if err != nil {
		h.respondDomainError(w, r, "post journal entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

type voidEntryRequest struct {
	Reason                    string `json:"reason,omitempty"`
	AllowClosedPeriodOverride bool   `json:"allowClosedPeriodOverride,omitempty"`
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req voidEntryRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	entry, err := h.service.Void(r.Context(), id, VoidOptions{
		ActorID:           shared.ActorFromContext(r.Context()),
		Reason:            req.Reason,
		AllowClosedPeriod: req.AllowClosedPeriodOverride,
	})
	if err != nil {
		h.respondDomainError(w, r, "void journal entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, "get journal entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		CompanyID: queryInt64(r, "companyId"),
		PeriodID:  queryInt64(r, "periodId"),
		Status:    EntryStatus(r.URL.Query().Get("status")),
		Origin:    EntryOrigin(r.URL.Query().Get("origin")),
		Limit:     int(queryInt64(r, "limit")),
		Offset:    int(queryInt64(r, "offset")),
	}
	if filter.CompanyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "companyId is required")
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondDomainError(w, r, "list journal entries", err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	err = h.service.VerifyIntegrity(r.Context(), id)
	var mismatch IntegrityError
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"entryId": id, "intact": true})
	case errors.As(err, &mismatch):
		httpx.JSON(w, http.StatusOK, map[string]any{"entryId": id, "intact": false})
	default:
		h.respondDomainError(w, r, "verify integrity", err)
	}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrState) &&
		!errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) &&
		!errors.Is(err, shared.ErrIntegrity) {
		h.logger.Error(op, slog.Any("error", err))
	}

	var draftErr DraftValidationError
	if errors.As(err, &draftErr) {
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid draft", draftErr.Issues)
		return
	}
	var acctErr AccountValidationError
	if errors.As(err, &acctErr) {
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Validation Failed", "unknown or inactive accounts", acctErr.Codes)
		return
	}
	httpx.RespondError(w, err)
}

func toEntryResponse(entry JournalEntry) entryResponse {
	out := entryResponse{
		ID:            entry.ID,
		PeriodID:      entry.PeriodID,
		CompanyID:     entry.CompanyID,
		Date:          entry.Date.Format("2006-01-02"),
		Glosa:         entry.Glosa,
		Currency:      entry.Currency,
		ExchangeRate:  entry.ExchangeRate,
		Origin:        string(entry.Origin),
		Status:        string(entry.Status),
		IntegrityHash: entry.IntegrityHash,
	}
	for _, line := range entry.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:           line.ID,
			AccountCode:  line.AccountCode,
			ThirdPartyID: line.ThirdPartyID,
			CostCenterID: line.CostCenterID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Memo:         line.Memo,
		})
	}
	return out
}

func validationMessages(err error) []string {
	var out []string
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			out = append(out, fe.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}
