package drawer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// Handler wires the cash drawer HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the drawer handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers drawer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/shifts/open", h.handleOpenShift)
	r.Post("/shifts/close", h.handleCloseShift)
	r.Get("/shifts/current", h.handleCurrentShift)
	r.Get("/shifts/{shiftID}/entries", h.handleEntries)
	r.Post("/payouts", h.handlePayout)
}

type openShiftRequest struct {
	TillID           int64 `json:"till_id" validate:"required,gt=0"`
	OpeningCashPence int64 `json:"opening_cash_pence" validate:"gte=0"`
}

type closeShiftRequest struct {
	TillID           int64 `json:"till_id" validate:"required,gt=0"`
	CountedCashPence int64 `json:"counted_cash_pence" validate:"gte=0"`
}

type shiftResponse struct {
	ID                int64  `json:"id"`
	TillID            int64  `json:"till_id"`
	Status            string `json:"status"`
	OpeningCashPence  int64  `json:"opening_cash_pence"`
	ExpectedCashPence int64  `json:"expected_cash_pence"`
	CountedCashPence  int64  `json:"counted_cash_pence,omitempty"`
	VariancePence     int64  `json:"variance_pence,omitempty"`
}

func toShiftResponse(s Shift) shiftResponse {
	return shiftResponse{
		ID:                s.ID,
		TillID:            s.TillID,
		Status:            string(s.Status),
		OpeningCashPence:  s.OpeningCashPence,
		ExpectedCashPence: s.ExpectedCashPence,
		CountedCashPence:  s.CountedCashPence,
		VariancePence:     s.VariancePence,
	}
}

func (h *Handler) handleOpenShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req openShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	shift, err := h.service.OpenShift(r.Context(), OpenShiftInput{
		BusinessID:       actor.BusinessID,
		StoreID:          actor.StoreID,
		TillID:           req.TillID,
		OpeningCashPence: req.OpeningCashPence,
		ActorID:          actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toShiftResponse(shift))
}

func (h *Handler) handleCloseShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req closeShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	shift, err := h.service.CloseShift(r.Context(), CloseShiftInput{
		BusinessID:       actor.BusinessID,
		TillID:           req.TillID,
		CountedCashPence: req.CountedCashPence,
		ActorID:          actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShiftResponse(shift))
}

func (h *Handler) handleCurrentShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	tillID, err := strconv.ParseInt(r.URL.Query().Get("till_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid till id")
		return
	}
	shift, err := h.service.OpenShiftFor(r.Context(), actor.BusinessID, tillID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShiftResponse(shift))
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	shiftID, err := strconv.ParseInt(chi.URLParam(r, "shiftID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shift id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Entries(r.Context(), shiftID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type payoutRequest struct {
	TillID      int64  `json:"till_id" validate:"required,gt=0"`
	AmountPence int64  `json:"amount_pence" validate:"required,gt=0"`
	Note        string `json:"note" validate:"required,max=500"`
}

func (h *Handler) handlePayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req payoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	entry, err := h.service.RecordPayout(r.Context(), actor.BusinessID, EntryParams{
		TillID:     req.TillID,
		Type:       EntryPaidOutExpense,
		DeltaPence: -req.AmountPence,
		RefModule:  "drawer",
		Note:       req.Note,
		ActorID:    actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrShiftNotFound), errors.Is(err, ErrNoOpenShift):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrShiftAlreadyOpen):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidOpeningCash), errors.Is(err, ErrZeroDelta):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("drawer request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
