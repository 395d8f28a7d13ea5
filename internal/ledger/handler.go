package ledger

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

// Handler wires the journal HTTP endpoints. Posting here is for manual
// corrections; orchestrators post inside their own transactions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.handleList)
	r.Post("/entries", h.handlePost)
}

type postingLineRequest struct {
	AccountCode string `json:"account_code" validate:"required,max=16"`
	DebitPence  int64  `json:"debit_pence" validate:"gte=0"`
	CreditPence int64  `json:"credit_pence" validate:"gte=0"`
}

type postingRequest struct {
	Description string               `json:"description" validate:"required,max=500"`
	ReferenceID string               `json:"reference_id" validate:"max=64"`
	Lines       []postingLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	lines := make([]PostingLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, PostingLineInput{
			AccountCode: l.AccountCode,
			DebitPence:  l.DebitPence,
			CreditPence: l.CreditPence,
		})
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		BusinessID:    actor.BusinessID,
		Description:   req.Description,
		ReferenceType: "MANUAL",
		ReferenceID:   req.ReferenceID,
		PostedBy:      actor.UserID,
		Lines:         lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), actor.BusinessID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("ledger request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
