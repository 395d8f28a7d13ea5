package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// Handler wires the procurement HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handlePurchase)
	r.Get("/", h.handleList)
	r.Get("/{purchaseID}", h.handleGet)
	r.Post("/{purchaseID}/return", h.handleReturn)
}

type purchaseRequest struct {
	SupplierID int64          `json:"supplier_id" validate:"required,gt=0"`
	TillID     int64          `json:"till_id"`
	Lines      []LineInput    `json:"lines" validate:"required,min=1,dive"`
	Payments   []PaymentInput `json:"payments" validate:"dive"`
	Note       string         `json:"note" validate:"max=500"`
}

type purchaseResponse struct {
	ID            int64  `json:"id"`
	StoreID       int64  `json:"store_id"`
	SupplierID    int64  `json:"supplier_id"`
	ShiftID       int64  `json:"shift_id,omitempty"`
	Status        string `json:"status"`
	SubtotalPence int64  `json:"subtotal_pence"`
	VATPence      int64  `json:"vat_pence"`
	TotalPence    int64  `json:"total_pence"`
	PaidPence     int64  `json:"paid_pence"`
	PaymentStatus string `json:"payment_status"`
}

func toResponse(p Purchase) purchaseResponse {
	return purchaseResponse{
		ID:            p.ID,
		StoreID:       p.StoreID,
		SupplierID:    p.SupplierID,
		ShiftID:       p.ShiftID,
		Status:        string(p.Status),
		SubtotalPence: p.SubtotalPence,
		VATPence:      p.VATPence,
		TotalPence:    p.TotalPence,
		PaidPence:     p.PaidPence,
		PaymentStatus: string(p.PaymentStatus),
	}
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req purchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	res, err := h.service.Purchase(r.Context(), PurchaseInput{
		BusinessID: actor.BusinessID,
		StoreID:    actor.StoreID,
		SupplierID: req.SupplierID,
		TillID:     req.TillID,
		ActorID:    actor.UserID,
		Lines:      req.Lines,
		Payments:   req.Payments,
		Note:       req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(res.Purchase))
}

type returnRequest struct {
	TillID int64  `json:"till_id"`
	Note   string `json:"note" validate:"max=500"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase id")
		return
	}
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, err := h.service.Return(r.Context(), ReturnInput{
		BusinessID: actor.BusinessID,
		PurchaseID: purchaseID,
		TillID:     req.TillID,
		ActorID:    actor.UserID,
		Note:       req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	purchaseID, err := purchaseIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase id")
		return
	}
	p, lines, payments, err := h.service.Get(r.Context(), actor.BusinessID, purchaseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchase": toResponse(p),
		"lines":    lines,
		"payments": payments,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	purchases, err := h.service.List(r.Context(), actor.BusinessID, actor.StoreID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func purchaseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "purchaseID"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPurchaseTerminal), errors.Is(err, money.ErrOverpaid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, drawer.ErrNoOpenShift):
		httpx.Problem(w, http.StatusConflict, "No Open Shift", err.Error())
	case errors.Is(err, ErrEmptyPurchase), errors.Is(err, ErrSupplierRequired),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("procurement request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
