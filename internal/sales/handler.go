package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/money"
	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// IdempotencyPort deduplicates retried sale submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, businessID int64, key, module string) error
	Delete(ctx context.Context, businessID int64, key string) error
}

// Handler wires the sales HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	idem     IdempotencyPort
}

// NewHandler constructs the sales handler. idem may be nil, in which case
// duplicate submissions are not filtered.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, idem IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, idem: idem}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleSale)
	r.Get("/", h.handleList)
	r.Get("/{invoiceID}", h.handleGet)
	r.Post("/{invoiceID}/return", h.handleReturn)
	r.Post("/{invoiceID}/amend", h.handleAmend)
	r.Post("/{invoiceID}/payments", h.handleDebtorPayment)
}

type saleRequest struct {
	TillID             int64          `json:"till_id" validate:"required,gt=0"`
	CustomerID         int64          `json:"customer_id"`
	Lines              []LineInput    `json:"lines" validate:"required,min=1,dive"`
	Payments           []PaymentInput `json:"payments" validate:"dive"`
	OrderDiscountPence int64          `json:"order_discount_pence" validate:"gte=0"`
	ApproverID         int64          `json:"approver_id"`
	ApproverPIN        string         `json:"approver_pin"`
	ReasonCode         string         `json:"reason_code" validate:"max=64"`
	Note               string         `json:"note" validate:"max=500"`
}

type saleResponse struct {
	Invoice     invoiceResponse `json:"invoice"`
	ChangePence int64           `json:"change_pence"`
}

type invoiceResponse struct {
	ID                 int64  `json:"id"`
	StoreID            int64  `json:"store_id"`
	TillID             int64  `json:"till_id"`
	ShiftID            int64  `json:"shift_id,omitempty"`
	CustomerID         int64  `json:"customer_id,omitempty"`
	Status             string `json:"status"`
	SubtotalPence      int64  `json:"subtotal_pence"`
	DiscountPence      int64  `json:"discount_pence"`
	OrderDiscountPence int64  `json:"order_discount_pence"`
	VATPence           int64  `json:"vat_pence"`
	TotalPence         int64  `json:"total_pence"`
	PaidPence          int64  `json:"paid_pence"`
	PaymentStatus      string `json:"payment_status"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                 inv.ID,
		StoreID:            inv.StoreID,
		TillID:             inv.TillID,
		ShiftID:            inv.ShiftID,
		CustomerID:         inv.CustomerID,
		Status:             string(inv.Status),
		SubtotalPence:      inv.SubtotalPence,
		DiscountPence:      inv.DiscountPence,
		OrderDiscountPence: inv.OrderDiscountPence,
		VATPence:           inv.VATPence,
		TotalPence:         inv.TotalPence,
		PaidPence:          inv.PaidPence,
		PaymentStatus:      string(inv.PaymentStatus),
	}
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if h.idem != nil && idemKey != "" {
		if err := h.idem.CheckAndInsert(r.Context(), actor.BusinessID, idemKey, "sales"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "sale already submitted")
				return
			}
			h.respondError(w, err)
			return
		}
	}
	res, err := h.service.Sale(r.Context(), SaleInput{
		BusinessID:         actor.BusinessID,
		StoreID:            actor.StoreID,
		TillID:             req.TillID,
		CashierID:          actor.UserID,
		CustomerID:         req.CustomerID,
		Lines:              req.Lines,
		Payments:           req.Payments,
		OrderDiscountPence: req.OrderDiscountPence,
		ApproverID:         req.ApproverID,
		ApproverPIN:        req.ApproverPIN,
		ReasonCode:         req.ReasonCode,
		Note:               req.Note,
	})
	if err != nil {
		// Release the key so a corrected retry is not refused.
		if h.idem != nil && idemKey != "" {
			_ = h.idem.Delete(r.Context(), actor.BusinessID, idemKey)
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{
		Invoice:     toInvoiceResponse(res.Invoice),
		ChangePence: res.ChangePence,
	})
}

type returnRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=RETURN VOID"`
	TillID      int64  `json:"till_id" validate:"required,gt=0"`
	ApproverID  int64  `json:"approver_id"`
	ApproverPIN string `json:"approver_pin"`
	ReasonCode  string `json:"reason_code" validate:"max=64"`
	Note        string `json:"note" validate:"max=500"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	invoiceID, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
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
	inv, err := h.service.ReturnOrVoid(r.Context(), ReturnInput{
		BusinessID:  actor.BusinessID,
		InvoiceID:   invoiceID,
		Kind:        ReturnKind(req.Kind),
		TillID:      req.TillID,
		ActorID:     actor.UserID,
		ApproverID:  req.ApproverID,
		ApproverPIN: req.ApproverPIN,
		ReasonCode:  req.ReasonCode,
		Note:        req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type amendRequest struct {
	RemoveLineIDs []int64 `json:"remove_line_ids" validate:"required,min=1"`
	TillID        int64   `json:"till_id" validate:"required,gt=0"`
	Note          string  `json:"note" validate:"max=500"`
}

type amendResponse struct {
	Invoice         invoiceResponse `json:"invoice"`
	RefundPence     int64           `json:"refund_pence"`
	BalanceDuePence int64           `json:"balance_due_pence"`
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	invoiceID, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req amendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	res, err := h.service.Amend(r.Context(), AmendInput{
		BusinessID:    actor.BusinessID,
		InvoiceID:     invoiceID,
		RemoveLineIDs: req.RemoveLineIDs,
		TillID:        req.TillID,
		ActorID:       actor.UserID,
		Note:          req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amendResponse{
		Invoice:         toInvoiceResponse(res.Invoice),
		RefundPence:     res.RefundPence,
		BalanceDuePence: res.BalanceDuePence,
	})
}

type debtorPaymentRequest struct {
	TillID      int64  `json:"till_id" validate:"required,gt=0"`
	Method      string `json:"method" validate:"required,oneof=CASH CARD TRANSFER"`
	AmountPence int64  `json:"amount_pence" validate:"required,gt=0"`
}

func (h *Handler) handleDebtorPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	invoiceID, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req debtorPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	inv, err := h.service.RecordDebtorPayment(r.Context(), DebtorPaymentInput{
		BusinessID:  actor.BusinessID,
		InvoiceID:   invoiceID,
		TillID:      req.TillID,
		Method:      money.Method(req.Method),
		AmountPence: req.AmountPence,
		ActorID:     actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	invoiceID, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, lines, payments, err := h.service.Get(r.Context(), actor.BusinessID, invoiceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoice":  toInvoiceResponse(inv),
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
	invoices, err := h.service.List(r.Context(), actor.BusinessID, actor.StoreID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func invoiceIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrApprovalRequired):
		// Typed so the till can pop an approval prompt instead of a plain error.
		httpx.ProblemTyped(w, http.StatusForbidden, "tillflow:approval-required", "Approval Required", err.Error())
	case errors.Is(err, shared.ErrBadApproverPIN):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvoiceTerminal), errors.Is(err, ErrVoidPaidInvoice),
		errors.Is(err, ErrAlreadyPaid), errors.Is(err, momo.ErrCollectionNotUsable),
		errors.Is(err, money.ErrOverpaid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, drawer.ErrNoOpenShift):
		httpx.Problem(w, http.StatusConflict, "No Open Shift", err.Error())
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrCustomerRequired), errors.Is(err, ErrCollectionRequired),
		errors.Is(err, ErrAmendmentEmptiesInvoice), errors.Is(err, ErrUnknownLine),
		errors.Is(err, ErrNothingToRemove), errors.Is(err, shared.ErrUnknownReasonCode):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("sales request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
