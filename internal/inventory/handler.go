package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// Handler wires the stock HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances/{productID}", h.handleBalance)
	r.Get("/movements", h.handleMovements)
	r.Post("/adjustments", h.handleAdjustment)
	r.Post("/transfers", h.handleTransfer)
}

type balanceResponse struct {
	StoreID          int64 `json:"store_id"`
	ProductID        int64 `json:"product_id"`
	QtyOnHandBase    int64 `json:"qty_on_hand_base"`
	AvgCostBasePence int64 `json:"avg_cost_base_pence"`
}

func toBalanceResponse(b Balance) balanceResponse {
	return balanceResponse{
		StoreID:          b.StoreID,
		ProductID:        b.ProductID,
		QtyOnHandBase:    b.QtyOnHandBase,
		AvgCostBasePence: b.AvgCostBasePence,
	}
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	bal, err := h.service.Balance(r.Context(), actor.StoreID, productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(bal))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), actor.BusinessID, actor.StoreID, productID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type adjustmentRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	QtyBase       int64  `json:"qty_base" validate:"required"`
	UnitCostPence int64  `json:"unit_cost_pence" validate:"gte=0"`
	ReasonCode    string `json:"reason_code" validate:"required,max=64"`
	Note          string `json:"note" validate:"max=500"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	bal, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		BusinessID:    actor.BusinessID,
		StoreID:       actor.StoreID,
		ProductID:     req.ProductID,
		QtyBase:       req.QtyBase,
		UnitCostPence: req.UnitCostPence,
		ReasonCode:    req.ReasonCode,
		Note:          req.Note,
		ActorID:       actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBalanceResponse(bal))
}

type transferRequest struct {
	DstStoreID int64  `json:"dst_store_id" validate:"required,gt=0"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	QtyBase    int64  `json:"qty_base" validate:"required,gt=0"`
	Note       string `json:"note" validate:"max=500"`
}

type transferResponse struct {
	Source      balanceResponse `json:"source"`
	Destination balanceResponse `json:"destination"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	src, dst, err := h.service.PostTransfer(r.Context(), TransferInput{
		BusinessID: actor.BusinessID,
		SrcStoreID: actor.StoreID,
		DstStoreID: req.DstStoreID,
		ProductID:  req.ProductID,
		QtyBase:    req.QtyBase,
		Note:       req.Note,
		ActorID:    actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{
		Source:      toBalanceResponse(src),
		Destination: toBalanceResponse(dst),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound), errors.Is(err, products.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, shared.ErrUnknownReasonCode):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("inventory request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
