package momo

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// Handler wires HTTP endpoints for mobile-money collections.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the collections handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers collection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleInitiate)
	r.Get("/{collectionID}", h.handleGet)
	r.Post("/{collectionID}/check", h.handleCheckStatus)
	r.Get("/{collectionID}/logs", h.handleStatusLogs)
}

// MountWebhook registers the provider callback outside the authenticated API
// group; the HMAC signature is the authentication.
func (h *Handler) MountWebhook(r chi.Router) {
	r.Post("/momo", h.handleWebhook)
}

type initiateRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=128"`
	Msisdn         string `json:"msisdn" validate:"required,max=20"`
	Network        string `json:"network" validate:"required,max=32"`
	AmountPence    int64  `json:"amount_pence" validate:"required,gt=0"`
	CurrencyCode   string `json:"currency_code" validate:"required,len=3"`
}

type collectionResponse struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	Msisdn         string `json:"msisdn"`
	Network        string `json:"network"`
	AmountPence    int64  `json:"amount_pence"`
	CurrencyCode   string `json:"currency_code"`
	Status         string `json:"status"`
	ProviderStatus string `json:"provider_status,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	InvoiceID      int64  `json:"invoice_id,omitempty"`
}

func toResponse(c Collection) collectionResponse {
	return collectionResponse{
		ID:             c.ID,
		IdempotencyKey: c.IdempotencyKey,
		Msisdn:         c.Msisdn,
		Network:        c.Network,
		AmountPence:    c.AmountPence,
		CurrencyCode:   c.CurrencyCode,
		Status:         string(c.Status),
		ProviderStatus: c.ProviderStatus,
		FailureReason:  c.FailureReason,
		InvoiceID:      c.InvoiceID,
	}
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	var req initiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	c, err := h.service.Initiate(r.Context(), InitiateInput{
		BusinessID:     actor.BusinessID,
		IdempotencyKey: req.IdempotencyKey,
		Msisdn:         req.Msisdn,
		Network:        req.Network,
		AmountPence:    req.AmountPence,
		CurrencyCode:   req.CurrencyCode,
		RequestedBy:    actor.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	// Provider failure surfaces as a FAILED collection, not an HTTP error.
	httpx.JSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "collectionID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid collection id")
		return
	}
	c, err := h.service.Get(r.Context(), actor.BusinessID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "collectionID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid collection id")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	c, err := h.service.CheckStatus(r.Context(), actor.BusinessID, id, force)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) handleStatusLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "collectionID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid collection id")
		return
	}
	if _, err := h.service.Get(r.Context(), actor.BusinessID, id); err != nil {
		h.respondError(w, err)
		return
	}
	logs, err := h.service.StatusLogs(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}
	var payload WebhookPayload
	if err := decodeWebhook(body, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	_, err = h.service.HandleWebhook(r.Context(), r.Header.Get("X-Signature"), body, payload)
	switch {
	case err == nil, errors.Is(err, ErrDuplicateDelivery):
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrBadSignature):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "signature mismatch")
	case errors.Is(err, ErrCollectionNotFound):
		// Acknowledge so the provider stops retrying a callback for a
		// collection this system never issued.
		h.logger.Warn("webhook for unknown collection", "request_id", payload.RequestID)
		w.WriteHeader(http.StatusOK)
	default:
		h.logger.Error("webhook processing failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "webhook processing failed")
	}
}

func decodeWebhook(body []byte, payload *WebhookPayload) error {
	return json.Unmarshal(body, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCollectionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "collection not found")
	case errors.Is(err, ErrCollectionNotUsable), errors.Is(err, ErrConfirmAfterFailure), errors.Is(err, ErrDuplicateKey):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("momo request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
