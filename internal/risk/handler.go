package risk

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joshowusu-alt/tillflow/internal/platform/httpx"
	"github.com/joshowusu-alt/tillflow/internal/shared"
)

// Handler exposes detector alerts over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the risk handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers risk routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/alerts", h.handleAlerts)
	r.Post("/scan", h.handleScan)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := h.service.Alerts(r.Context(), actor.BusinessID, limit)
	if err != nil {
		h.logger.Error("risk alerts lookup failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

// handleScan runs the detectors synchronously over a recent window. The
// scheduled worker covers the steady state; this endpoint exists for
// on-demand sweeps after settings changes.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	windowMinutes, _ := strconv.Atoi(r.URL.Query().Get("window_minutes"))
	if windowMinutes <= 0 {
		windowMinutes = 24 * 60
	}
	since := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	n, err := h.service.ScanRecentSales(r.Context(), actor.BusinessID, since)
	if err != nil {
		h.logger.Error("risk scan failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"alerts_raised": n})
}
