package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/joshowusu-alt/tillflow/internal/drawer"
	"github.com/joshowusu-alt/tillflow/internal/inventory"
	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/momo"
	"github.com/joshowusu-alt/tillflow/internal/procurement"
	"github.com/joshowusu-alt/tillflow/internal/risk"
	"github.com/joshowusu-alt/tillflow/internal/sales"
	"github.com/joshowusu-alt/tillflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	InventoryHandler   *inventory.Handler
	DrawerHandler      *drawer.Handler
	LedgerHandler      *ledger.Handler
	MomoHandler        *momo.Handler
	RiskHandler        *risk.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router. The provider webhook and the health
// probe stay outside the authenticated group; everything else requires the
// API key plus actor headers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.MomoHandler != nil {
		r.Group(func(r chi.Router) {
			// Provider callbacks get a tighter bucket than the API.
			r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Route("/webhooks/momo", params.MomoHandler.MountWebhook)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireActor(MiddlewareConfig{Logger: params.Logger, Config: params.Config}))

		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/drawer", params.DrawerHandler.MountRoutes)
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		if params.MomoHandler != nil {
			r.Route("/momo", params.MomoHandler.MountRoutes)
		}
		r.Route("/risk", params.RiskHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
