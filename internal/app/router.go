package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/syrax68/gestion-pieces-sub001/internal/alerts"
	"github.com/syrax68/gestion-pieces-sub001/internal/billing/creditnotes"
	"github.com/syrax68/gestion-pieces-sub001/internal/billing/invoices"
	"github.com/syrax68/gestion-pieces-sub001/internal/catalog/boutiques"
	"github.com/syrax68/gestion-pieces-sub001/internal/catalog/parts"
	"github.com/syrax68/gestion-pieces-sub001/internal/counts"
	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	LedgerHandler     *ledger.Handler
	PartsHandler      *parts.Handler
	BoutiquesHandler  *boutiques.Handler
	InvoiceHandler    *invoices.Handler
	CreditNoteHandler *creditnotes.Handler
	CountsHandler     *counts.Handler
	AlertsHandler     *alerts.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router.
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

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ScopeMiddleware(params.Logger))

		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(api)
		}
		if params.PartsHandler != nil {
			params.PartsHandler.MountRoutes(api)
		}
		if params.BoutiquesHandler != nil {
			params.BoutiquesHandler.MountRoutes(api)
		}
		if params.InvoiceHandler != nil {
			params.InvoiceHandler.MountRoutes(api)
		}
		if params.CreditNoteHandler != nil {
			params.CreditNoteHandler.MountRoutes(api)
		}
		if params.CountsHandler != nil {
			params.CountsHandler.MountRoutes(api)
		}
		if params.AlertsHandler != nil {
			params.AlertsHandler.MountRoutes(api)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}
