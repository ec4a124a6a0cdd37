package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/api/handler"
	apimw "github.com/notifyhub/notification-pipeline/internal/api/middleware"
)

// Deps are the read-only views the operator endpoints expose.
type Deps struct {
	Breakers    []handler.BreakerView
	Ledger      handler.LedgerSizer
	QueueDepths func() map[string]int
	DeadLetters handler.DeadLetterLister
	Health      map[string]handler.Pinger
	Gatherer    prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. The HTTP surface is operator-only: notifications enter the
// pipeline through service.Publisher, never over HTTP.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer) // recover panics, return 500
	r.Use(chimw.RealIP)    // trust X-Forwarded-For / X-Real-IP
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	hh := handler.NewHealthHandler(deps.Health)
	sh := handler.NewStatusHandler(deps.Breakers, deps.Ledger, deps.QueueDepths, logger)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", sh.GetStatus)
		if deps.DeadLetters != nil {
			r.Get("/dead-letters", handler.NewDeadLetterHandler(deps.DeadLetters, logger).List)
		}
	})

	return r
}
