package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/api/handler"
	apimw "github.com/notifyhub/gyre/internal/api/middleware"
	"github.com/notifyhub/gyre/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.ProjectionService,
	health *handler.HealthHandler,
	reg prometheus.Gatherer,
	logger *zap.Logger,
	requestTimeout time.Duration,
) (http.Handler, error) {
	sh, err := handler.NewSchemaHandler()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID(logger))
	r.Use(apimw.RequestLogger)

	// --- handler instances ---
	ph := handler.NewProjectionHandler(svc)
	lh := handler.NewListenerHandler(svc)
	sch := handler.NewSchedulerHandler(svc)
	dh := handler.NewDeliveryHandler(svc)

	// --- routes ---
	r.Get("/health", health.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// bounds how long a request waits for the scheduler loop
		r.Use(chimw.Timeout(requestTimeout))

		r.Put("/projections/{id}", ph.Put)
		r.Get("/projections/{id}", ph.Get)

		r.Post("/listeners", lh.Create)
		r.Get("/listeners", lh.List)
		r.Get("/listeners/{handle}", lh.Get)
		r.Delete("/listeners/{handle}", lh.Delete)

		r.Get("/queue", sch.Queue)
		r.Get("/scheduler/budget", sch.GetBudget)
		r.Put("/scheduler/budget", sch.PutBudget)
		r.Get("/scheduler/stats", sch.Stats)

		r.Get("/deliveries", dh.List)
		r.Get("/deliveries/{id}", dh.Get)

		r.Get("/schema/{name}", sh.Get)
	})

	return r, nil
}
