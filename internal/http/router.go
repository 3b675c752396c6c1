package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/http/campaign"
	"github.com/MrJamesThe3rd/almsbox/internal/http/export"
	appmiddleware "github.com/MrJamesThe3rd/almsbox/internal/http/middleware"
	"github.com/MrJamesThe3rd/almsbox/internal/http/transaction"
	"github.com/MrJamesThe3rd/almsbox/internal/metrics"
)

type Config struct {
	Logger         *slog.Logger
	Verifier       auth.Verifier
	AllowedOrigins []string
	Metrics        *metrics.HTTP
	Gatherer       prometheus.Gatherer
}

func New(
	cfg Config,
	transactionsV1 *transaction.Handler,
	campaignsV1 *campaign.Handler,
	exportV1 *export.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appmiddleware.NewStructuredLogger(cfg.Logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(cfg.Metrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	requireAuth := auth.Require(cfg.Verifier)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Use(requireAuth)
			transactionsV1.Routes(r)
		})

		r.Route("/campaigns", func(r chi.Router) {
			campaignsV1.Routes(r)
			r.With(requireAuth).Get("/{id}/transactions", transactionsV1.ListForCampaign)
			r.With(requireAuth).Get("/{id}/export", exportV1.Download)
		})

		r.With(requireAuth).Get("/donors/{id}/transactions", transactionsV1.ListForDonor)
	})

	return router
}
