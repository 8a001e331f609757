package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/delivery/http/handler"
	"github.com/user/price-aggregator/internal/delivery/http/middleware"
	"github.com/user/price-aggregator/pkg/metrics"
)

const defaultRequestTimeout = 120 * time.Second

type Config struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
	// RequestTimeout bounds /api requests; browser-backed searches need it
	// sized to the full search budget.
	RequestTimeout time.Duration
}

func New(h *handler.Handler, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))

		r.Get("/health", h.HandleHealthCheck)
		r.Get("/health/probe", h.HandleProbe)
		r.Get("/sources", h.HandleListSources)
		r.Get("/sources/{name}/products", h.HandleSourceProducts)
		r.Get("/search", h.HandleSearch)
		r.Get("/history", h.HandleHistory)
		r.Get("/failures/{name}", h.HandleFailures)
	})

	return r
}
