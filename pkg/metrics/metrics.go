package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	SourceFetchTotal      *prometheus.CounterVec
	SourceFetchDuration   *prometheus.HistogramVec
	RecordsSkippedTotal   *prometheus.CounterVec
	APIFetchInFlight      prometheus.Gauge
	BrowserSessionsActive prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		SourceFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_fetch_total",
				Help: "Total number of per-source fetch attempts.",
			},
			[]string{"source", "strategy", "status", "error_type"}, // status: success, failure
		),
		SourceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_fetch_duration_seconds",
				Help:    "Duration of per-source fetches.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60, 90},
			},
			[]string{"source", "strategy"},
		),
		RecordsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_skipped_total",
				Help: "Raw records dropped because required fields were missing or malformed.",
			},
			[]string{"source"},
		),
		APIFetchInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "api_fetch_in_flight",
				Help: "Current number of API-strategy fetches running.",
			},
		),
		BrowserSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browser_sessions_active",
				Help: "Current number of open headless browser sessions.",
			},
		),
	}
}

// ObserveFetch records the outcome of one source fetch.
func (m *Metrics) ObserveFetch(source, strategy, errorType string, seconds float64) {
	status := "success"
	if errorType != "" {
		status = "failure"
	}
	m.SourceFetchTotal.WithLabelValues(source, strategy, status, errorType).Inc()
	m.SourceFetchDuration.WithLabelValues(source, strategy).Observe(seconds)
}
