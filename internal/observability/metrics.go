package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	shiftsFinalized prometheus.Counter
	readingAnomaly  *prometheus.CounterVec
	shiftShortage   prometheus.Histogram
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik shift.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelstation_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuelstation_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	finalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fuelstation_shifts_finalized_total",
		Help: "Shifts moved to FINALIZED.",
	})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelstation_reading_anomalies_total",
		Help: "Meter reading anomalies reported at reconcile, by kind.",
	}, []string{"kind"})
	shortage := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuelstation_shift_shortage",
		Help:    "Absolute overall shortage of finalized shifts in currency units.",
		Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
	registry.MustRegister(requests, duration, finalized, anomalies, shortage)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		shiftsFinalized: finalized,
		readingAnomaly:  anomalies,
		shiftShortage:   shortage,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ShiftFinalized counts a finalized shift and observes its overall shortage.
// Excess cash is observed by magnitude.
func (m *Metrics) ShiftFinalized(overall decimal.Decimal) {
	if m == nil {
		return
	}
	m.shiftsFinalized.Inc()
	m.shiftShortage.Observe(overall.Abs().InexactFloat64())
}

// ReadingAnomaly counts a reading anomaly of the given kind.
func (m *Metrics) ReadingAnomaly(kind string) {
	if m == nil {
		return
	}
	m.readingAnomaly.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
