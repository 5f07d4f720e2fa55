// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal           *prometheus.CounterVec
	itemsTotal           *prometheus.CounterVec
	jobsTotal            *prometheus.CounterVec
	activeJobs           prometheus.Gauge
	rateLimitBlocksTotal prometheus.Counter
	pacingDelaySeconds   *prometheus.HistogramVec
	outboxPublishedTotal *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragrance_pages_total",
				Help: "Pages loaded by the navigation session, labeled by page kind and outcome.",
			},
			[]string{"kind", "status"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragrance_items_total",
				Help: "Crawl items finished, labeled by item status.",
			},
			[]string{"status"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragrance_jobs_total",
				Help: "Crawl jobs finished, labeled by kind and final status.",
			},
			[]string{"kind", "status"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fragrance_active_jobs",
				Help: "Crawl jobs currently holding the crawl slot.",
			},
		)

		rateLimitBlocksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fragrance_rate_limit_blocks_total",
				Help: "Pages classified as blocked by the site.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fragrance_pacing_delay_seconds",
				Help:    "Pacing waits, labeled by reason.",
				Buckets: []float64{1, 3, 5, 8, 30, 120, 480, 720},
			},
			[]string{"reason"},
		)

		outboxPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragrance_outbox_events_total",
				Help: "Outbox events handled by the relay, labeled by outcome.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func ObservePage(kind, status string) {
	Init()
	pagesTotal.WithLabelValues(kind, status).Inc()
}

func ObserveBlock() {
	Init()
	rateLimitBlocksTotal.Inc()
}

func ObserveItem(status string) {
	Init()
	itemsTotal.WithLabelValues(status).Inc()
}

func ObserveJob(kind, status string) {
	Init()
	jobsTotal.WithLabelValues(kind, status).Inc()
}

func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}

// ObserveDelay records a pacing wait such as an item delay or a cooldown.
func ObserveDelay(reason string, d time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(reason).Observe(d.Seconds())
}

func ObserveOutbox(status string) {
	Init()
	outboxPublishedTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ObserveHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
