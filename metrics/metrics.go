// Package metrics holds the Prometheus collectors for ingestion runs and the
// HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricefeed/model"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	feeds         *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	rowsStored    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_ingest_runs_total",
			Help: "Ingestion runs partitioned by result.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricefeed_ingest_run_duration_seconds",
			Help:    "Duration in seconds of whole ingestion runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_feeds_total",
			Help: "Feed outcomes by feed type and final state.",
		}, []string{"feed_type", "state"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_stage_errors_total",
			Help: "Errors recorded in run reports by stage.",
		}, []string{"stage"}),
		rowsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_rows_stored_total",
			Help: "Rows written by replace operations.",
		}, []string{"kind"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricefeed_fetch_duration_seconds",
			Help:    "Duration in seconds of feed file fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed_type"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricefeed_http_request_duration_seconds",
			Help:    "Duration in seconds of HTTP requests per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(m.runs, m.runDuration, m.feeds, m.stageErrors, m.rowsStored,
		m.fetchDuration, m.requestsTotal, m.requestDuration)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFetch records how long one file fetch took.
func (m *Metrics) ObserveFetch(feed model.FeedType, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(string(feed)).Observe(d.Seconds())
}

// Tracker instruments one ingestion run.
type Tracker struct {
	metrics *Metrics
	start   time.Time
}

func (m *Metrics) Track() *Tracker {
	return &Tracker{metrics: m, start: time.Now()}
}

// End records the run and its report. The error is returned untouched.
func (t *Tracker) End(report *model.RunReport, err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	m := t.metrics
	status := "success"
	switch {
	case err != nil:
		status = "failure"
	case report != nil && report.ErrorCount() > 0:
		status = "partial"
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(time.Since(t.start).Seconds())

	if report == nil {
		return err
	}
	for _, e := range report.Errors {
		m.stageErrors.WithLabelValues(string(e.Stage)).Inc()
	}
	for _, b := range report.Branches {
		for _, f := range b.Feeds {
			m.feeds.WithLabelValues(string(f.FeedType), string(f.State)).Inc()
		}
		for _, e := range b.Errors {
			m.stageErrors.WithLabelValues(string(e.Stage)).Inc()
		}
		m.rowsStored.WithLabelValues("products").Add(float64(b.ProductsInserted))
		m.rowsStored.WithLabelValues("promotions").Add(float64(b.PromotionsInserted))
		m.rowsStored.WithLabelValues("promotion_items").Add(float64(b.PromotionItemsInserted))
	}
	return err
}

// Middleware counts requests per chi route pattern.
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
