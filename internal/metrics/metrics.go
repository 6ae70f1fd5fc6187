// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal         *prometheus.CounterVec
	crawlFetchFailuresTotal prometheus.Counter
	crawlPageRelevance      prometheus.Histogram
	oracleCallsTotal        *prometheus.CounterVec
	oracleCallSeconds       prometheus.Histogram
	crawlActiveWorkers      prometheus.Gauge
	crawlBudgetRemaining    prometheus.Gauge
	crawlPhase              *prometheus.GaugeVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of pages fetched, labeled by phase and status.",
			},
			[]string{"phase", "status"},
		)

		crawlFetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawl_fetch_failures_total",
				Help: "Total number of page fetches that returned an error.",
			},
		)

		crawlPageRelevance = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_page_relevance",
				Help:    "Distribution of per-page relevance scores (0-10).",
				Buckets: []float64{0, 2, 4, 5, 6, 7, 8, 9, 10},
			},
		)

		oracleCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_calls_total",
				Help: "Total inference calls, labeled by purpose and outcome.",
			},
			[]string{"purpose", "outcome"},
		)

		oracleCallSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oracle_call_duration_seconds",
				Help:    "Histogram of inference call latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_workers",
				Help: "Number of workers currently processing a page.",
			},
		)

		crawlBudgetRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_budget_remaining",
				Help: "Pages left in the crawl budget.",
			},
		)

		crawlPhase = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawl_phase",
				Help: "Set to 1 for the active crawl phase, 0 otherwise.",
			},
			[]string{"phase"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
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
	return promhttp.Handler()
}

// ObservePage records one fetched page and its relevance score.
func ObservePage(phase string, status string, relevance int) {
	crawlPagesTotal.WithLabelValues(phase, status).Inc()
	if relevance >= 0 {
		crawlPageRelevance.Observe(float64(relevance))
	}
}

// ObserveFetchFailure increments the fetch failure counter.
func ObserveFetchFailure(phase string) {
	crawlFetchFailuresTotal.Inc()
	crawlPagesTotal.WithLabelValues(phase, "fetch_error").Inc()
}

// ObserveOracleCall records one inference call.
func ObserveOracleCall(purpose string, outcome string, duration time.Duration) {
	oracleCallsTotal.WithLabelValues(purpose, outcome).Inc()
	oracleCallSeconds.Observe(duration.Seconds())
}

// SetPhase marks phase as active and clears the others.
func SetPhase(phase string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		crawlPhase.WithLabelValues(p).Set(v)
	}
}

// SetBudgetRemaining updates the remaining-budget gauge.
func SetBudgetRemaining(n int) {
	crawlBudgetRemaining.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
