// Package metrics exposes Prometheus collectors for the ingestion service.
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
	apiPagesTotal              *prometheus.CounterVec
	apiRecordsTotal            prometheus.Counter
	dayFetchesTotal            *prometheus.CounterVec
	artifactsTotal             *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runRecords                 prometheus.Histogram
	runDurationSeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     prometheus.Histogram

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_api_pages_total",
				Help: "Grants API page requests, labeled by outcome.",
			},
			[]string{"status"},
		)

		apiRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_api_records_total",
				Help: "Award records returned by the grants API.",
			},
		)

		dayFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_day_fetches_total",
				Help: "Per-day pagination runs, labeled by whether they were cut short.",
			},
			[]string{"outcome"},
		)

		artifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_artifacts_total",
				Help: "Monthly snapshot uploads, labeled by artifact kind and status.",
			},
			[]string{"kind", "status"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Ingestion runs, labeled by status.",
			},
			[]string{"status"},
		)

		runRecords = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_records",
				Help:    "Records saved per ingestion run.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Wall time of ingestion runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delays_seconds",
				Help:    "Histogram of client-side rate limit waits before API calls.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIPage records one API page request outcome and the records it returned.
func ObserveAPIPage(status string, records int) {
	Init()
	apiPagesTotal.WithLabelValues(status).Inc()
	if records > 0 {
		apiRecordsTotal.Add(float64(records))
	}
}

// ObserveDayFetch records whether a day's pagination ran to completion.
func ObserveDayFetch(truncated bool) {
	Init()
	outcome := "complete"
	if truncated {
		outcome = "truncated"
	}
	dayFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveArtifact records a snapshot upload for kind ("json" or "parquet").
func ObserveArtifact(kind string, err error) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	artifactsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRun records the outcome of a full ingestion run.
func ObserveRun(status string, records int, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runRecords.Observe(float64(records))
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.Observe(duration.Seconds())
}
