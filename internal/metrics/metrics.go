// Package metrics exposes Prometheus collectors for the archiver service.
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
	jobsTotal                 *prometheus.CounterVec
	candidatesSkippedTotal    *prometheus.CounterVec
	postsPersistedTotal       prometheus.Counter
	postsDedupedTotal         prometheus.Counter
	sheetSyncFailuresTotal    prometheus.Counter
	extractionDurationSeconds prometheus.Histogram
	searchPagesScannedTotal   prometheus.Counter

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; every helper below calls it, so explicit initialization is only
// needed to pre-register collectors before traffic.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_jobs_total",
				Help: "Total number of jobs completed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		candidatesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_candidates_skipped_total",
				Help: "Total candidates skipped during extraction, labeled by reason.",
			},
			[]string{"reason"},
		)

		postsPersistedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_posts_persisted_total",
				Help: "Total posts inserted into the durable store.",
			},
		)

		postsDedupedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_posts_deduped_total",
				Help: "Total posts skipped because their content hash already existed.",
			},
		)

		sheetSyncFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_sheet_sync_failures_total",
				Help: "Total spreadsheet sink pushes that failed.",
			},
		)

		extractionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archiver_extraction_duration_seconds",
				Help:    "Histogram of per-candidate extraction latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
		)

		searchPagesScannedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_search_pages_scanned_total",
				Help: "Total search result pages scanned across all jobs.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_http_requests_total",
				Help: "Total HTTP requests served by the API, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_http_request_duration_seconds",
				Help:    "Histogram of API request latencies by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
	})
}

// Middleware instruments HTTP handlers with request count and latency
// collectors. It is chi-compatible.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// JobCompleted increments the terminal-status job counter.
func JobCompleted(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// CandidateSkipped counts a skipped candidate by reason.
func CandidateSkipped(reason string) {
	Init()
	candidatesSkippedTotal.WithLabelValues(reason).Inc()
}

// PostPersisted counts a successful dedup-aware insert.
func PostPersisted() {
	Init()
	postsPersistedTotal.Inc()
}

// PostDeduped counts a post skipped by the global hash constraint.
func PostDeduped() {
	Init()
	postsDedupedTotal.Inc()
}

// SheetSyncFailed counts a failed spreadsheet push.
func SheetSyncFailed() {
	Init()
	sheetSyncFailuresTotal.Inc()
}

// ObserveExtraction records one candidate extraction latency.
func ObserveExtraction(d time.Duration) {
	Init()
	extractionDurationSeconds.Observe(d.Seconds())
}

// SearchPageScanned counts one fetched search result page.
func SearchPageScanned() {
	Init()
	searchPagesScannedTotal.Inc()
}
