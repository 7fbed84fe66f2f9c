package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	BooksTotal      prometheus.Counter
	EmptyRecords    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	Progress        prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	books := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_books_extracted_total",
			Help: "Total number of fully extracted book records.",
		},
	)
	empty := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_empty_records_total",
			Help: "Total number of attempted URLs degraded to empty records.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	progress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_progress_urls",
			Help: "URLs processed so far in the current crawl.",
		},
	)

	registry.MustRegister(requests, requestDuration, books, empty, errorsTotal, progress)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		BooksTotal:      books,
		EmptyRecords:    empty,
		ErrorsTotal:     errorsTotal,
		Progress:        progress,
	}
}

// FetchStarted implements fetch.Observer.
func (m *Metrics) FetchStarted(url string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("started").Inc()
}

// FetchSucceeded implements fetch.Observer.
func (m *Metrics) FetchSucceeded(url string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("succeeded").Inc()
	m.RequestDuration.Observe(d.Seconds())
}

// FetchFailed implements fetch.Observer.
func (m *Metrics) FetchFailed(url string, category string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("failed").Inc()
	m.ErrorsTotal.WithLabelValues(category).Inc()
}

// IncBooks counts one fully extracted record.
func (m *Metrics) IncBooks() {
	if m == nil {
		return
	}
	m.BooksTotal.Inc()
}

// IncEmpty counts one malformed page degraded to an empty record.
func (m *Metrics) IncEmpty() {
	if m == nil {
		return
	}
	m.EmptyRecords.Inc()
}

// SetProgress records the monotonic progress counter.
func (m *Metrics) SetProgress(done int64) {
	if m == nil {
		return
	}
	m.Progress.Set(float64(done))
}
