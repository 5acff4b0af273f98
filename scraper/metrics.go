package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	DetectedTotal   prometheus.Counter
	SavedTotal      prometheus.Counter
	SkippedTotal    prometheus.Counter
	DroppedTotal    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total catalog pages processed.",
		},
	)
	detected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_detected_total",
			Help: "Total product cards parsed from catalog pages.",
		},
	)
	saved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_saved_total",
			Help: "Total products persisted to storage.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_skipped_total",
			Help: "Total duplicate or rejected products.",
		},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cards_dropped_total",
			Help: "Total product cards dropped for missing required fields.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of page fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, detected, saved, skipped, dropped, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		DetectedTotal:   detected,
		SavedTotal:      saved,
		SkippedTotal:    skipped,
		DroppedTotal:    dropped,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the processed pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncDetected increments the parsed products counter.
func (m *Metrics) IncDetected() {
	if m == nil {
		return
	}
	m.DetectedTotal.Inc()
}

// IncSaved increments the persisted products counter.
func (m *Metrics) IncSaved() {
	if m == nil {
		return
	}
	m.SavedTotal.Inc()
}

// IncSkipped increments the skipped products counter.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

// IncDropped increments the dropped cards counter.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
