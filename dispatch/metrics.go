package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the dispatcher.
type Metrics struct {
	Registry           *prometheus.Registry
	AttemptsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	EventsScrapedTotal prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_attempts_total",
			Help: "Total HTTP request attempts issued by the dispatcher.",
		},
		[]string{"proxy"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP attempt latency for dispatcher requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	eventsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_events_scraped_total",
			Help: "Total number of events sent to the pipeline.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of dispatcher errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(attempts, requestDuration, eventsScraped, retries, errorsTotal)

	return &Metrics{
		Registry:           registry,
		AttemptsTotal:      attempts,
		RequestDuration:    requestDuration,
		EventsScrapedTotal: eventsScraped,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
	}
}

// IncAttempt increments the attempts counter for a proxy address.
func (m *Metrics) IncAttempt(proxy string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(proxy).Inc()
}

// ObserveDuration records an HTTP attempt duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncEvents increments the scraped events counter.
func (m *Metrics) IncEvents() {
	if m == nil {
		return
	}
	m.EventsScrapedTotal.Inc()
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
