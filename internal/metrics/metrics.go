package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payments server.
type Metrics struct {
	// Creation metrics
	CreatesTotal       *prometheus.CounterVec
	CreateFailedTotal  *prometheus.CounterVec
	CreateDuration     *prometheus.HistogramVec

	// Webhook metrics
	WebhooksTotal   *prometheus.CounterVec
	WebhookDuration prometheus.Histogram

	// Polling/reconciliation metrics
	PollsTotal        *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec

	// Processor call metrics
	ProcessorCallsTotal  *prometheus.CounterVec
	ProcessorCallErrors  *prometheus.CounterVec
	ProcessorCallSeconds *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		CreatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_creates_total",
				Help: "Total checkout/charge creation attempts",
			},
			[]string{"flow"},
		),
		CreateFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_creates_failed_total",
				Help: "Total failed checkout/charge creations",
			},
			[]string{"flow", "reason"},
		),
		CreateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meuev_create_duration_seconds",
				Help:    "Time taken to create a checkout or charge at the processor",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"flow"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_webhooks_total",
				Help: "Total webhook notifications received",
			},
			[]string{"event_type", "outcome"},
		),
		WebhookDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meuev_webhook_duration_seconds",
				Help:    "Time taken to process a webhook notification",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),

		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_polls_total",
				Help: "Total status polls, labeled by key kind and answering source",
			},
			[]string{"kind", "source"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_status_transitions_total",
				Help: "Observed payment status transitions reported by the processor",
			},
			[]string{"to"},
		),

		ProcessorCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_processor_calls_total",
				Help: "Total calls to the Mercado Pago API",
			},
			[]string{"operation"},
		),
		ProcessorCallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_processor_call_errors_total",
				Help: "Total failed calls to the Mercado Pago API",
			},
			[]string{"operation"},
		),
		ProcessorCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meuev_processor_call_duration_seconds",
				Help:    "Duration of Mercado Pago API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meuev_rate_limit_hits_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveCreate records a checkout/charge creation attempt.
func (m *Metrics) ObserveCreate(flow string, duration time.Duration, err error) {
	m.CreatesTotal.WithLabelValues(flow).Inc()
	m.CreateDuration.WithLabelValues(flow).Observe(duration.Seconds())
	if err != nil {
		m.CreateFailedTotal.WithLabelValues(flow, "processor_error").Inc()
	}
}

// ObserveWebhook records an inbound webhook notification.
func (m *Metrics) ObserveWebhook(eventType, outcome string, duration time.Duration) {
	m.WebhooksTotal.WithLabelValues(eventType, outcome).Inc()
	m.WebhookDuration.Observe(duration.Seconds())
}

// ObservePoll records a status poll answered by the given source
// ("cache", "processor", or "not_found").
func (m *Metrics) ObservePoll(kind, source string) {
	m.PollsTotal.WithLabelValues(kind, source).Inc()
}

// ObserveStatusTransition records a status value newly written to the store.
func (m *Metrics) ObserveStatusTransition(status string) {
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// ObserveProcessorCall records one outbound API call.
func (m *Metrics) ObserveProcessorCall(operation string, duration time.Duration, err error) {
	m.ProcessorCallsTotal.WithLabelValues(operation).Inc()
	m.ProcessorCallSeconds.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.ProcessorCallErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}
