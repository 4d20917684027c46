package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	RetrievalResults   *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec
	SummariesStored    prometheus.Counter
	EnrichmentOutcomes *prometheus.CounterVec
	ChatLatency        prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently held in short-term memory.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		RetrievalResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_results_total",
			Help:      "Retrieved snippets by memory source.",
		}, []string{"source"}),
		CollaboratorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Upstream collaborator failures by collaborator and operation.",
		}, []string{"collaborator", "op"}),
		SummariesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_summaries_stored_total",
			Help:      "Session summaries handed off to long-term storage.",
		}),
		EnrichmentOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_enrichment_total",
			Help:      "Background metadata enrichment outcomes.",
		}, []string{"outcome"}),
		ChatLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "End-to-end chat pipeline latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 120000},
		}),
	}
}

func (m *Metrics) ObserveChatLatency(d time.Duration) {
	m.ChatLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
