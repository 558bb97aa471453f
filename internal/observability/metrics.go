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
	ActiveConversations prometheus.Gauge
	ConversationEvents  *prometheus.CounterVec
	IntentResults       *prometheus.CounterVec
	ConfirmationEvents  *prometheus.CounterVec
	HandlerErrors       *prometheus.CounterVec
	PolicyCorrections   *prometheus.CounterVec
	MemoryCompactions   prometheus.Counter
	Erasures            *prometheus.CounterVec
	GhostOverrides      *prometheus.CounterVec
	BusDropped          *prometheus.CounterVec
	DispatchLatency     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of conversations with a live worker.",
		}),
		ConversationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_events_total",
			Help:      "Conversation lifecycle events by type.",
		}, []string{"event"}),
		IntentResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_results_total",
			Help:      "Intent classification results by label and source.",
		}, []string{"label", "source"}),
		ConfirmationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmation_events_total",
			Help:      "One-way-door confirmation transitions by outcome.",
		}, []string{"outcome"}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler and executor errors by agent and code.",
		}, []string{"agent", "code"}),
		PolicyCorrections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_corrections_total",
			Help:      "Outbound responses corrected by the output policy.",
		}, []string{"rule"}),
		MemoryCompactions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_compactions_total",
			Help:      "Silent-flush compactions performed.",
		}),
		Erasures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "erasures_total",
			Help:      "Erasure requests by result.",
		}, []string{"result"}),
		GhostOverrides: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ghost_overrides_total",
			Help:      "Ghost-mode window results by outcome.",
		}, []string{"outcome"}),
		BusDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dropped_total",
			Help:      "Bus messages dropped by topic due to slow subscribers.",
		}, []string{"topic"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_ms",
			Help:      "Latency from inbound message to outbound publish in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 700, 1200, 2500, 5000, 10000},
		}),
	}
}

func (m *Metrics) ObserveDispatchLatency(d time.Duration) {
	m.DispatchLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
