package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
)

// RelayMetrics records outbox relay throughput and batch health.
type RelayMetrics struct {
	messages      *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchFailures prometheus.Counter
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_messages_total",
		Help: "Outbox messages given their terminal outcome, by outcome.",
	}, []string{"outcome"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_relay_batch_duration_seconds",
		Help:    "Duration of one relay batch including its transaction.",
		Buckets: prometheus.DefBuckets,
	})
	batchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relay_batch_failures_total",
		Help: "Relay batches rolled back because of an infrastructure error.",
	})
	reg.MustRegister(messages, batchDuration, batchFailures)
	return &RelayMetrics{
		messages:      messages,
		batchDuration: batchDuration,
		batchFailures: batchFailures,
	}
}

// IncMessage counts one message outcome.
func (m *RelayMetrics) IncMessage(outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *RelayMetrics) ObserveBatch(duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
}

func (m *RelayMetrics) IncBatchFailure() {
	if m == nil || m.batchFailures == nil {
		return
	}
	m.batchFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
