package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
)

// ConsumerMetrics counts how consumers disposed of delivered events.
type ConsumerMetrics struct {
	events *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_total",
		Help: "Events handled by consumers, by consumer and outcome.",
	}, []string{"consumer", "outcome"})
	reg.MustRegister(events)
	return &ConsumerMetrics{events: events}
}

func (m *ConsumerMetrics) IncEvent(consumer, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(consumer), normalizeLabel(outcome)).Inc()
}
