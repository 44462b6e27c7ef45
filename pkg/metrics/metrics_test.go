package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRelayMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.IncMessage(OutcomePublished)
	m.IncMessage(OutcomePublished)
	m.IncMessage(OutcomeFailed)
	m.IncBatchFailure()
	m.ObserveBatch(250 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_relay_messages_total", map[string]string{"outcome": OutcomePublished}); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 2 {
		t.Fatalf("expected published=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_relay_messages_total", map[string]string{"outcome": OutcomeFailed}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_relay_batch_failures_total", nil); err != nil {
		t.Fatalf("fetch batch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected batch failures=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "outbox_relay_batch_duration_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatal("expected batch duration histogram")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestConsumerMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsumerMetrics(reg)
	m.IncEvent("inventory", OutcomeApplied)
	m.IncEvent("inventory", OutcomeDuplicate)
	m.IncEvent("", OutcomeDropped)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "consumer_events_total", map[string]string{"consumer": "inventory", "outcome": OutcomeDuplicate}); err != nil || got != 1 {
		t.Fatalf("expected duplicate=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "consumer_events_total", map[string]string{"consumer": "unknown", "outcome": OutcomeDropped}); err != nil || got != 1 {
		t.Fatalf("expected unknown consumer label, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var relay *RelayMetrics
	relay.IncMessage(OutcomePublished)
	relay.IncBatchFailure()
	relay.ObserveBatch(time.Second)

	unregistered := NewRelayMetrics(nil)
	unregistered.IncMessage(OutcomeFailed)

	var consumer *ConsumerMetrics
	consumer.IncEvent("inventory", OutcomeApplied)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
