package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	indexed   *prometheus.CounterVec
	dropped   prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking released ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of events released after commit segmented by type.",
			}, []string{"type"}),
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "events",
				Name:      "indexed_total",
				Help:      "Count of events projected into the SQL index segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "events",
				Name:      "sink_failures_total",
				Help:      "Count of events a downstream sink failed to accept.",
			}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.indexed, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordPublished increments the counter for an event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(typeLabel(eventType)).Inc()
}

// RecordIndexed counts an event the indexer projected.
func (m *eventMetrics) RecordIndexed(eventType string) {
	if m == nil {
		return
	}
	m.indexed.WithLabelValues(typeLabel(eventType)).Inc()
}

func typeLabel(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// RecordSinkFailure counts an event a sink could not deliver.
func (m *eventMetrics) RecordSinkFailure() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
