package events

import "github.com/prometheus/client_golang/prometheus"

var (
	published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Number of sync events written to Kafka, labeled by event type.",
	}, []string{"type"})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Number of sync events that could not be written to Kafka.",
	}, []string{"type"})

	consumeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "events",
		Name:      "consume_failures_total",
		Help:      "Sync events skipped by the watcher, labeled by stage.",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(published, publishFailures, consumeFailures)
}
