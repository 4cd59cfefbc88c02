// Package observability registers the tracker's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	localWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "store",
		Name:      "last_local_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record written to the local store.",
	})

	localFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "store",
		Name:      "local_failures_total",
		Help:      "Local persistence failures swallowed by the store, labeled by operation.",
	}, []string{"op"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "sync",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful push or pull.",
	})

	remoteCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "sync",
		Name:      "remote_calls_total",
		Help:      "Remote store calls labeled by operation and outcome.",
	}, []string{"op", "outcome"})

	remoteCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "sync",
		Name:      "remote_call_duration_seconds",
		Help:      "Latency of remote push and pull calls.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"op"})

	mergeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "sync",
		Name:      "merged_records_total",
		Help:      "Records resolved during startup reconciliation, labeled by winning side.",
	}, []string{"winner"})

	pushCoalescedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hybrid_tracker",
		Subsystem: "sync",
		Name:      "pushes_coalesced_total",
		Help:      "Background push requests folded into an already pending push.",
	})
)

func init() {
	prometheus.MustRegister(
		localWriteGauge,
		localFailureCounter,
		lastSyncGauge,
		remoteCallCounter,
		remoteCallDuration,
		mergeCounter,
		pushCoalescedCounter,
	)
}

// RecordLocalWrite updates the local write watermark.
func RecordLocalWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	localWriteGauge.Set(float64(ts.Unix()))
}

// RecordLocalFailure counts a swallowed local persistence failure.
func RecordLocalFailure(op string) {
	localFailureCounter.WithLabelValues(op).Inc()
}

// RecordSynced updates the last successful sync watermark.
func RecordSynced(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}

// RecordRemoteCall records the outcome and latency of a remote call.
func RecordRemoteCall(op, outcome string, elapsed time.Duration) {
	remoteCallCounter.WithLabelValues(op, outcome).Inc()
	remoteCallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordMerged counts records kept from each side during a merge.
func RecordMerged(localWins, remoteWins int) {
	mergeCounter.WithLabelValues("local").Add(float64(localWins))
	mergeCounter.WithLabelValues("remote").Add(float64(remoteWins))
}

// RecordPushCoalesced counts a push request absorbed by a pending push.
func RecordPushCoalesced() {
	pushCoalescedCounter.Inc()
}
