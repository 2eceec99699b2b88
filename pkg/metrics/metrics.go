// Copyright 2025 Certen Protocol
//
// Operational metrics for the compute-host node: settlement queue depth,
// checkpoint publish latency, and active session count. No teacher file
// uses prometheus/client_golang directly (it reaches the teacher's go.mod
// only as an indirect dependency via cometbft); the metric names and
// shapes here are grounded on the kind of operational signal
// pkg/batch/cost_tracker.go and pkg/batch/confirmation_tracker.go track
// (counts, durations, in-flight gauges), expressed as Prometheus
// collectors instead of the teacher's in-memory counters.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the node exposes on its metrics
// endpoint.
type Registry struct {
	ActiveSessions       prometheus.Gauge
	SettlementQueueDepth *prometheus.GaugeVec
	CheckpointLatency    prometheus.Histogram
	CheckpointsPublished *prometheus.CounterVec
	SettlementAttempts   *prometheus.CounterVec
	ProofGenerationTime  prometheus.Histogram
}

// New registers and returns the node's metric collectors on the Prometheus
// default registry (via promauto), so calling it twice panics on duplicate
// registration.
func New() *Registry {
	return &Registry{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "certen_node",
			Name:      "active_sessions",
			Help:      "Number of sessions currently held in the session store.",
		}),
		SettlementQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "certen_node",
			Name:      "settlement_queue_depth",
			Help:      "Number of settlement requests pending or failed, awaiting retry, per chain.",
		}, []string{"chain_id"}),
		CheckpointLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certen_node",
			Name:      "checkpoint_publish_seconds",
			Help:      "Time to run the full checkpoint publish trigger (sign, store, index, witness, handoff).",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certen_node",
			Name:      "checkpoints_published_total",
			Help:      "Checkpoints successfully published, by session.",
		}, []string{"session_id"}),
		SettlementAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certen_node",
			Name:      "settlement_attempts_total",
			Help:      "Settlement submission attempts, by chain and outcome.",
		}, []string{"chain_id", "outcome"}),
		ProofGenerationTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certen_node",
			Name:      "proof_generation_seconds",
			Help:      "Time to generate one checkpoint's zero-knowledge proof.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler serving these metrics in the
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
