// Package metrics registers the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "postsignal"

var (
	// PostsQueued counts post elements accepted into the scan queue.
	PostsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "posts_queued_total",
		Help:      "Post elements accepted into the scan queue",
	})

	// PostsProcessed counts processed posts by outcome
	// (relevant, irrelevant, short, handled).
	PostsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "posts_processed_total",
		Help:      "Processed post elements by outcome",
	}, []string{"outcome"})

	// Drains counts scheduler drain passes.
	Drains = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "drains_total",
		Help:      "Scan queue drain passes",
	})

	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "requests_submitted_total",
		Help:      "Analysis requests accepted by the coordinator",
	})

	RequestsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "requests_rejected_total",
		Help:      "Submissions ignored because the post was in flight or done",
	})

	RequestRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "request_retries_total",
		Help:      "Channel retries after transient failures",
	})

	// RequestsCompleted counts finished requests by outcome
	// (rendered, failed, abandoned).
	RequestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "requests_completed_total",
		Help:      "Finished analysis requests by outcome",
	}, []string{"outcome"})

	JanitorEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "janitor",
		Name:      "evictions_total",
		Help:      "Detached post elements evicted",
	})

	// BusMessages counts dispatched bus messages by type and success.
	BusMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "messages_total",
		Help:      "Dispatched bus messages",
	}, []string{"type", "success"})

	AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Model round-trip latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// ParseTier counts parsed model replies by the tier that succeeded.
	ParseTier = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "parse_tier_total",
		Help:      "Model replies by parse tier",
	}, []string{"tier"})

	// CircuitState exposes breaker state per dependency: 0 closed, 1 open,
	// 2 half-open.
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_state",
		Help:      "Circuit breaker state per dependency",
	}, []string{"dependency"})

	DexRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dex",
		Name:      "requests_total",
		Help:      "DEX API requests by endpoint and status class",
	}, []string{"endpoint", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
