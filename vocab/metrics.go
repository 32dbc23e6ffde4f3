package vocab

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the service.
type Metrics struct {
	BatchItems   *prometheus.CounterVec
	ChunkRetries prometheus.Counter
	Duration     *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on reg when it is not
// nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vocab",
			Name:      "batch_items_total",
			Help:      "Batch inputs by operation and outcome.",
		}, []string{"op", "outcome"}),
		ChunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vocab",
			Name:      "chunk_retries_total",
			Help:      "Chunk transactions retried after a transient failure.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vocab",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.BatchItems, m.ChunkRetries, m.Duration)
	}
	return m
}
