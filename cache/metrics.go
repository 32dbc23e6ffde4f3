package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// Metrics groups the collectors exported by Tiered and Fetcher.
type Metrics struct {
	TierHits    *prometheus.CounterVec
	TierMisses  *prometheus.CounterVec
	TierStale   *prometheus.CounterVec
	TierErrors  *prometheus.CounterVec
	AsyncDrops  prometheus.Counter
	Requests    prometheus.Counter
	LoaderCalls prometheus.Counter
	DedupHits   prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when it is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TierHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "tier_hits_total",
			Help:      "Cache hits per tier.",
		}, []string{"tier"}),
		TierMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "tier_misses_total",
			Help:      "Cache misses per tier.",
		}, []string{"tier"}),
		TierStale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "tier_stale_total",
			Help:      "Expired or invalidated entries found per tier.",
		}, []string{"tier"}),
		TierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "tier_errors_total",
			Help:      "Failed tier operations.",
		}, []string{"tier", "op"}),
		AsyncDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "async_writes_dropped_total",
			Help:      "Writes to slower tiers dropped because the queue was full.",
		}),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "miss_requests_total",
			Help:      "Logical requests that missed the cache.",
		}),
		LoaderCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "loader_calls_total",
			Help:      "Loader invocations.",
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "dedup_hits_total",
			Help:      "Requests that joined an in-flight load.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TierHits, m.TierMisses, m.TierStale, m.TierErrors,
			m.AsyncDrops, m.Requests, m.LoaderCalls, m.DedupHits,
		)
	}
	return m
}

// TieredStats is a point in time snapshot of Tiered counters.
type TieredStats struct {
	Hits       map[string]int64
	Misses     int64
	AsyncDrops int64
	TierErrors int64
	Tombstones int
}

type tieredCounters struct {
	hits       []*xsync.Counter
	misses     *xsync.Counter
	asyncDrops *xsync.Counter
	tierErrors *xsync.Counter
}

func newTieredCounters(n int) tieredCounters {
	c := tieredCounters{
		hits:       make([]*xsync.Counter, n),
		misses:     xsync.NewCounter(),
		asyncDrops: xsync.NewCounter(),
		tierErrors: xsync.NewCounter(),
	}
	for i := range c.hits {
		c.hits[i] = xsync.NewCounter()
	}
	return c
}
