package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global collector instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the preloading engine
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Preload metrics
	PreloadPasses    *prometheus.CounterVec
	TombstonesServed prometheus.Counter

	// Backing-store metrics
	BackingBatches *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	// Return existing collector if already created
	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits per cache",
		},
		[]string{"cache"},
	)

	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses per cache",
		},
		[]string{"cache"},
	)

	preloadPasses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_passes_total",
			Help:      "Total number of dependency-expansion passes executed",
		},
		[]string{"pass"},
	)

	tombstonesServed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tombstones_served_total",
			Help:      "Total number of tombstone records synthesized for unresolvable keys",
		},
	)

	backingBatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backing_batches_total",
			Help:      "Total number of batch calls issued to backing stores",
		},
		[]string{"store"},
	)

	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backing_batch_duration_seconds",
			Help:      "Backing-store batch call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	registry.MustRegister(cacheHits, cacheMisses, preloadPasses, tombstonesServed, backingBatches, batchDuration)

	globalCollector = &Collector{
		registry:         registry,
		CacheHits:        cacheHits,
		CacheMisses:      cacheMisses,
		PreloadPasses:    preloadPasses,
		TombstonesServed: tombstonesServed,
		BackingBatches:   backingBatches,
		BatchDuration:    batchDuration,
	}
	return globalCollector
}

// Registry exposes the collector's registry for the /metrics handler
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Recording helpers are nil-safe so callers can run without metrics wired.

// RecordCacheHit increments the hit counter for a cache
func (c *Collector) RecordCacheHit(cache string) {
	if c == nil {
		return
	}
	c.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments the miss counter for a cache
func (c *Collector) RecordCacheMiss(cache string) {
	if c == nil {
		return
	}
	c.CacheMisses.WithLabelValues(cache).Inc()
}

// RecordPreloadPass counts one executed expansion pass
func (c *Collector) RecordPreloadPass(pass string) {
	if c == nil {
		return
	}
	c.PreloadPasses.WithLabelValues(pass).Inc()
}

// RecordTombstone counts one synthesized tombstone record
func (c *Collector) RecordTombstone() {
	if c == nil {
		return
	}
	c.TombstonesServed.Inc()
}

// RecordBackingBatch counts one backing batch call and its duration
func (c *Collector) RecordBackingBatch(store string, duration time.Duration) {
	if c == nil {
		return
	}
	c.BackingBatches.WithLabelValues(store).Inc()
	c.BatchDuration.WithLabelValues(store).Observe(duration.Seconds())
}
