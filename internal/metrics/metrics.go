// Package metrics holds the Prometheus collectors for the offline core.
//
// Collectors are registered on an injected prometheus.Registerer so tests
// and embedded callers can use a private registry. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldkit"

// Fetch results used as the "result" label of RemoteFetches.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Cache layers used as the "layer" label of cache lookups.
const (
	LayerMemory = "memory"
	LayerStore  = "store"
)

// Metrics bundles every collector the core updates.
type Metrics struct {
	queueLength   prometheus.Gauge
	enqueued      prometheus.Counter
	remoteFetches *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   prometheus.Counter
	corruptReads  *prometheus.CounterVec
	quarantined   prometheus.Counter
}

// New creates and registers the collectors on reg.
// Panics if a collector with the same name is already registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "length",
			Help:      "Number of submissions currently held in the local queue",
		}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Submissions appended to the local queue",
		}),
		remoteFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "remote_fetches_total",
			Help:      "Doctype fetches issued to the metadata provider, by result",
		}, []string{"result"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "cache_hits_total",
			Help:      "Schema lookups served locally, by layer",
		}, []string{"layer"}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "cache_misses_total",
			Help:      "Schema lookups with no usable local copy",
		}),
		corruptReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_reads_total",
			Help:      "Persisted values that could not be decoded, by resource",
		}, []string{"resource"}),
		quarantined: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantined_total",
			Help:      "Corrupt values copied aside before being overwritten",
		}),
	}
}

// SetQueueLength records the current queue depth.
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// Enqueued counts one appended submission.
func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

// RemoteFetch counts one provider call.
func (m *Metrics) RemoteFetch(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.remoteFetches.WithLabelValues(result).Inc()
}

// CacheHit counts a schema served from layer.
func (m *Metrics) CacheHit(layer string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(layer).Inc()
}

// CacheMiss counts a schema lookup with no local copy.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// CorruptRead counts an undecodable value for resource ("queue", "draft",
// "doctype", "names_index").
func (m *Metrics) CorruptRead(resource string) {
	if m == nil {
		return
	}
	m.corruptReads.WithLabelValues(resource).Inc()
}

// Quarantined counts a corrupt value preserved before overwrite.
func (m *Metrics) Quarantined() {
	if m == nil {
		return
	}
	m.quarantined.Inc()
}
