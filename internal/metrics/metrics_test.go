package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetQueueLength(3)
	m.Enqueued()
	m.Enqueued()
	m.RemoteFetch(nil)
	m.RemoteFetch(errors.New("timeout"))
	m.RemoteFetch(errors.New("timeout"))
	m.CacheHit(LayerMemory)
	m.CacheHit(LayerStore)
	m.CacheMiss()
	m.CorruptRead("queue")
	m.Quarantined()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueLength))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.enqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteFetches.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteFetches.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues(LayerMemory)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corruptReads.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quarantined))
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetQueueLength(1)

	n, err := testutil.GatherAndCount(reg, "fieldkit_queue_length")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetQueueLength(1)
		m.Enqueued()
		m.RemoteFetch(nil)
		m.CacheHit(LayerStore)
		m.CacheMiss()
		m.CorruptRead("draft")
		m.Quarantined()
	})
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
