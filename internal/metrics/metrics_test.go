package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter(TransmitsTotal, map[string]string{"result": "sent"}, "Transmit attempts")
	r.IncrementCounter(TransmitsTotal, map[string]string{"result": "sent"}, "Transmit attempts")
	r.AddToCounter(TransmitsTotal, 3, map[string]string{"result": "error"}, "Transmit attempts")

	snap := r.Snapshot()
	require.Len(t, snap.Counters, 2)
	assert.Equal(t, 2.0, snap.Counters["outbox_transmits_total_result:sent"].Value)
	assert.Equal(t, 3.0, snap.Counters["outbox_transmits_total_result:error"].Value)
	assert.Equal(t, Counter, snap.Counters["outbox_transmits_total_result:error"].Type)
}

func TestGauge_Overwrites(t *testing.T) {
	r := NewRegistry()

	r.SetGauge(StaleRecords, 4, nil, "")
	r.SetGauge(StaleRecords, 1, nil, "")

	snap := r.Snapshot()
	assert.Equal(t, 1.0, snap.Gauges[StaleRecords].Value)
}

func TestTimer(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 20; i++ {
		r.RecordTimer(SweepDuration, time.Duration(i)*time.Millisecond, nil, "")
	}

	timer := r.Snapshot().Timers[SweepDuration]
	assert.Equal(t, int64(20), timer.Count)
	assert.Equal(t, 1.0, timer.Min)
	assert.Equal(t, 20.0, timer.Max)
	assert.InDelta(t, 10.5, timer.Average, 0.001)
	assert.Equal(t, 20.0, timer.P95)
	assert.Nil(t, timer.samples)
}

func TestMetricKey_StableLabelOrder(t *testing.T) {
	a := metricKey("x", map[string]string{"b": "2", "a": "1"})
	b := metricKey("x", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "x_a:1_b:2", a)
	assert.Equal(t, "x", metricKey("x", nil))
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.95))
	assert.Equal(t, 5.0, percentile([]float64{5, 1, 3}, 0.99))
}

func TestLabelsAreCopied(t *testing.T) {
	r := NewRegistry()
	labels := map[string]string{"kind": "upload"}
	r.IncrementCounter(SweepItemsReplayed, labels, "")
	labels["kind"] = "mutated"

	snap := r.Snapshot()
	assert.Equal(t, "upload", snap.Counters["outbox_sweep_items_replayed_total_kind:upload"].Labels["kind"])
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCounter(MessagesQueued, nil, "")
			r.RecordTimer(TransmitDuration, time.Millisecond, nil, "")
			_ = r.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, r.Snapshot().Counters[MessagesQueued].Value)
}

func TestGlobalHelpers(t *testing.T) {
	IncrementCounter("test_global_counter", nil, "")
	SetGauge("test_global_gauge", 7, nil, "")
	RecordTimer("test_global_timer", time.Millisecond, nil, "")
	AddToCounter("test_global_counter", 2, nil, "")

	snap := GetSnapshot()
	assert.Equal(t, 3.0, snap.Counters["test_global_counter"].Value)
	assert.Equal(t, 7.0, snap.Gauges["test_global_gauge"].Value)
	assert.Equal(t, int64(1), snap.Timers["test_global_timer"].Count)
	assert.Same(t, globalRegistry, GetRegistry())
}
