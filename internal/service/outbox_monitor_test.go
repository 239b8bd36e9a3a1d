package service

import (
	"context"
	"testing"
	"time"

	"chatsend/internal/metrics"
	"chatsend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCounter struct {
	count  int
	err    error
	cutoff time.Time
}

func (s *stubCounter) CountStale(_ context.Context, cutoff time.Time) (int, error) {
	s.cutoff = cutoff
	return s.count, s.err
}

func TestOutboxMonitor_CheckStale(t *testing.T) {
	counter := &stubCounter{count: 3}
	monitor := NewOutboxMonitor(counter, time.Minute, 5*time.Minute, quietLogger())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	monitor.now = func() time.Time { return now }

	assert.Equal(t, 3, monitor.checkStale(context.Background()))
	assert.True(t, counter.cutoff.Equal(now.Add(-5*time.Minute)))

	gauge, ok := metrics.GetSnapshot().Gauges[metrics.StaleRecords]
	require.True(t, ok)
	assert.Equal(t, float64(3), gauge.Value)
}

func TestOutboxMonitor_CountError(t *testing.T) {
	monitor := NewOutboxMonitor(&stubCounter{err: assert.AnError}, time.Minute, time.Minute, quietLogger())
	assert.Zero(t, monitor.checkStale(context.Background()))
}

func TestOutboxMonitor_AgainstStore(t *testing.T) {
	store := newTestStore(t)
	seedMessage(t, store, storedMessage("OLD", models.StatusTemp, 1_000))
	seedMessage(t, store, storedMessage("DONE", models.StatusSent, 1_000))

	monitor := NewOutboxMonitor(store, time.Minute, time.Minute, quietLogger())
	monitor.now = func() time.Time { return ms(10 * 60 * 1000) }

	assert.Equal(t, 1, monitor.checkStale(context.Background()))
}

func TestOutboxMonitor_StartStop(t *testing.T) {
	monitor := NewOutboxMonitor(&stubCounter{}, 10*time.Millisecond, time.Minute, quietLogger())
	done := make(chan struct{})
	go func() {
		monitor.Start(context.Background())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	monitor.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
