package service

import (
	"context"
	"time"

	"chatsend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// StaleCounter counts outbox records still TEMP since before cutoff.
type StaleCounter interface {
	CountStale(ctx context.Context, cutoff time.Time) (int, error)
}

// OutboxMonitor periodically reports records that have been in flight for
// longer than the stale threshold. Such records usually mean a send hung or
// the process died mid-flight; the next sweep resolves them.
type OutboxMonitor struct {
	db             StaleCounter
	checkInterval  time.Duration
	staleThreshold time.Duration
	now            func() time.Time
	logger         *logrus.Logger
	stopCh         chan struct{}
}

func NewOutboxMonitor(db StaleCounter, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *OutboxMonitor {
	return &OutboxMonitor{
		db:             db,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		now:            time.Now,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

func (m *OutboxMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting outbox monitor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkStale(ctx)
		}
	}
}

func (m *OutboxMonitor) Stop() {
	close(m.stopCh)
}

func (m *OutboxMonitor) checkStale(ctx context.Context) int {
	count, err := m.db.CountStale(ctx, m.now().Add(-m.staleThreshold))
	if err != nil {
		m.logger.WithError(err).Error("Failed to check for stale outbox records")
		return 0
	}
	metrics.SetGauge(metrics.StaleRecords, float64(count), nil, "Outbox records stuck in TEMP")
	if count > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": count,
			"threshold":   m.staleThreshold,
		}).Warn("Outbox records stuck in 'sending' status")
	}
	return count
}
