package service

import (
	"context"
	"sync"
	"time"

	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
)

// Sweeper runs a recovery sweep for a session.
type Sweeper interface {
	ResendFailedMessages(ctx context.Context, session models.Session) SweepReport
}

// Scheduler decides when the recovery sweep runs: once at startup, on every
// tick of an optional interval, and whenever Trigger is called (a reconnect
// or resume signal).
type Scheduler struct {
	sweeper   Sweeper
	session   models.Session
	onStartup bool
	interval  time.Duration
	logger    *logrus.Logger
	triggerCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a scheduler. An interval of zero disables periodic
// sweeps.
func NewScheduler(sweeper Sweeper, session models.Session, onStartup bool, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		sweeper:   sweeper,
		session:   session,
		onStartup: onStartup,
		interval:  interval,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.WithFields(logrus.Fields{
		"on_startup": s.onStartup,
		"interval":   s.interval,
	}).Info("Starting sweep scheduler")

	if s.onStartup {
		s.runSweep(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-tick:
			s.runSweep(ctx, "interval")
		case <-s.triggerCh:
			s.runSweep(ctx, "trigger")
		}
	}
}

// Trigger requests a sweep. Requests made while one is already pending are
// coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runSweep(ctx context.Context, reason string) {
	s.logger.WithField("reason", reason).Info("Running recovery sweep")
	report := s.sweeper.ResendFailedMessages(ctx, s.session)
	s.logger.WithFields(logrus.Fields{
		"reason":    reason,
		"run_id":    report.RunID,
		"attempted": report.Attempted,
	}).Debug("Recovery sweep returned")
}
