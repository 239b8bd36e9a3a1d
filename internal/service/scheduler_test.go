package service

import (
	"context"
	"testing"
	"time"

	"chatsend/internal/models"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls chan models.Session
}

func (s *countingSweeper) ResendFailedMessages(_ context.Context, session models.Session) SweepReport {
	s.calls <- session
	return SweepReport{RunID: "run"}
}

func waitForSweep(t *testing.T, s *countingSweeper) {
	t.Helper()
	select {
	case session := <-s.calls:
		assert.Equal(t, testSession, session)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not run")
	}
}

func TestScheduler_SweepsOnStartupAndTrigger(t *testing.T) {
	sweeper := &countingSweeper{calls: make(chan models.Session, 4)}
	scheduler := NewScheduler(sweeper, testSession, true, 0, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	waitForSweep(t, sweeper)

	scheduler.Trigger()
	waitForSweep(t, sweeper)

	scheduler.Stop()
	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

func TestScheduler_Interval(t *testing.T) {
	sweeper := &countingSweeper{calls: make(chan models.Session, 16)}
	scheduler := NewScheduler(sweeper, testSession, false, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	waitForSweep(t, sweeper)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	scheduler := NewScheduler(&countingSweeper{calls: make(chan models.Session, 1)}, testSession, false, 0, quietLogger())

	scheduler.Trigger()
	scheduler.Trigger()
	scheduler.Trigger()

	assert.Len(t, scheduler.triggerCh, 1)
}
