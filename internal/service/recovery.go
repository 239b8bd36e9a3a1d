package service

import (
	"context"
	"sort"
	"time"

	"chatsend/internal/errors"
	"chatsend/internal/metrics"
	"chatsend/internal/models"
	"chatsend/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ReplayKind tags the record a ReplayItem carries.
type ReplayKind int

const (
	TopLevelMessage ReplayKind = iota
	ThreadReply
	PendingUpload
)

func (k ReplayKind) String() string {
	switch k {
	case TopLevelMessage:
		return "message"
	case ThreadReply:
		return "thread_reply"
	case PendingUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// ReplayItem is one record to replay during a sweep. Exactly one of the
// record pointers is set, matching Kind.
type ReplayItem struct {
	Kind          ReplayKind
	TS            time.Time
	Message       *models.Message
	ThreadMessage *models.ThreadMessage
	Upload        *models.Upload
}

// ID returns the id of the carried record.
func (i ReplayItem) ID() string {
	switch i.Kind {
	case TopLevelMessage:
		return i.Message.ID
	case ThreadReply:
		return i.ThreadMessage.ID
	case PendingUpload:
		return i.Upload.ID
	default:
		return ""
	}
}

// SweepReport summarises one recovery sweep.
type SweepReport struct {
	RunID     string `json:"run_id"`
	Marked    int    `json:"marked"`
	Skipped   int    `json:"skipped"`
	Attempted int    `json:"attempted"`
}

// ResendFailedMessages replays every undelivered record. Pending messages and
// thread replies are first marked TEMP in a single transaction; they are then
// resent together with the failed uploads, one at a time, oldest first.
// Individual failures are logged and do not stop the sweep. Uploads without a
// reliable creation time are left out, as are records another delivery is
// already handling. New messages can be stored while a sweep replays; their
// transmission waits for the sweep to finish.
func (c *Courier) ResendFailedMessages(ctx context.Context, session models.Session) SweepReport {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	report := SweepReport{RunID: tracing.NewRunID()}
	ctx, span := tracing.StartSpan(ctx, "outbox.sweep", attribute.String("sweep.run_id", report.RunID))
	defer span.End()

	start := time.Now()
	logger := c.logger.WithField("run_id", report.RunID)

	items, marked, skipped, err := c.collectReplay(ctx)
	report.Marked = marked
	report.Skipped = skipped
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter(metrics.SweepsTotal, map[string]string{"result": "aborted"}, "Recovery sweeps by outcome")
		c.errLog.LogError(err, "Recovery sweep aborted", logrus.Fields{"run_id": report.RunID})
		return report
	}

	for _, item := range items {
		report.Attempted++
		c.replay(ctx, session, item)
		c.release(item.ID())
	}

	metrics.IncrementCounter(metrics.SweepsTotal, map[string]string{"result": "completed"}, "Recovery sweeps by outcome")
	metrics.AddToCounter(metrics.SweepItemsReplayed, float64(report.Attempted), nil, "Records replayed by recovery sweeps")
	metrics.RecordTimer(metrics.SweepDuration, time.Since(start), nil, "Recovery sweep duration")
	span.SetAttributes(
		attribute.Int("sweep.marked", report.Marked),
		attribute.Int("sweep.attempted", report.Attempted),
	)

	logger.WithFields(logrus.Fields{
		"marked":    report.Marked,
		"skipped":   report.Skipped,
		"attempted": report.Attempted,
	}).Info("Recovery sweep finished")
	return report
}

// collectReplay runs the first phase of a sweep: it loads the undelivered
// records, commits the TEMP marks and returns the replay order. Every
// returned item is claimed; the caller releases it after the replay.
func (c *Courier) collectReplay(ctx context.Context) ([]ReplayItem, int, int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	messages, err := c.store.PendingMessages(ctx)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, errors.ErrCodeLocalWrite, "failed to query pending messages")
	}
	threadMessages, err := c.store.PendingThreadMessages(ctx)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, errors.ErrCodeLocalWrite, "failed to query pending thread messages")
	}
	uploads, err := c.store.FailedUploads(ctx)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, errors.ErrCodeLocalWrite, "failed to query failed uploads")
	}

	var skipped int
	messages, n := withoutInFlight(messages, c.inFlightLocked, func(m *models.Message) string { return m.ID })
	skipped += n
	threadMessages, n = withoutInFlight(threadMessages, c.inFlightLocked, func(tm *models.ThreadMessage) string { return tm.ID })
	skipped += n
	uploads, n = withoutInFlight(uploads, c.inFlightLocked, func(u *models.Upload) string { return u.ID })
	skipped += n

	mutations := make([]models.Mutation, 0, len(messages)+len(threadMessages)+len(uploads))
	for _, m := range messages {
		mutations = append(mutations, models.SetMessageStatus(m.ID, models.StatusTemp, nil))
	}
	for _, tm := range threadMessages {
		mutations = append(mutations, models.SetThreadMessageStatus(tm.ID, models.StatusTemp, nil))
	}
	for _, u := range uploads {
		mutations = append(mutations, models.SetUploadError(u.ID, false))
	}
	if len(mutations) > 0 {
		if err := c.store.Batch(ctx, mutations...); err != nil {
			return nil, 0, 0, errors.NewLocalWriteError("sweep_mark", err)
		}
	}

	// Undated uploads are cleared with the rest but never replayed.
	reliable := uploads[:0:0]
	for _, u := range uploads {
		if !u.HasReliableTimestamp() {
			skipped++
			continue
		}
		reliable = append(reliable, u)
	}

	items := make([]ReplayItem, 0, len(messages)+len(threadMessages)+len(reliable))
	for _, m := range messages {
		items = append(items, ReplayItem{Kind: TopLevelMessage, TS: m.TS, Message: m})
	}
	for _, tm := range threadMessages {
		items = append(items, ReplayItem{Kind: ThreadReply, TS: tm.TS, ThreadMessage: tm})
	}
	for _, u := range reliable {
		items = append(items, ReplayItem{Kind: PendingUpload, TS: u.TS, Upload: u})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TS.Before(items[j].TS)
	})
	for _, item := range items {
		c.claimLocked(item.ID())
	}

	return items, len(mutations), skipped, nil
}

func (c *Courier) replay(ctx context.Context, session models.Session, item ReplayItem) {
	switch item.Kind {
	case TopLevelMessage:
		c.resend(ctx, session, FromMessage(item.Message), item.Message.ThreadID)
	case ThreadReply:
		c.resend(ctx, session, FromThreadMessage(item.ThreadMessage), item.ThreadMessage.ThreadID)
	case PendingUpload:
		u := item.Upload
		if err := c.uploads.SendFileMessage(ctx, session, u.RoomID, u, u.ThreadID, true); err != nil {
			c.logger.WithFields(logrus.Fields{
				"upload_id": u.ID,
				"room_id":   u.RoomID,
			}).WithError(err).Warn("Upload replay failed")
		}
	}
}

// withoutInFlight drops the records that are currently being delivered and
// returns how many were dropped.
func withoutInFlight[T any](records []T, busy func(string) bool, id func(T) string) ([]T, int) {
	kept := records[:0:0]
	for _, r := range records {
		if busy(id(r)) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}
