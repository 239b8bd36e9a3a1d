package service

import (
	"context"
	stderrors "errors"
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/errors"
	"chatsend/internal/metrics"
	"chatsend/internal/models"
	"chatsend/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const fallbackUserID = constants.FallbackUserID

// SendMessage writes a new outgoing message to the local store with status
// TEMP and then transmits it. Thread bookkeeping, the reply itself and the
// draft clear are committed in one transaction before the network call.
// Lookup misses only skip the step that depends on them.
//
// The returned id is empty when nothing was written. Delivery outcome is
// observed through the stored status, never through the return value.
func (c *Courier) SendMessage(ctx context.Context, session models.Session, rid, msg, tmid string, user models.UserRef, tshow bool) string {
	outgoing := c.storeOutgoing(ctx, rid, msg, tmid, user, tshow)
	if outgoing == nil {
		return ""
	}
	c.deliver(ctx, session, outgoing)
	return outgoing.ID
}

// Enqueue commits a new outgoing message like SendMessage but returns as
// soon as the record is stored with status TEMP; the transmission runs in
// the background. Wait blocks until queued transmissions are done.
func (c *Courier) Enqueue(ctx context.Context, session models.Session, rid, msg, tmid string, user models.UserRef, tshow bool) string {
	outgoing := c.storeOutgoing(ctx, rid, msg, tmid, user, tshow)
	if outgoing == nil {
		return ""
	}
	ctx = context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.deliver(ctx, session, outgoing)
	}()
	return outgoing.ID
}

// deliver transmits a freshly stored message and releases its claim.
func (c *Courier) deliver(ctx context.Context, session models.Session, outgoing *models.OutgoingMessage) {
	defer c.release(outgoing.ID)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.transmit(ctx, session, outgoing)
}

// storeOutgoing prepares and commits a new message. It returns nil when
// nothing was written; otherwise the stored record is claimed for delivery.
func (c *Courier) storeOutgoing(ctx context.Context, rid, msg, tmid string, user models.UserRef, tshow bool) *models.OutgoingMessage {
	ctx, span := tracing.StartSpan(ctx, "outbox.send_message",
		attribute.String("room.id", rid),
		attribute.Bool("thread.reply", tmid != ""),
	)
	defer span.End()

	id := c.newID()
	now := c.clock.Now()
	fields := logrus.Fields{
		"message_id": SanitizeMessageID(id),
		"room_id":    rid,
		"thread_id":  tmid,
	}

	outgoing, err := c.encryptor.EncryptMessage(ctx, &models.OutgoingMessage{
		ID:         id,
		RoomID:     rid,
		Msg:        msg,
		ThreadID:   tmid,
		ThreadShow: tshow,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		c.errLog.LogError(errors.NewEncryptionError(rid, err), "Failed to prepare outgoing message", fields)
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	e2e := e2eStatusFor(outgoing.Type)
	sender := senderRef(user)
	var mutations []models.Mutation

	var parent *models.Message
	if tmid != "" {
		parent, mutations = c.threadMutations(ctx, rid, tmid, id, msg, sender, outgoing.Type, e2e, now)
	}

	record := &models.Message{
		ID:        id,
		RoomID:    rid,
		Msg:       msg,
		User:      sender,
		TS:        now,
		UpdatedAt: now,
		Status:    models.StatusTemp,
		Type:      outgoing.Type,
		E2E:       e2e,
	}
	if parent != nil {
		record.ThreadID = tmid
		record.ThreadMsg = parent.Msg
		record.ThreadShow = tshow
	}
	mutations = append(mutations, models.CreateMessage(record))

	if sub, err := c.store.FindSubscription(ctx, rid); err == nil {
		if sub.HasDraft() {
			mutations = append(mutations, models.ClearDraft(rid))
		}
	} else {
		c.logLookupMiss(err, "subscription", rid)
	}

	if err := c.store.Batch(ctx, mutations...); err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter(metrics.LocalWriteFailures, map[string]string{"operation": "send_message"}, "Outbox transactions that failed to commit")
		c.errLog.LogError(errors.NewLocalWriteError("send_message", err), "Failed to store outgoing message", fields)
		return nil
	}
	metrics.IncrementCounter(metrics.MessagesQueued, nil, "Messages written to the outbox")
	c.claimLocked(id)

	LogWithContext(ctx, c.logger).WithFields(fields).WithField("mutations", len(mutations)).Debug("Stored outgoing message")
	return outgoing
}

// threadMutations builds the thread bookkeeping of a reply. It returns the
// parent message when it was found; without a parent no thread records are
// written.
func (c *Courier) threadMutations(ctx context.Context, rid, tmid, id, msg string, sender models.UserRef, msgType string, e2e models.E2EStatus, now time.Time) (*models.Message, []models.Mutation) {
	parent, err := c.store.FindMessage(ctx, tmid)
	if err != nil {
		c.logLookupMiss(err, "messages", tmid)
		return nil, nil
	}

	mutations := []models.Mutation{models.BumpThread(tmid, now)}

	_, err = c.store.FindThread(ctx, tmid)
	switch {
	case err == nil:
	case stderrors.Is(err, models.ErrNotFound):
		tlm := now
		mutations = append(mutations, models.CreateThread(&models.Thread{
			ID:                tmid,
			RoomID:            rid,
			ThreadID:          tmid,
			Msg:               parent.Msg,
			TS:                parent.TS,
			UpdatedAt:         now,
			Status:            models.StatusSent,
			User:              parent.User,
			Type:              msgType,
			E2E:               e2e,
			Attachments:       parent.Attachments,
			ReplyCount:        parent.ThreadCount + 1,
			ThreadLastMessage: &tlm,
		}))
	default:
		c.logLookupMiss(err, "threads", tmid)
	}

	mutations = append(mutations, models.CreateThreadMessage(&models.ThreadMessage{
		ID:        id,
		RoomID:    rid,
		ThreadID:  tmid,
		Msg:       msg,
		User:      sender,
		TS:        now,
		UpdatedAt: now,
		Status:    models.StatusTemp,
		Type:      msgType,
		E2E:       e2e,
	}))

	return parent, mutations
}

func (c *Courier) logLookupMiss(err error, collection, id string) {
	if stderrors.Is(err, models.ErrNotFound) {
		c.logger.WithFields(logrus.Fields{
			"collection": collection,
			"record_id":  id,
		}).Debug("Referenced record not found locally")
		return
	}
	c.errLog.LogWarn(errors.NewLookupMissError(collection, id).WithContext("cause", err.Error()), "Failed to look up referenced record")
}

func e2eStatusFor(msgType string) models.E2EStatus {
	if msgType == models.MessageTypeE2E {
		return models.E2EStatusDone
	}
	return ""
}
