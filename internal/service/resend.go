package service

import (
	"context"
	stderrors "errors"

	"chatsend/internal/errors"
	"chatsend/internal/models"
	"chatsend/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Resendable is a stored message or thread reply that can be transmitted
// again.
type Resendable struct {
	ID     string
	RoomID string
	Msg    string
	// ThreadCollection is true when the record lives in the thread
	// messages collection.
	ThreadCollection bool
}

func FromMessage(m *models.Message) Resendable {
	return Resendable{ID: m.ID, RoomID: m.RoomID, Msg: m.Msg}
}

func FromThreadMessage(tm *models.ThreadMessage) Resendable {
	return Resendable{ID: tm.ID, RoomID: tm.RoomID, Msg: tm.Msg, ThreadCollection: true}
}

// ResendMessage transmits a stored record again. A manual resend first marks
// the record TEMP so the user sees it as sending before the network call;
// an automatic one relies on the sweep having done so already. Errors are
// logged and swallowed and leave the record as it was. A record that is
// already being delivered is left to that delivery.
func (c *Courier) ResendMessage(ctx context.Context, session models.Session, record Resendable, tmid string, autoResend bool) {
	fields := logrus.Fields{
		"message_id":  SanitizeMessageID(record.ID),
		"room_id":     record.RoomID,
		"thread_id":   tmid,
		"auto_resend": autoResend,
	}
	if !c.claim(record.ID) {
		c.logger.WithFields(fields).Debug("Message is already being delivered")
		return
	}
	defer c.release(record.ID)

	if !autoResend && !c.markForResend(ctx, record, fields) {
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.resend(ctx, session, record, tmid)
}

// markForResend commits the TEMP mark of a manual resend in the record's own
// collection.
func (c *Courier) markForResend(ctx context.Context, record Resendable, fields logrus.Fields) bool {
	mark := models.SetMessageStatus(record.ID, models.StatusTemp, nil)
	if record.ThreadCollection {
		mark = models.SetThreadMessageStatus(record.ID, models.StatusTemp, nil)
	}
	if err := c.store.Batch(ctx, mark); err != nil {
		c.errLog.LogError(errors.NewLocalWriteError("mark_temp", err), "Failed to mark message for resend", fields)
		return false
	}
	return true
}

// ResendByID loads a record by id and resends it manually. Messages are
// preferred over thread replies with the same id.
func (c *Courier) ResendByID(ctx context.Context, session models.Session, id string) error {
	record, tmid, err := c.loadResendable(ctx, id)
	if err != nil {
		return err
	}
	c.ResendMessage(ctx, session, record, tmid, false)
	return nil
}

func (c *Courier) loadResendable(ctx context.Context, id string) (Resendable, string, error) {
	m, err := c.store.FindMessage(ctx, id)
	if err == nil {
		return FromMessage(m), m.ThreadID, nil
	}
	if !stderrors.Is(err, models.ErrNotFound) {
		return Resendable{}, "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to load message")
	}

	tm, err := c.store.FindThreadMessage(ctx, id)
	if err == nil {
		return FromThreadMessage(tm), tm.ThreadID, nil
	}
	if stderrors.Is(err, models.ErrNotFound) {
		return Resendable{}, "", errors.NewNotFoundError("message", id)
	}
	return Resendable{}, "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to load thread message")
}

// resend encrypts and transmits a record that is already marked TEMP. The
// caller holds sendMu and the record's claim.
func (c *Courier) resend(ctx context.Context, session models.Session, record Resendable, tmid string) {
	ctx, span := tracing.StartSpan(ctx, "outbox.resend",
		attribute.String("message.id", record.ID),
		attribute.String("thread.id", tmid),
	)
	defer span.End()

	fields := logrus.Fields{
		"message_id": SanitizeMessageID(record.ID),
		"room_id":    record.RoomID,
		"thread_id":  tmid,
	}

	// tshow is only cached on the messages collection.
	var tshow bool
	if tmid != "" {
		m, err := c.store.FindMessage(ctx, record.ID)
		switch {
		case err == nil:
			tshow = m.ThreadShow
		case stderrors.Is(err, models.ErrNotFound):
			c.logLookupMiss(err, "messages", record.ID)
		default:
			tracing.RecordError(ctx, err)
			c.errLog.LogError(errors.Wrap(err, errors.ErrCodeInternalError, "thread flag lookup failed"), "Failed to resend message", fields)
			return
		}
	}

	outgoing := &models.OutgoingMessage{
		ID:     record.ID,
		RoomID: record.RoomID,
		Msg:    record.Msg,
	}
	if tmid != "" {
		outgoing.ThreadID = tmid
		outgoing.ThreadShow = tshow
	}

	prepared, err := c.encryptor.EncryptMessage(ctx, outgoing)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.errLog.LogError(errors.NewEncryptionError(record.RoomID, err), "Failed to prepare message for resend", fields)
		return
	}

	LogWithContext(ctx, c.logger).WithFields(fields).Debug("Resending message")
	c.transmit(ctx, session, prepared)
}
