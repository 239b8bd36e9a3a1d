package service

import (
	"context"
	stderrors "errors"
	"time"

	"chatsend/internal/errors"
	"chatsend/internal/metrics"
	"chatsend/internal/models"
	"chatsend/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// transmit sends a prepared payload and records the outcome. A successful
// acknowledgment moves the records to SENT and copies the mentions and
// channels the server computed; every other outcome moves them to ERROR.
// Nothing is returned: callers never branch on delivery.
func (c *Courier) transmit(ctx context.Context, session models.Session, msg *models.OutgoingMessage) {
	ctx, span := tracing.StartSpan(ctx, "outbox.transmit",
		attribute.String("message.id", msg.ID),
		attribute.Bool("message.encrypted", msg.IsEncrypted()),
	)
	defer span.End()

	fields := logrus.Fields{
		"message_id": SanitizeMessageID(msg.ID),
		"room_id":    msg.RoomID,
		"thread_id":  msg.ThreadID,
	}

	LogOutgoing(ctx, c.logger, "Transmitting message", msg.ID, msg.RoomID, msg.Msg)

	start := time.Now()
	result, err := c.remote.SendMessage(ctx, session, msg)
	metrics.RecordTimer(metrics.TransmitDuration, time.Since(start), nil, "Time spent waiting for the chat server")

	status := models.StatusError
	var echo *models.Message
	switch {
	case err != nil:
		tracing.RecordError(ctx, err)
		c.errLog.LogRetryableError(errors.NewTransmissionError(msg.ID, err), "Message transmission failed", fields)
	case result == nil || !result.Success:
		reason := "no result"
		if result != nil {
			reason = result.Error
		}
		c.errLog.LogRetryableError(errors.NewTransmissionError(msg.ID, stderrors.New("server rejected message: "+reason)), "Message transmission failed", fields)
	default:
		status = models.StatusSent
		echo = result.Message
	}

	metrics.IncrementCounter(metrics.TransmitsTotal, map[string]string{"result": status.String()}, "Transmit attempts by outcome")
	span.SetAttributes(attribute.String("message.status", status.String()))

	// The outcome is recorded even if the caller has gone away.
	c.writeStatus(context.WithoutCancel(ctx), msg.ID, msg.ThreadID, status, echo)
}

// writeStatus applies the delivery outcome to the message and, for replies,
// its thread twin in one transaction. A record that is not stored locally
// is skipped. Failures are logged and swallowed; the next sweep repairs
// the stored status.
func (c *Courier) writeStatus(ctx context.Context, id, tmid string, status models.MessageStatus, echo *models.Message) {
	fields := logrus.Fields{
		"message_id": SanitizeMessageID(id),
		"thread_id":  tmid,
		"status":     status.String(),
	}

	var mutations []models.Mutation
	if _, err := c.store.FindMessage(ctx, id); err == nil {
		mutations = append(mutations, models.SetMessageStatus(id, status, echo))
	} else {
		c.logLookupMiss(err, "messages", id)
	}

	if tmid != "" {
		if _, err := c.store.FindThreadMessage(ctx, id); err == nil {
			mutations = append(mutations, models.SetThreadMessageStatus(id, status, echo))
		} else {
			c.logLookupMiss(err, "thread_messages", id)
		}
	}

	if len(mutations) == 0 {
		c.logger.WithFields(fields).Warn("No local record to update with delivery status")
		return
	}

	if err := c.store.Batch(ctx, mutations...); err != nil {
		metrics.IncrementCounter(metrics.StatusWriteFailures, nil, "Delivery status writes that failed")
		c.errLog.LogError(errors.NewStatusWriteError(id, err), "Failed to record delivery status", fields)
		return
	}

	c.logger.WithFields(fields).Debug("Recorded delivery status")
}
