package service

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"chatsend/internal/errors"
	"chatsend/internal/metrics"
	"chatsend/internal/models"
	"chatsend/internal/security"
	"chatsend/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const defaultUploadType = "application/octet-stream"

// UploadSender hands file messages to the file transport and keeps the
// upload record in step with the outcome.
type UploadSender struct {
	store     Store
	transport FileTransport
	logger    *logrus.Logger
	errLog    *errors.Logger
}

func NewUploadSender(store Store, transport FileTransport, logger *logrus.Logger) *UploadSender {
	if logger == nil {
		logger = logrus.New()
	}
	return &UploadSender{
		store:     store,
		transport: transport,
		logger:    logger,
		errLog:    errors.WrapLogger(logger),
	}
}

// SendFileMessage uploads a stored file. A failed upload is flagged with
// error=true so the next sweep picks it up; a delivered one is removed from
// the store. isRetry is passed through to the transport.
func (s *UploadSender) SendFileMessage(ctx context.Context, session models.Session, rid string, upload *models.Upload, tmid string, isRetry bool) error {
	ctx, span := tracing.StartSpan(ctx, "outbox.upload",
		attribute.String("upload.id", upload.ID),
		attribute.Bool("upload.retry", isRetry),
	)
	defer span.End()

	fields := logrus.Fields{
		"upload_id": upload.ID,
		"room_id":   rid,
		"thread_id": tmid,
		"retry":     isRetry,
	}

	if s.transport == nil {
		err := errors.New(errors.ErrCodeUpload, "no file transport configured")
		s.flagFailed(ctx, upload.ID, fields)
		return err
	}

	err := s.transport.UploadFile(ctx, session, rid, upload, tmid, isRetry)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter(metrics.UploadsTotal, map[string]string{"result": "error"}, "File uploads by outcome")
		s.errLog.LogRetryableError(errors.NewUploadError(upload.ID, err), "File upload failed", fields)
		s.flagFailed(context.WithoutCancel(ctx), upload.ID, fields)
		return errors.NewUploadError(upload.ID, err)
	}

	metrics.IncrementCounter(metrics.UploadsTotal, map[string]string{"result": "sent"}, "File uploads by outcome")
	if err := s.store.Batch(context.WithoutCancel(ctx), models.DeleteUpload(upload.ID)); err != nil {
		s.errLog.LogError(errors.NewLocalWriteError("delete_upload", err), "Failed to remove delivered upload", fields)
	}
	s.logger.WithFields(fields).Debug("File upload delivered")
	return nil
}

func (s *UploadSender) flagFailed(ctx context.Context, id string, fields logrus.Fields) {
	if err := s.store.Batch(ctx, models.SetUploadError(id, true)); err != nil {
		metrics.IncrementCounter(metrics.StatusWriteFailures, nil, "Delivery status writes that failed")
		s.errLog.LogError(errors.NewStatusWriteError(id, err), "Failed to flag upload for resend", fields)
	}
}

// SendFile registers a local file as an upload and sends it. The upload id
// is returned whenever the record was stored. A failed delivery also returns
// an UPLOAD error; the upload stays flagged for the next sweep.
func (c *Courier) SendFile(ctx context.Context, session models.Session, rid, path, name, description, tmid string) (string, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid upload path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "upload file is not readable")
	}
	if info.IsDir() {
		return "", errors.New(errors.ErrCodeInvalidInput, "upload path is a directory")
	}
	if name == "" {
		name = filepath.Base(path)
	}

	upload := &models.Upload{
		ID:          c.newID(),
		RoomID:      rid,
		ThreadID:    tmid,
		Path:        path,
		Name:        name,
		Description: description,
		Type:        detectUploadType(name),
		Size:        info.Size(),
		TS:          c.clock.Now(),
	}
	c.claim(upload.ID)
	defer c.release(upload.ID)

	if err := c.store.Batch(ctx, models.CreateUpload(upload)); err != nil {
		metrics.IncrementCounter(metrics.LocalWriteFailures, map[string]string{"operation": "create_upload"}, "Outbox transactions that failed to commit")
		return "", errors.NewLocalWriteError("create_upload", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.uploads.SendFileMessage(ctx, session, rid, upload, tmid, false); err != nil {
		return upload.ID, err
	}
	return upload.ID, nil
}

func detectUploadType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultUploadType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultUploadType
}
