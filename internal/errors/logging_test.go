package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogError(NewLocalWriteError("send_message", errors.New("locked")), "Failed to commit outbox batch",
		logrus.Fields{"room_id": "r1"})

	entry := decodeLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Failed to commit outbox batch", entry["msg"])
	assert.Equal(t, "LOCAL_WRITE", entry["error_code"])
	assert.Equal(t, "send_message", entry["operation"])
	assert.Equal(t, "r1", entry["room_id"])
}

func TestLogger_LogRetryableError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogRetryableError(NewTransmissionError("m1", errors.New("timeout")), "Send failed")
	assert.Equal(t, "warning", decodeLine(t, buf)["level"])

	buf.Reset()
	logger.LogRetryableError(errors.New("plain"), "Send failed")
	assert.Equal(t, "error", decodeLine(t, buf)["level"])
}

func TestWrapLogger(t *testing.T) {
	base := logrus.New()
	assert.Same(t, base, WrapLogger(base).Logger)
	assert.NotNil(t, WrapLogger(nil).Logger)
}
