package tracing

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	require.True(t, strings.HasPrefix(id, "req_"))

	_, err := uuid.Parse(strings.TrimPrefix(id, "req_"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateRequestID())
}

func TestNewRunID(t *testing.T) {
	_, err := uuid.Parse(NewRunID())
	assert.NoError(t, err)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Zero(t, Duration(ctx))

	ctx = WithRequestID(ctx, "req_1")
	ctx = WithStartTime(ctx, time.Now().Add(-time.Second))

	assert.Equal(t, "req_1", GetRequestID(ctx))
	assert.GreaterOrEqual(t, Duration(ctx), time.Second)
}

func TestTracingManager_Disabled(t *testing.T) {
	tm := NewTracingManager(DefaultTracingConfig(), quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.tracerProvider)
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_StdoutLifecycle(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.SampleRate = 1
	tm := NewTracingManager(cfg, quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	require.NotNil(t, tm.tracerProvider)

	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	assert.True(t, span.IsRecording())
	assert.NotEmpty(t, GetOtelTraceID(ctx))
	AddSpanAttributes(ctx, attribute.Int("n", 1))
	RecordError(ctx, errors.New("boom"))
	span.End()

	assert.NoError(t, tm.Shutdown(context.Background()))
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetOtelTraceID(ctx))
	assert.NotPanics(t, func() {
		AddSpanAttributes(ctx, attribute.String("k", "v"))
		RecordError(ctx, errors.New("ignored"))
	})
}
