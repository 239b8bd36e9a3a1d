package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("rid", "must not be empty")

	assert.Equal(t, ErrCodeInvalidInput, err.Code)
	assert.Equal(t, "Invalid rid: must not be empty", err.UserMessage)
	assert.Equal(t, "rid", err.Context["field"])
}

func TestNewLocalWriteError(t *testing.T) {
	cause := errors.New("database is locked")
	err := NewLocalWriteError("send_message", cause)

	assert.Equal(t, ErrCodeLocalWrite, err.Code)
	assert.False(t, err.Retryable)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, "send_message", err.Context["operation"])
}

func TestNewLookupMissError(t *testing.T) {
	err := NewLookupMissError("messages", "parent")

	assert.Equal(t, ErrCodeLookupMiss, err.Code)
	assert.Equal(t, "messages", err.Context["collection"])
	assert.Equal(t, "parent", err.Context["record_id"])
}

func TestNewTransmissionError(t *testing.T) {
	err := NewTransmissionError("m1", errors.New("connection refused"))

	assert.Equal(t, ErrCodeTransmission, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, "m1", err.Context["message_id"])
}

func TestNewStatusWriteError(t *testing.T) {
	err := NewStatusWriteError("m1", errors.New("locked"))

	assert.Equal(t, ErrCodeStatusWrite, err.Code)
	assert.True(t, err.Retryable)
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", NewValidationError("msg", "empty"), http.StatusBadRequest},
		{"not found", NewNotFoundError("message", "m1"), http.StatusNotFound},
		{"lookup miss", NewLookupMissError("messages", "m1"), http.StatusNotFound},
		{"transmission", NewTransmissionError("m1", errors.New("x")), http.StatusBadGateway},
		{"local write", NewLocalWriteError("send", errors.New("x")), http.StatusServiceUnavailable},
		{"plain", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	err := NewValidationError("msg", "too long").WithContext("token", "secret-value")
	resp := ToHTTPResponse(err, "req_1")

	assert.Equal(t, "req_1", resp.RequestID)
	assert.Equal(t, ErrCodeInvalidInput, resp.Error.Code)
	assert.Equal(t, "Invalid msg: too long", resp.Error.Message)

	ctx, ok := resp.Error.Context.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "msg", ctx["field"])
	assert.NotContains(t, ctx, "token")
}

func TestToHTTPResponse_PlainError(t *testing.T) {
	resp := ToHTTPResponse(errors.New("x"), "")

	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Nil(t, resp.Error.Context)
}
