package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewLocalWriteError reports a store transaction that could not commit. The
// flow that produced it stops at this point.
func NewLocalWriteError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeLocalWrite, fmt.Sprintf("local write %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Message could not be saved, please retry")
}

// NewLookupMissError reports a referenced record that is absent locally.
func NewLookupMissError(collection, id string) *AppError {
	return New(ErrCodeLookupMiss, fmt.Sprintf("%s record not found", collection)).
		WithContext("collection", collection).
		WithContext("record_id", id)
}

// NewTransmissionError reports a send that failed or was not acknowledged.
// The record resolves to ERROR and stays eligible for the next sweep.
func NewTransmissionError(messageID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeTransmission, "message transmission failed").
		WithContext("message_id", messageID)
}

// NewStatusWriteError reports a post-send status write that failed. The
// on-disk status stays stale until the next sweep.
func NewStatusWriteError(messageID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeStatusWrite, "status write failed").
		WithContext("message_id", messageID)
}

// NewEncryptionError reports a payload the encryption adapter could not prepare.
func NewEncryptionError(roomID string, err error) *AppError {
	return Wrap(err, ErrCodeEncryption, "message encryption failed").
		WithContext("room_id", roomID)
}

// NewUploadError reports a file upload that the transport rejected.
func NewUploadError(uploadID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeUpload, "file upload failed").
		WithContext("upload_id", uploadID)
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeLookupMiss:
		return http.StatusNotFound
	case ErrCodeTransmission, ErrCodeUpload:
		return http.StatusBadGateway
	case ErrCodeLocalWrite, ErrCodeStatusWrite, ErrCodeDatabaseConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the error body returned by the local HTTP API
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)

	if appErr, ok := err.(*AppError); ok && len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "token" && k != "secret" && k != "body" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}

	return response
}
