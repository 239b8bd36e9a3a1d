package chatapi

import (
	"fmt"

	"chatsend/internal/models"
)

// SendMessageRequest is the body of chat.sendMessage.
type SendMessageRequest struct {
	Message *models.OutgoingMessage `json:"message"`
}

// UploadResponse is the body returned by rooms.upload.
type UploadResponse struct {
	Success bool            `json:"success"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// APIError is returned when the server answers with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat API error: status %d, body: %s", e.StatusCode, e.Body)
}
