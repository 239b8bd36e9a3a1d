package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatsend/internal/constants"
	"chatsend/internal/errors"
)

// ValidateRoomID validates a room id taken from a request path or body
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "room ID cannot be empty")
	}

	if len(roomID) > constants.DefaultMaxRoomIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("room ID too long (max %d characters)", constants.DefaultMaxRoomIDLength))
	}

	for _, char := range roomID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return errors.New(errors.ErrCodeInvalidInput,
				"room ID must contain only letters, numbers, dots, underscores, and dashes")
		}
	}

	return nil
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message ID cannot be empty")
	}

	if len(messageID) > constants.MaxMessageIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}

	if strings.ContainsAny(messageID, "\x00\n\r\t/") {
		return errors.New(errors.ErrCodeInvalidInput, "message ID contains invalid characters")
	}

	return nil
}

// ValidateThreadID accepts an empty id; a present one must be a valid message id
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return nil
	}
	if err := ValidateMessageID(threadID); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "invalid thread ID").WithContext("cause", err.Error())
	}
	return nil
}

// ValidateMessageBody checks that a body is non-blank UTF-8 within the length limit
func ValidateMessageBody(body string, maxLength int) error {
	if strings.TrimSpace(body) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message body cannot be empty")
	}

	if !utf8.ValidString(body) {
		return errors.New(errors.ErrCodeInvalidInput, "message body must be valid UTF-8")
	}

	if maxLength <= 0 {
		maxLength = constants.DefaultMaxMessageLength
	}
	if n := utf8.RuneCountInString(body); n > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message body too long: %d characters (max %d)", n, maxLength))
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > constants.MaxTimeoutSec {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d seconds)", fieldName, constants.MaxTimeoutSec))
	}

	return nil
}
