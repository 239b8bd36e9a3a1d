package service

import (
	"context"

	"chatsend/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerboseLogging returns a context that enables verbose logging
func WithVerboseLogging(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeMessageID shortens message IDs for privacy
func SanitizeMessageID(msgID string) string {
	if msgID == "" {
		return ""
	}

	// Show only first N characters
	if len(msgID) > constants.DefaultMessageIDLength {
		return msgID[:constants.DefaultMessageIDLength] + "..."
	}
	return msgID
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogOutgoing logs an outgoing message with privacy controls. Bodies are only
// logged in verbose mode.
func LogOutgoing(ctx context.Context, logger *logrus.Logger, action, msgID, roomID, body string) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			"message_id": msgID,
			"room_id":    roomID,
			"body":       body,
		}).Debug(action)
		return
	}
	logger.WithFields(logrus.Fields{
		"message_id": SanitizeMessageID(msgID),
		"room_id":    roomID,
		"body":       SanitizeContent(body),
	}).Debug(action)
}
